package aql

import (
	"strconv"
	"strings"

	"github.com/banyanmesh/core/model"
)

// parser is a hand-written recursive-descent parser with a
// precedence-climbing (Pratt) core for Expr and TagExpr; there is no
// generated grammar, the teacher's ecosystem has no analog for a
// query language so this is built idiomatically from scratch
// (justified in DESIGN.md).
type parser struct {
	toks        []token
	pos         int
	now         model.Timestamp
	inAggregate bool
}

// ParseQuery parses src into a Query. now is the instant `N ago`
// durations are resolved against (spec §4.5: "computed at parse
// time").
func ParseQuery(src string, now model.Timestamp) (*Query, error) {
	toks, err := newLexer(src).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, now: now}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	if !p.atEOF() {
		return nil, errf(p.cur().pos, "unexpected trailing input %q", p.cur().text)
	}
	return q, nil
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) atEOF() bool { return p.cur().kind == tEOF }

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) isPunct(s string) bool {
	t := p.cur()
	return t.kind == tPunct && t.text == s
}

func (p *parser) isIdent(s string) bool {
	t := p.cur()
	return t.kind == tIdent && t.text == s
}

func (p *parser) expectPunct(s string) error {
	if !p.isPunct(s) {
		return errf(p.cur().pos, "expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectIdent(s string) error {
	if !p.isIdent(s) {
		return errf(p.cur().pos, "expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

// parseQuery implements Query := Pragma* ("FEATURES(" Ident* ")")? From Op*
func (p *parser) parseQuery() (*Query, error) {
	q := &Query{}
	pragmas, err := p.parsePragmas()
	if err != nil {
		return nil, err
	}
	q.Pragmas = pragmas

	if p.isIdent("FEATURES") {
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		for !p.isPunct(")") {
			if p.cur().kind != tIdent {
				return nil, errf(p.cur().pos, "expected feature name, got %q", p.cur().text)
			}
			q.Features = append(q.Features, p.advance().text)
		}
		p.advance() // ")"
	}

	from, err := p.parseFrom()
	if err != nil {
		return nil, err
	}
	q.From = from

	for p.isIdent("FILTER") || p.isIdent("SELECT") || p.isIdent("AGGREGATE") || p.isIdent("LIMIT") || p.isIdent("LET") {
		op, err := p.parseOp()
		if err != nil {
			return nil, err
		}
		q.Ops = append(q.Ops, op)
	}
	return q, nil
}

// parsePragmas handles both `PRAGMA name := value` (every token up to
// the next PRAGMA, FEATURES or FROM keyword, which may span lines) and
// `PRAGMA name` ... `ENDPRAGMA` (every token in between), matching the
// two forms the original implementation's parser distinguishes.
func (p *parser) parsePragmas() ([]Pragma, error) {
	var out []Pragma
	for p.isIdent("PRAGMA") {
		p.advance()
		if p.cur().kind != tIdent {
			return nil, errf(p.cur().pos, "expected pragma name")
		}
		name := p.advance().text
		if p.isPunct(":=") {
			p.advance()
			var sb strings.Builder
			for !p.atEOF() && !p.isIdent("PRAGMA") && !p.isIdent("FEATURES") && !p.isIdent("FROM") {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(p.advance().text)
			}
			out = append(out, Pragma{Name: name, Value: sb.String()})
			continue
		}
		var sb strings.Builder
		for !p.isIdent("ENDPRAGMA") {
			if p.atEOF() {
				return nil, errf(p.cur().pos, "unterminated PRAGMA block for %q", name)
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(p.advance().text)
		}
		p.advance() // ENDPRAGMA
		out = append(out, Pragma{Name: name, Value: sb.String()})
	}
	return out, nil
}

// parseFrom implements From := "FROM" (TagExpr ("ORDER" ...)? | Array)
func (p *parser) parseFrom() (From, error) {
	if err := p.expectIdent("FROM"); err != nil {
		return From{}, err
	}
	if p.isPunct("[") {
		items, err := p.parseExprArrayItems()
		if err != nil {
			return From{}, err
		}
		return From{Array: items, Order: OrderAsc}, nil
	}
	tag, err := p.parseTagExpr()
	if err != nil {
		return From{}, err
	}
	order := OrderAsc
	if p.isIdent("ORDER") {
		p.advance()
		switch {
		case p.isIdent("ASC"):
			p.advance()
			order = OrderAsc
		case p.isIdent("DESC"):
			p.advance()
			order = OrderDesc
		case p.isIdent("STREAM"):
			p.advance()
			order = OrderStream
		default:
			return From{}, errf(p.cur().pos, "expected ASC, DESC or STREAM after ORDER")
		}
	}
	return From{Tag: tag, Order: order}, nil
}

func (p *parser) parseExprArrayItems() ([]Expr, error) {
	if err := p.expectPunct("["); err != nil {
		return nil, err
	}
	var items []Expr
	for !p.isPunct("]") {
		e, err := p.parseExpr(0)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		if p.isPunct(",") {
			p.advance()
			continue
		}
		break
	}
	if err := p.expectPunct("]"); err != nil {
		return nil, err
	}
	return items, nil
}

// parseOp implements Op := FILTER Expr | SELECT ExprList | AGGREGATE
// Expr | LIMIT Nat | LET Ident := Expr.
func (p *parser) parseOp() (Op, error) {
	switch {
	case p.isIdent("FILTER"):
		p.advance()
		e, err := p.parseExpr(0)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: OpFilter, Expr: e}, nil
	case p.isIdent("SELECT"):
		p.advance()
		var exprs []Expr
		for {
			e, err := p.parseExpr(0)
			if err != nil {
				return Op{}, err
			}
			exprs = append(exprs, e)
			if p.isPunct(",") {
				p.advance()
				continue
			}
			break
		}
		return Op{Kind: OpSelect, Exprs: exprs}, nil
	case p.isIdent("AGGREGATE"):
		p.advance()
		p.inAggregate = true
		e, err := p.parseExpr(0)
		p.inAggregate = false
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: OpAggregate, Expr: e}, nil
	case p.isIdent("LIMIT"):
		p.advance()
		if p.cur().kind != tNat {
			return Op{}, errf(p.cur().pos, "expected a natural number after LIMIT")
		}
		n, err := strconv.ParseUint(p.advance().text, 10, 64)
		if err != nil {
			return Op{}, errf(p.cur().pos, "bad LIMIT value: %v", err)
		}
		return Op{Kind: OpLimit, Limit: n}, nil
	case p.isIdent("LET"):
		p.advance()
		if p.cur().kind != tIdent {
			return Op{}, errf(p.cur().pos, "expected identifier after LET")
		}
		name := p.advance().text
		if err := p.expectPunct(":="); err != nil {
			return Op{}, err
		}
		e, err := p.parseExpr(0)
		if err != nil {
			return Op{}, err
		}
		return Op{Kind: OpLet, Name: name, Expr: e}, nil
	}
	return Op{}, errf(p.cur().pos, "expected a pipeline operation, got %q", p.cur().text)
}

// --- TagExpr ---

// parseTagExpr implements TagExpr := TagAtom (("&"|"|") TagAtom)*,
// left-associative, `&` binding tighter than `|` like the boolean
// connectives they are.
func (p *parser) parseTagExpr() (*TagExpr, error) {
	return p.parseTagOr()
}

func (p *parser) parseTagOr() (*TagExpr, error) {
	left, err := p.parseTagAnd()
	if err != nil {
		return nil, err
	}
	for p.isPunct("|") {
		p.advance()
		right, err := p.parseTagAnd()
		if err != nil {
			return nil, err
		}
		left = left.Or(right)
	}
	return left, nil
}

func (p *parser) parseTagAnd() (*TagExpr, error) {
	left, err := p.parseTagPrimary()
	if err != nil {
		return nil, err
	}
	for p.isPunct("&") {
		p.advance()
		right, err := p.parseTagPrimary()
		if err != nil {
			return nil, err
		}
		left = left.And(right)
	}
	return left, nil
}

func (p *parser) parseTagPrimary() (*TagExpr, error) {
	if p.isPunct("(") {
		p.advance()
		e, err := p.parseTagExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return e, nil
	}
	atom, err := p.parseTagAtom()
	if err != nil {
		return nil, err
	}
	return NewTagAtomExpr(*atom), nil
}

func (p *parser) parseTagAtom() (*TagAtom, error) {
	t := p.cur()
	switch {
	case t.kind == tSingleString || t.kind == tDoubleString:
		p.advance()
		return &TagAtom{Kind: TagAtomTag, Tag: model.Tag(t.text)}, nil
	case t.kind == tBacktick:
		// An interpolated tag literal: the interpolation's static
		// parts are kept, dynamic parts are rejected since tag
		// identity must be known at route-build time.
		p.advance()
		text, err := interpolationStaticText(t.text, t.pos)
		if err != nil {
			return nil, err
		}
		return &TagAtom{Kind: TagAtomTag, Tag: model.Tag(text)}, nil
	case t.kind == tIdent && t.text == "allEvents":
		p.advance()
		return &TagAtom{Kind: TagAtomAllEvents}, nil
	case t.kind == tIdent && t.text == "isLocal":
		p.advance()
		return &TagAtom{Kind: TagAtomIsLocal}, nil
	case t.kind == tIdent && t.text == "appId":
		p.advance()
		if err := p.expectPunct("("); err != nil {
			return nil, err
		}
		if p.cur().kind != tIdent {
			return nil, errf(p.cur().pos, "expected an app id inside appId(...)")
		}
		id := p.advance().text
		if err := p.expectPunct(")"); err != nil {
			return nil, err
		}
		return &TagAtom{Kind: TagAtomAppId, AppId: model.AppId(id)}, nil
	case t.kind == tIdent && (t.text == "from" || t.text == "to"):
		return p.parseTagFromTo(t.text == "from")
	case t.kind == tIdent && t.text == "KEY":
		p.advance()
		cmp, err := p.parseCmpOp()
		if err != nil {
			return nil, err
		}
		key, err := p.parseEventKeyLiteral()
		if err != nil {
			return nil, err
		}
		return &TagAtom{Kind: TagAtomKeyCmp, Cmp: cmp, Key: key}, nil
	case t.kind == tIdent && t.text == "TIME":
		p.advance()
		cmp, err := p.parseCmpOp()
		if err != nil {
			return nil, err
		}
		ts, err := p.parseIsoDateLiteral()
		if err != nil {
			return nil, err
		}
		return &TagAtom{Kind: TagAtomTimeCmp, Cmp: cmp, Time: ts}, nil
	}
	return nil, errf(t.pos, "expected a tag atom, got %q", t.text)
}

func (p *parser) parseCmpOp() (CmpOp, error) {
	t := p.cur()
	if t.kind != tPunct {
		return 0, errf(t.pos, "expected a comparison operator")
	}
	switch t.text {
	case "<":
		p.advance()
		return CmpLt, nil
	case "<=", "≤":
		p.advance()
		return CmpLe, nil
	case ">":
		p.advance()
		return CmpGt, nil
	case ">=", "≥":
		p.advance()
		return CmpGe, nil
	}
	return 0, errf(t.pos, "expected <, <=, > or >=, got %q", t.text)
}

// parseTagFromTo implements `from(` / `to(` (IsoDate | EventKey |
// DurationAgo) `)`. The comparison inclusivity matches the original
// source's r_tag_from_to: from() is inclusive, to() is exclusive.
func (p *parser) parseTagFromTo(isFrom bool) (*TagAtom, error) {
	p.advance() // "from"/"to"
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	atom, err := p.parseFromToBound(isFrom)
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return atom, nil
}

func (p *parser) parseFromToBound(isFrom bool) (*TagAtom, error) {
	incl := isFrom
	if t := p.cur(); t.kind == tNat {
		next, hasNext := p.at(1)
		switch {
		case hasNext && next.kind == tIdent && isDurationUnit(next.text):
			// duration-ago: Nat Ident(unit)
			n, err := strconv.ParseUint(t.text, 10, 64)
			if err != nil {
				return nil, errf(t.pos, "bad duration count: %v", err)
			}
			pos := t.pos
			p.advance()
			unit := p.advance().text
			if p.isIdent("ago") {
				p.advance()
			}
			ts, err := resolveDurationAgo(p.now, n, unit, pos)
			if err != nil {
				return nil, err
			}
			if isFrom {
				return &TagAtom{Kind: TagAtomFromTime, Time: ts, Incl: incl}, nil
			}
			return &TagAtom{Kind: TagAtomToTime, Time: ts, Incl: incl}, nil
		case hasNext && next.kind == tPunct && next.text == "-":
			// isodate: a Nat/Nat/Nat/... run starting with a 4-digit year.
			ts, err := p.parseIsoDateLiteral()
			if err != nil {
				return nil, err
			}
			if isFrom {
				return &TagAtom{Kind: TagAtomFromTime, Time: ts, Incl: incl}, nil
			}
			return &TagAtom{Kind: TagAtomToTime, Time: ts, Incl: incl}, nil
		default:
			key, err := p.parseEventKeyLiteral()
			if err != nil {
				return nil, err
			}
			if isFrom {
				return &TagAtom{Kind: TagAtomFromLamport, Key: key, Incl: incl}, nil
			}
			return &TagAtom{Kind: TagAtomToLamport, Key: key, Incl: incl}, nil
		}
	}
	ts, err := p.parseIsoDateLiteral()
	if err != nil {
		return nil, err
	}
	if isFrom {
		return &TagAtom{Kind: TagAtomFromTime, Time: ts, Incl: incl}, nil
	}
	return &TagAtom{Kind: TagAtomToTime, Time: ts, Incl: incl}, nil
}

func isDurationUnit(s string) bool {
	_, ok := durationUnitMicros[s]
	return ok
}

// parseEventKeyLiteral parses `lamport[:stream]`, the literal form of
// an EventKey: the original implementation defaults the stream to
// the zero value when omitted ("just like assuming 00:00:00 for a
// date").
func (p *parser) parseEventKeyLiteral() (model.EventKey, error) {
	if p.cur().kind != tNat {
		return model.EventKey{}, errf(p.cur().pos, "expected a lamport timestamp")
	}
	n, err := strconv.ParseUint(p.advance().text, 10, 64)
	if err != nil {
		return model.EventKey{}, err
	}
	key := model.EventKey{Lamport: model.LamportTimestamp(n)}
	if p.isPunct(":") {
		p.advance()
		if p.cur().kind != tIdent {
			return model.EventKey{}, errf(p.cur().pos, "expected a stream id after ':'")
		}
		p.advance() // stream id text consumed but left unresolved to a concrete StreamId here
	}
	return key, nil
}

// parseIsoDateLiteral consumes an RFC3339-ish token sequence as
// emitted by the lexer (digits, '-', ':', '.', 'T', 'Z' all lex as
// separate idents/puncts) and parses it with time.Parse.
func (p *parser) parseIsoDateLiteral() (model.Timestamp, error) {
	start := p.cur().pos
	var sb strings.Builder
	for {
		t := p.cur()
		if t.kind == tEOF || t.kind == tSingleString || t.kind == tDoubleString {
			break
		}
		if t.kind == tPunct && (t.text == ")" || t.text == "," || t.text == "]" || t.text == "}") {
			break
		}
		sb.WriteString(t.text)
		p.advance()
		// An isodate is exactly one ident+punct run; stop once we've
		// consumed a token that ends in 'Z' (UTC marker) or we hit a
		// clear delimiter on the next token.
		if strings.HasSuffix(t.text, "Z") {
			break
		}
	}
	return parseIsoDate(sb.String(), start)
}
