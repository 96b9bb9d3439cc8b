package aql

import (
	"strings"
)

// interpSegment is one piece of a parsed backtick string: either a
// literal run of text or a `{...}` hole (an expression, or a
// `{U+HHHH}` unicode escape already resolved into literal text).
type interpSegment struct {
	literal string
	expr    *Expr
}

// splitInterpolation walks raw (the text between backticks, already
// lexed) and splits it into literal runs and `{...}` holes, honoring
// brace nesting inside an embedded expression.
func splitInterpolation(raw string, basePos int) ([]struct {
	text    string
	isHole  bool
	holePos int
}, error) {
	type part struct {
		text    string
		isHole  bool
		holePos int
	}
	var out []part
	rs := []rune(raw)
	var buf strings.Builder
	i := 0
	for i < len(rs) {
		c := rs[i]
		if c == '{' {
			if buf.Len() > 0 {
				out = append(out, part{text: buf.String()})
				buf.Reset()
			}
			depth := 1
			start := i + 1
			j := start
			for j < len(rs) && depth > 0 {
				switch rs[j] {
				case '{':
					depth++
				case '}':
					depth--
					if depth == 0 {
						goto closed
					}
				}
				j++
			}
		closed:
			if depth != 0 {
				return nil, errf(basePos, "unterminated `{` in backtick string")
			}
			out = append(out, part{text: string(rs[start:j]), isHole: true, holePos: basePos + start})
			i = j + 1
			continue
		}
		buf.WriteRune(c)
		i++
	}
	if buf.Len() > 0 {
		out = append(out, part{text: buf.String()})
	}
	res := make([]struct {
		text    string
		isHole  bool
		holePos int
	}, len(out))
	for i, p := range out {
		res[i] = struct {
			text    string
			isHole  bool
			holePos int
		}{p.text, p.isHole, p.holePos}
	}
	return res, nil
}

func isUnicodeEscape(hole string) (string, bool) {
	if len(hole) > 2 && hole[0] == 'U' && hole[1] == '+' {
		return hole[2:], true
	}
	return "", false
}

// parseBacktick turns one lexed backtick token into an Interpolation
// Expr (or a plain String Expr if it contains no holes at all).
func (p *parser) parseBacktick(raw string, pos int) (Expr, error) {
	parts, err := splitInterpolation(raw, pos)
	if err != nil {
		return Expr{}, err
	}
	var items []Expr
	for _, part := range parts {
		if !part.isHole {
			items = append(items, Expr{Kind: ExprString, Str: part.text})
			continue
		}
		if hex, ok := isUnicodeEscape(part.text); ok {
			r, err := parseUnicodeEscape(hex)
			if err != nil {
				return Expr{}, errf(part.holePos, "invalid unicode scalar value `%s`", part.text)
			}
			items = append(items, Expr{Kind: ExprString, Str: string(r)})
			continue
		}
		sub := newLexer(part.text)
		toks, err := sub.tokenize()
		if err != nil {
			return Expr{}, err
		}
		subParser := &parser{toks: toks, now: p.now, inAggregate: p.inAggregate}
		e, err := subParser.parseExpr(0)
		if err != nil {
			return Expr{}, err
		}
		if !subParser.atEOF() {
			return Expr{}, errf(part.holePos, "unexpected trailing input in interpolation hole")
		}
		items = append(items, e)
	}
	if len(items) == 1 && items[0].Kind == ExprString {
		return items[0], nil
	}
	return Expr{Kind: ExprInterpolation, Items: items}, nil
}

// interpolationStaticText requires every hole to be a `{U+HHHH}`
// escape (no embedded expressions), for contexts where the resulting
// Tag must be known without an evaluation scope (a tag atom's
// literal, spec §4.5 TagAtom).
func interpolationStaticText(raw string, pos int) (string, error) {
	parts, err := splitInterpolation(raw, pos)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, part := range parts {
		if !part.isHole {
			sb.WriteString(part.text)
			continue
		}
		hex, ok := isUnicodeEscape(part.text)
		if !ok {
			return "", errf(part.holePos, "a tag literal cannot contain a dynamic interpolation `{%s}`", part.text)
		}
		r, err := parseUnicodeEscape(hex)
		if err != nil {
			return "", errf(part.holePos, "invalid unicode scalar value `%s`", part.text)
		}
		sb.WriteRune(r)
	}
	return sb.String(), nil
}
