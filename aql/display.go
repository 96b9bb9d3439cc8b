package aql

import (
	"fmt"
	"strconv"
	"strings"
)

// String renders q back to AQL source text. The renderer is
// conservative about parentheses (every binary operation, negated
// operand and computed index is wrapped) rather than reproducing the
// original spelling exactly;
// spec §4.5's round-trip property only requires reparsing to recover
// an equal AST, "possibly with added parentheses".
func (q *Query) String() string {
	var sb strings.Builder
	for _, pr := range q.Pragmas {
		fmt.Fprintf(&sb, "PRAGMA %s := %s\n", pr.Name, pr.Value)
	}
	if len(q.Features) > 0 {
		fmt.Fprintf(&sb, "FEATURES(%s)\n", strings.Join(q.Features, " "))
	}
	sb.WriteString(q.From.String())
	for _, op := range q.Ops {
		sb.WriteByte('\n')
		sb.WriteString(op.String())
	}
	return sb.String()
}

func (f From) String() string {
	if f.Array != nil {
		parts := make([]string, len(f.Array))
		for i, e := range f.Array {
			parts[i] = e.String()
		}
		return "FROM [" + strings.Join(parts, ", ") + "]"
	}
	s := "FROM " + f.Tag.String()
	switch f.Order {
	case OrderDesc:
		s += " ORDER DESC"
	case OrderStream:
		s += " ORDER STREAM"
	}
	return s
}

func (o Op) String() string {
	switch o.Kind {
	case OpFilter:
		return "FILTER " + o.Expr.String()
	case OpSelect:
		parts := make([]string, len(o.Exprs))
		for i, e := range o.Exprs {
			parts[i] = e.String()
		}
		return "SELECT " + strings.Join(parts, ", ")
	case OpAggregate:
		return "AGGREGATE " + o.Expr.String()
	case OpLimit:
		return "LIMIT " + strconv.FormatUint(o.Limit, 10)
	case OpLet:
		return "LET " + o.Name + " := " + o.Expr.String()
	}
	return ""
}

func (t *TagExpr) String() string {
	if t == nil {
		return ""
	}
	switch t.Kind {
	case TagExprAtom:
		return t.Atom.String()
	case TagExprAnd:
		return "(" + t.Left.String() + " & " + t.Right.String() + ")"
	case TagExprOr:
		return "(" + t.Left.String() + " | " + t.Right.String() + ")"
	}
	return ""
}

func (a *TagAtom) String() string {
	if a == nil {
		return ""
	}
	switch a.Kind {
	case TagAtomTag:
		return quoteSingle(string(a.Tag))
	case TagAtomAppId:
		return "appId(" + string(a.AppId) + ")"
	case TagAtomAllEvents:
		return "allEvents"
	case TagAtomIsLocal:
		return "isLocal"
	case TagAtomFromLamport:
		return fmt.Sprintf("from(%d)", a.Key.Lamport)
	case TagAtomToLamport:
		return fmt.Sprintf("to(%d)", a.Key.Lamport)
	case TagAtomFromTime:
		return fmt.Sprintf("from(%s)", a.Time.Time().Format("2006-01-02T15:04:05.000000Z"))
	case TagAtomToTime:
		return fmt.Sprintf("to(%s)", a.Time.Time().Format("2006-01-02T15:04:05.000000Z"))
	case TagAtomKeyCmp:
		return fmt.Sprintf("KEY %s %d", a.Cmp.String(), a.Key.Lamport)
	case TagAtomTimeCmp:
		return fmt.Sprintf("TIME %s %s", a.Cmp.String(), a.Time.Time().Format("2006-01-02T15:04:05.000000Z"))
	}
	return ""
}

func (c CmpOp) String() string {
	switch c {
	case CmpLt:
		return "<"
	case CmpLe:
		return "<="
	case CmpGt:
		return ">"
	case CmpGe:
		return ">="
	}
	return "?"
}

func (op BinOp) String() string {
	for text, entry := range binOpTable {
		if entry.op == op {
			// Prefer the ASCII spelling when more than one punct maps
			// to the same operator (≠ vs !=, etc).
			if text == "≠" || text == "≤" || text == "≥" {
				continue
			}
			return text
		}
	}
	return "?"
}

func (e *Expr) String() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case ExprNumber:
		if e.IsDecimal {
			s := strconv.FormatFloat(e.Dec, 'g', -1, 64)
			if !strings.ContainsAny(s, ".eEn") {
				s += ".0" // keep an integral decimal from reparsing as a natural
			}
			return s
		}
		return strconv.FormatUint(e.Nat, 10)
	case ExprString:
		return quoteSingle(e.Str)
	case ExprNull:
		return "null"
	case ExprBool:
		if e.Bool {
			return "true"
		}
		return "false"
	case ExprVariable:
		return e.Str
	case ExprCurrent:
		return "_"
	case ExprInterpolation:
		var sb strings.Builder
		sb.WriteByte('`')
		for _, it := range e.Items {
			if it.Kind == ExprString {
				sb.WriteString(it.Str)
				continue
			}
			sb.WriteByte('{')
			sb.WriteString(it.String())
			sb.WriteByte('}')
		}
		sb.WriteByte('`')
		return sb.String()
	case ExprObject:
		parts := make([]string, len(e.Fields))
		for i, f := range e.Fields {
			parts[i] = f.Name + ": " + f.Expr.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case ExprArray:
		parts := make([]string, len(e.Items))
		for i, it := range e.Items {
			parts[i] = it.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case ExprIndex:
		return e.Base.String() + "[(" + e.Index.String() + ")]"
	case ExprField:
		return e.Base.String() + "['" + e.Name + "']"
	case ExprBinOp:
		return "(" + e.Left.String() + " " + e.Op.String() + " " + e.Right.String() + ")"
	case ExprNot:
		return "!(" + e.Base.String() + ")"
	case ExprCase:
		var sb strings.Builder
		for i, arm := range e.Cases {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString("CASE ")
			sb.WriteString(arm.Pred.String())
			sb.WriteString(" => ")
			sb.WriteString(arm.Result.String())
		}
		sb.WriteString(" ENDCASE")
		return sb.String()
	case ExprAggrOp:
		return aggrName(e.Aggr) + "(" + e.Arg.String() + ")"
	case ExprFuncCall:
		parts := make([]string, len(e.Items))
		for i, it := range e.Items {
			parts[i] = it.String()
		}
		return e.Str + "(" + strings.Join(parts, ", ") + ")"
	case ExprSubQuery:
		return e.SubQuery.String()
	case ExprKeyLit:
		return "KEY"
	case ExprTimeLit:
		return "TIME"
	case ExprTagsLit:
		return "TAGS"
	case ExprAppLit:
		return "APP"
	}
	return ""
}

// quoteSingle renders s as a single-quoted literal, escaping the
// backslashes and quotes the lexer would otherwise interpret.
func quoteSingle(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	return "'" + strings.ReplaceAll(s, "'", "\\'") + "'"
}

func aggrName(a AggrKind) string {
	switch a {
	case AggrSum:
		return "SUM"
	case AggrProduct:
		return "PRODUCT"
	case AggrMin:
		return "MIN"
	case AggrMax:
		return "MAX"
	case AggrFirst:
		return "FIRST"
	case AggrLast:
		return "LAST"
	}
	return "?"
}
