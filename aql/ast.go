// Package aql implements the query language's lexer, parser, and
// abstract syntax (spec.md §4.5): a query is zero or more pragmas,
// an optional FEATURES declaration, a FROM clause, and a pipeline of
// FILTER/SELECT/AGGREGATE/LIMIT/LET operations.
package aql

import "github.com/banyanmesh/core/model"

// Pragma is a `PRAGMA name := value` or `PRAGMA name ... ENDPRAGMA`
// declaration; Value is the declaration's tokens re-joined with single
// spaces (quotes and original whitespace are not preserved).
type Pragma struct {
	Name  string
	Value string
}

// Order selects how a bounded FROM clause's results are sequenced.
type Order int

const (
	OrderAsc Order = iota
	OrderDesc
	OrderStream
)

func (o Order) String() string {
	switch o {
	case OrderDesc:
		return "DESC"
	case OrderStream:
		return "STREAM"
	default:
		return "ASC"
	}
}

// From is the query's source: either a tag expression (with an
// ordering) over the event store, or a literal array of expressions.
type From struct {
	Tag   *TagExpr
	Order Order
	Array []Expr // non-nil when this FROM is `FROM [e1, e2, ...]`
}

// OpKind discriminates the five pipeline operation shapes.
type OpKind int

const (
	OpFilter OpKind = iota
	OpSelect
	OpAggregate
	OpLimit
	OpLet
)

// Op is one pipeline stage. Which fields are meaningful depends on
// Kind: Filter/Aggregate use Expr, Select uses Exprs, Limit uses
// Limit, Let uses Name and Expr.
type Op struct {
	Kind  OpKind
	Expr  Expr
	Exprs []Expr
	Limit uint64
	Name  string
}

// Query is a fully parsed AQL statement.
type Query struct {
	Pragmas  []Pragma
	Features []string
	From     From
	Ops      []Op
}

// TagExprKind discriminates a tag expression node: a leaf atom, or a
// conjunction/disjunction of two sub-expressions.
type TagExprKind int

const (
	TagExprAtom TagExprKind = iota
	TagExprAnd
	TagExprOr
)

// TagExpr is the FROM clause's boolean tag expression (spec §4.5
// TagExpr grammar), built from TagAtom leaves combined with `&`/`|`.
type TagExpr struct {
	Kind  TagExprKind
	Atom  *TagAtom
	Left  *TagExpr
	Right *TagExpr
}

func NewTagAtomExpr(a TagAtom) *TagExpr { return &TagExpr{Kind: TagExprAtom, Atom: &a} }

func (t *TagExpr) And(o *TagExpr) *TagExpr { return &TagExpr{Kind: TagExprAnd, Left: t, Right: o} }
func (t *TagExpr) Or(o *TagExpr) *TagExpr  { return &TagExpr{Kind: TagExprOr, Left: t, Right: o} }

// TagAtomKind discriminates the leaf forms of TagExpr (spec §4.5
// TagAtom grammar).
type TagAtomKind int

const (
	TagAtomTag TagAtomKind = iota
	TagAtomAppId
	TagAtomAllEvents
	TagAtomIsLocal
	TagAtomFromLamport
	TagAtomToLamport
	TagAtomFromTime
	TagAtomToTime
	TagAtomKeyCmp
	TagAtomTimeCmp
)

// CmpOp is one of the four range comparisons usable against KEY/TIME
// and from()/to(): <, <=, >, >=.
type CmpOp int

const (
	CmpLt CmpOp = iota
	CmpLe
	CmpGt
	CmpGe
)

// TagAtom is a single leaf of a tag expression. Only Tag/AppId/
// AllEvents are routed by routing.Table (ToDNF drops every other kind,
// per spec §4.7's DNF atom set); the rest bound a query's time/key
// window or restrict it to locally-originated events and are applied
// by the evaluator, not the router.
type TagAtom struct {
	Kind TagAtomKind

	Tag   model.Tag
	AppId model.AppId

	// FromLamport/ToLamport
	Key  model.EventKey
	Incl bool

	// FromTime/ToTime
	Time model.Timestamp

	// KeyCmp/TimeCmp carry both the comparison direction and the
	// bound; Incl/Key/Time above are reused.
	Cmp CmpOp
}

// ExprKind discriminates the single tagged-struct Expr sum type
// (replacing an interface-per-node hierarchy: the tree walk
// pattern-matches on Kind instead of dynamic dispatch).
type ExprKind int

const (
	ExprNumber ExprKind = iota
	ExprString
	ExprNull
	ExprBool
	ExprVariable
	ExprCurrent // `_`
	ExprInterpolation
	ExprObject
	ExprArray
	ExprIndex   // base[index] or base[(index)]
	ExprField   // base.name or base['name']
	ExprBinOp
	ExprNot
	ExprCase
	ExprAggrOp
	ExprFuncCall
	ExprSubQuery
	ExprKeyLit
	ExprTimeLit
	ExprTagsLit
	ExprAppLit
)

// BinOp enumerates the Pratt-parsed infix operators, ordered exactly
// as spec §4.5's precedence table (low to high); the precedence values
// themselves live in expr_parser.go's binOpTable, which the parser and
// Display both consult.
type BinOp int

const (
	OpCoalesce BinOp = iota // ??
	OpOr                    // |
	OpXor                   // ~
	OpAnd                   // &
	OpEq                    // =
	OpNeq                   // ≠ / !=
	OpLt
	OpLe
	OpGt
	OpGe
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow // ^
)

// AggrKind enumerates the six aggregate operators, legal only inside
// an AGGREGATE op (spec §4.5 context discipline).
type AggrKind int

const (
	AggrSum AggrKind = iota
	AggrProduct
	AggrMin
	AggrMax
	AggrFirst
	AggrLast
)

// CaseArm is one `pred => result` clause of a CASE expression.
type CaseArm struct {
	Pred   Expr
	Result Expr
}

// ObjectField is one `name: expr` entry of an object literal.
type ObjectField struct {
	Name string
	Expr Expr
}

// Expr is every expression-grammar production in one tagged struct;
// which fields are populated is determined entirely by Kind.
type Expr struct {
	Kind ExprKind

	// Number
	IsDecimal bool
	Nat       uint64
	Dec       float64

	// String / Variable / FuncCall name
	Str string

	// Bool
	Bool bool

	// Interpolation / Array / FuncCall args
	Items []Expr

	// Object
	Fields []ObjectField

	// Index / Field / Not: Base is the operand
	Base  *Expr
	Index *Expr  // ExprIndex
	Name  string // ExprField

	// BinOp
	Op    BinOp
	Left  *Expr
	Right *Expr

	// Case
	Cases []CaseArm

	// AggrOp
	Aggr AggrKind
	Arg  *Expr

	// SubQuery
	SubQuery *Query
}
