package formula

// Expr is an immutable AST node. Every node carries the source span it
// was parsed from so evaluation errors can point back into the formula.
type Expr interface {
	Span() Span
	Eval(ec *EvalContext) (Value, error)
}

type LiteralExpr struct {
	Val  Value
	span Span
}

func (e *LiteralExpr) Span() Span { return e.span }

type VarRefExpr struct {
	Name string
	span Span
}

func (e *VarRefExpr) Span() Span { return e.span }

type FieldExpr struct {
	Object Expr
	Field  string
	span   Span
}

func (e *FieldExpr) Span() Span { return e.span }

type IndexExpr struct {
	Object Expr
	Index  Expr
	span   Span
}

func (e *IndexExpr) Span() Span { return e.span }

type UnaryOp string

const (
	UnaryNeg UnaryOp = "-"
	UnaryNot UnaryOp = "!"
)

type UnaryExpr struct {
	Op      UnaryOp
	Operand Expr
	span    Span
}

func (e *UnaryExpr) Span() Span { return e.span }

type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpMul BinaryOp = "*"
	OpDiv BinaryOp = "/"
	OpMod BinaryOp = "%"
	OpEq  BinaryOp = "="
	OpNe  BinaryOp = "!="
	OpLt  BinaryOp = "<"
	OpLe  BinaryOp = "<="
	OpGt  BinaryOp = ">"
	OpGe  BinaryOp = ">="
	OpAnd BinaryOp = "&&"
	OpOr  BinaryOp = "||"
)

type BinaryExpr struct {
	Op    BinaryOp
	Left  Expr
	Right Expr
	span  Span
}

func (e *BinaryExpr) Span() Span { return e.span }

type CallExpr struct {
	Name string
	Args []Expr
	span Span
}

func (e *CallExpr) Span() Span { return e.span }

// IfExpr is the keyword form `if cond then a else b`. The function
// form If(cond, a, b) parses as a CallExpr and dispatches to the same
// short-circuit semantics.
type IfExpr struct {
	Cond Expr
	Then Expr
	Else Expr
	span Span
}

func (e *IfExpr) Span() Span { return e.span }
