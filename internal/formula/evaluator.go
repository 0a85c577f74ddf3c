package formula

import (
	"strconv"
	"time"
)

// Budget caps a single evaluation. Both limits are checked at every
// node entry; exceeding either yields a TIMEOUT error.
type Budget struct {
	MaxNodes    int
	MaxDuration time.Duration
}

// DefaultBudget mirrors the platform defaults: 100k node visits or one
// second of wall clock, whichever trips first.
func DefaultBudget() Budget {
	return Budget{MaxNodes: 100_000, MaxDuration: time.Second}
}

// EvalContext is the per-evaluation state threaded through the AST
// walk: the user Context, the function registry, and budget counters.
type EvalContext struct {
	Ctx      *Context
	reg      *Registry
	visited  int
	maxNodes int
	deadline time.Time
}

func newEvalContext(ctx *Context, reg *Registry, budget Budget) *EvalContext {
	return &EvalContext{
		Ctx:      ctx,
		reg:      reg,
		maxNodes: budget.MaxNodes,
		deadline: time.Now().Add(budget.MaxDuration),
	}
}

// enter charges one node visit against the budget.
func (ec *EvalContext) enter(span Span) error {
	ec.visited++
	if ec.visited > ec.maxNodes {
		return newError(CodeTimeout, span, "evaluation exceeded the %d-node budget", ec.maxNodes)
	}
	if time.Now().After(ec.deadline) {
		return newError(CodeTimeout, span, "evaluation exceeded the time budget")
	}
	return nil
}

// evalIn evaluates an expression in a child scope, restoring the
// previous scope afterwards. Used by the predicate-taking built-ins.
func (ec *EvalContext) evalIn(scope *Context, expr Expr) (Value, error) {
	saved := ec.Ctx
	ec.Ctx = scope
	defer func() { ec.Ctx = saved }()
	return expr.Eval(ec)
}

func (e *LiteralExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	return e.Val, nil
}

func (e *VarRefExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	if v, ok := ec.Ctx.Resolve(e.Name); ok {
		return v, nil
	}
	return nil, newError(CodeUndefined, e.span, "undefined name %q", e.Name)
}

func (e *FieldExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	obj, err := e.Object.Eval(ec)
	if err != nil {
		return nil, err
	}
	switch o := obj.(type) {
	case ErrorValue:
		return o, nil
	case RecordValue:
		if v, ok := o.Vals[e.Field]; ok {
			return v, nil
		}
		return NullValue{}, nil
	case ListValue:
		// A numeric field selects by 1-based position; a named field
		// projects it over the list's records, so aggregates can take
		// shapes like Sum(orders.amount).
		if idx, err := strconv.Atoi(e.Field); err == nil {
			if idx < 1 || idx > len(o.Vals) {
				return NullValue{}, nil
			}
			return o.Vals[idx-1], nil
		}
		projected := make([]Value, 0, len(o.Vals))
		for _, row := range o.Vals {
			rec, ok := row.(RecordValue)
			if !ok {
				return nil, newError(CodeType, e.span, "cannot access field %q on list element of kind %s", e.Field, row.Kind())
			}
			if v, ok := rec.Vals[e.Field]; ok {
				projected = append(projected, v)
			} else {
				projected = append(projected, NullValue{})
			}
		}
		return ListValue{Vals: projected}, nil
	default:
		return nil, newError(CodeType, e.span, "cannot access field %q on %s", e.Field, obj.Kind())
	}
}

func (e *IndexExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	obj, err := e.Object.Eval(ec)
	if err != nil {
		return nil, err
	}
	idx, err := e.Index.Eval(ec)
	if err != nil {
		return nil, err
	}
	if ev, ok := obj.(ErrorValue); ok {
		return ev, nil
	}
	if ev, ok := idx.(ErrorValue); ok {
		return ev, nil
	}
	switch o := obj.(type) {
	case ListValue:
		n, ok := ToNumber(idx)
		if !ok {
			return nil, newError(CodeType, e.span, "list index must be a number, got %s", idx.Kind())
		}
		i := int(n)
		if i < 1 || i > len(o.Vals) {
			return NullValue{}, nil
		}
		return o.Vals[i-1], nil
	case RecordValue:
		key := ToText(idx)
		if v, ok := o.Vals[key]; ok {
			return v, nil
		}
		return NullValue{}, nil
	default:
		return nil, newError(CodeType, e.span, "cannot index %s", obj.Kind())
	}
}

func (e *UnaryExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	val, err := e.Operand.Eval(ec)
	if err != nil {
		return nil, err
	}
	if ev, ok := val.(ErrorValue); ok {
		return ev, nil
	}
	switch e.Op {
	case UnaryNeg:
		n, ok := ToNumber(val)
		if !ok {
			return nil, newError(CodeType, e.span, "cannot negate %s", val.Kind())
		}
		return NumberValue{Val: -n}, nil
	case UnaryNot:
		return BoolValue{Val: !ToBool(val)}, nil
	default:
		return nil, newError(CodeInternal, e.span, "unknown unary operator %q", e.Op)
	}
}

func (e *BinaryExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}

	// And/Or evaluate their right side only when needed.
	switch e.Op {
	case OpAnd:
		left, err := e.Left.Eval(ec)
		if err != nil {
			return nil, err
		}
		if !ToBool(left) {
			return BoolValue{Val: false}, nil
		}
		right, err := e.Right.Eval(ec)
		if err != nil {
			return nil, err
		}
		return BoolValue{Val: ToBool(right)}, nil
	case OpOr:
		left, err := e.Left.Eval(ec)
		if err != nil {
			return nil, err
		}
		if ToBool(left) {
			return BoolValue{Val: true}, nil
		}
		right, err := e.Right.Eval(ec)
		if err != nil {
			return nil, err
		}
		return BoolValue{Val: ToBool(right)}, nil
	}

	left, err := e.Left.Eval(ec)
	if err != nil {
		return nil, err
	}
	right, err := e.Right.Eval(ec)
	if err != nil {
		return nil, err
	}
	if ev, ok := left.(ErrorValue); ok {
		return ev, nil
	}
	if ev, ok := right.(ErrorValue); ok {
		return ev, nil
	}

	switch e.Op {
	case OpEq:
		return BoolValue{Val: left.Equals(right)}, nil
	case OpNe:
		return BoolValue{Val: !left.Equals(right)}, nil
	case OpLt, OpLe, OpGt, OpGe:
		return e.compare(left, right)
	case OpAdd:
		if l, lok := left.(TextValue); lok {
			if r, rok := right.(TextValue); rok {
				return TextValue{Val: l.Val + r.Val}, nil
			}
		}
		if left.Kind() == KindText || right.Kind() == KindText {
			return nil, newError(CodeType, e.span, "cannot add %s and %s; use Concatenate for text", left.Kind(), right.Kind())
		}
		return e.arith(left, right, func(a, b float64) (Value, error) {
			return NumberValue{Val: a + b}, nil
		})
	case OpSub:
		return e.arith(left, right, func(a, b float64) (Value, error) {
			return NumberValue{Val: a - b}, nil
		})
	case OpMul:
		return e.arith(left, right, func(a, b float64) (Value, error) {
			return NumberValue{Val: a * b}, nil
		})
	case OpDiv:
		return e.arith(left, right, func(a, b float64) (Value, error) {
			if b == 0 {
				return ErrorValue{Code: CodeArithmetic, Message: "division by zero"}, nil
			}
			return NumberValue{Val: a / b}, nil
		})
	case OpMod:
		return e.arith(left, right, func(a, b float64) (Value, error) {
			if b == 0 {
				return ErrorValue{Code: CodeArithmetic, Message: "modulo by zero"}, nil
			}
			return NumberValue{Val: floorMod(a, b)}, nil
		})
	default:
		return nil, newError(CodeInternal, e.span, "unknown operator %q", e.Op)
	}
}

// compare orders texts lexicographically, dates chronologically, and
// everything else numerically.
func (e *BinaryExpr) compare(left, right Value) (Value, error) {
	var cmp int
	if l, lok := left.(TextValue); lok {
		if r, rok := right.(TextValue); rok {
			switch {
			case l.Val < r.Val:
				cmp = -1
			case l.Val > r.Val:
				cmp = 1
			}
			return e.compareResult(cmp), nil
		}
	}
	if l, lok := left.(DateValue); lok {
		if r, rok := right.(DateValue); rok {
			switch {
			case l.Val.Before(r.Val):
				cmp = -1
			case l.Val.After(r.Val):
				cmp = 1
			}
			return e.compareResult(cmp), nil
		}
	}
	ln, lok := ToNumber(left)
	rn, rok := ToNumber(right)
	if !lok || !rok {
		return nil, newError(CodeType, e.span, "cannot compare %s and %s", left.Kind(), right.Kind())
	}
	switch {
	case ln < rn:
		cmp = -1
	case ln > rn:
		cmp = 1
	}
	return e.compareResult(cmp), nil
}

func (e *BinaryExpr) compareResult(cmp int) Value {
	switch e.Op {
	case OpLt:
		return BoolValue{Val: cmp < 0}
	case OpLe:
		return BoolValue{Val: cmp <= 0}
	case OpGt:
		return BoolValue{Val: cmp > 0}
	default:
		return BoolValue{Val: cmp >= 0}
	}
}

func (e *BinaryExpr) arith(left, right Value, op func(a, b float64) (Value, error)) (Value, error) {
	a, aok := ToNumber(left)
	b, bok := ToNumber(right)
	if !aok || !bok {
		return nil, newError(CodeType, e.span, "operator %q requires numbers, got %s and %s", e.Op, left.Kind(), right.Kind())
	}
	return op(a, b)
}

// floorMod gives a remainder whose sign follows the divisor.
func floorMod(a, b float64) float64 {
	r := a - b*float64(int64(a/b))
	if r != 0 && (r < 0) != (b < 0) {
		r += b
	}
	return r
}

func (e *IfExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	cond, err := e.Cond.Eval(ec)
	if err != nil {
		return nil, err
	}
	if ToBool(cond) {
		return e.Then.Eval(ec)
	}
	return e.Else.Eval(ec)
}

func (e *CallExpr) Eval(ec *EvalContext) (Value, error) {
	if err := ec.enter(e.span); err != nil {
		return nil, err
	}
	d, ok := ec.reg.Lookup(e.Name)
	if !ok {
		return nil, newError(CodeUnknownFunc, e.span, "unknown function %q", e.Name)
	}
	if err := d.CheckArity(len(e.Args)); err != nil {
		return nil, newError(CodeArity, e.span, "%s", err.Error())
	}

	if d.Special != nil {
		return d.Special(e.Args, e.span, ec)
	}

	args := make([]Value, len(e.Args))
	for i, arg := range e.Args {
		val, err := arg.Eval(ec)
		if err != nil {
			return nil, err
		}
		// First-class errors pass through ordinary functions untouched.
		if ev, isErr := val.(ErrorValue); isErr {
			return ev, nil
		}
		args[i] = val
	}
	return d.Fn(args, ec)
}

// Engine ties the parser, AST cache, registry and budget together. It
// is safe for concurrent use; each Evaluate call gets its own
// EvalContext and the caller-supplied Context must not be shared.
type Engine struct {
	reg    *Registry
	cache  *ASTCache
	budget Budget
}

// NewEngine builds an engine over the default registry and budget.
func NewEngine() *Engine {
	return NewEngineWith(NewRegistry(), DefaultBudget())
}

// NewEngineWith builds an engine over a caller-assembled registry,
// e.g. one extended with deployment-specific functions at startup.
func NewEngineWith(reg *Registry, budget Budget) *Engine {
	return &Engine{
		reg:    reg,
		cache:  NewASTCache(),
		budget: budget,
	}
}

// Registry exposes the engine's function registry (read-only use).
func (e *Engine) Registry() *Registry {
	return e.reg
}

// Parse returns the memoized AST for a formula text.
func (e *Engine) Parse(source string) (Expr, error) {
	return e.cache.Parse(source, e.reg)
}

// Validate parses a formula and reports the first error, if any. It
// never evaluates.
func (e *Engine) Validate(source string) *Error {
	return Validate(source, e.reg)
}

// Evaluate parses (memoized) and evaluates a formula against ctx.
// Domain errors raised by built-ins may come back as an ErrorValue
// result rather than a Go error; callers that need a hard failure
// should check the result kind.
func (e *Engine) Evaluate(source string, ctx *Context) (Value, error) {
	expr, err := e.Parse(source)
	if err != nil {
		return nil, err
	}
	return e.EvaluateAST(expr, ctx)
}

// EvaluateAST walks an already-parsed AST against ctx under the
// engine's budget.
func (e *Engine) EvaluateAST(expr Expr, ctx *Context) (Value, error) {
	if ctx == nil {
		ctx = NewContext(nil, nil, nil)
	}
	ec := newEvalContext(ctx, e.reg, e.budget)
	return expr.Eval(ec)
}

// Functions lists the registry catalog.
func (e *Engine) Functions() []FunctionInfo {
	return e.reg.List()
}
