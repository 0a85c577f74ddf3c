package formula

import (
	"time"
)

// Argument coercion helpers shared by the built-in implementations.
// They raise TYPE_MISMATCH without a span; the evaluator's call frame
// already points at the offending call site.

func argNumber(fn string, args []Value, i int) (float64, error) {
	n, ok := ToNumber(args[i])
	if !ok {
		return 0, newError(CodeType, Span{}, "%s: argument %d must be a number, got %s", fn, i+1, args[i].Kind())
	}
	return n, nil
}

func argInt(fn string, args []Value, i int) (int, error) {
	n, err := argNumber(fn, args, i)
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func argText(fn string, args []Value, i int) (string, error) {
	switch v := args[i].(type) {
	case TextValue:
		return v.Val, nil
	case NumberValue, BoolValue, DateValue, NullValue:
		return v.String(), nil
	default:
		return "", newError(CodeType, Span{}, "%s: argument %d must be text, got %s", fn, i+1, args[i].Kind())
	}
}

func argList(fn string, args []Value, i int) ([]Value, error) {
	switch v := args[i].(type) {
	case ListValue:
		return v.Vals, nil
	case NullValue:
		return nil, nil
	default:
		return nil, newError(CodeType, Span{}, "%s: argument %d must be a list, got %s", fn, i+1, args[i].Kind())
	}
}

func argDate(fn string, args []Value, i int) (time.Time, error) {
	switch v := args[i].(type) {
	case DateValue:
		return v.Val, nil
	case TextValue:
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v.Val); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return time.Time{}, newError(CodeType, Span{}, "%s: argument %d must be a date, got %s", fn, i+1, args[i].Kind())
}

// evalCollection evaluates the first argument of a predicate-taking
// built-in and requires a list result.
func evalCollection(fn string, arg Expr, ec *EvalContext) ([]Value, error) {
	val, err := arg.Eval(ec)
	if err != nil {
		return nil, err
	}
	switch v := val.(type) {
	case ListValue:
		return v.Vals, nil
	case NullValue:
		return nil, nil
	case ErrorValue:
		return nil, newError(CodeType, arg.Span(), "%s: %s", fn, v.Message)
	default:
		return nil, newError(CodeType, arg.Span(), "%s expects a collection, got %s", fn, val.Kind())
	}
}

// rowScope binds a record's fields as the current values scope; rows
// that are not records evaluate predicates in the enclosing scope.
func rowScope(ec *EvalContext, row Value) *Context {
	if rec, ok := row.(RecordValue); ok {
		return ec.Ctx.child(rec)
	}
	return ec.Ctx
}

// collectionName extracts the target name of a Collect-family call:
// either a bare identifier or a text literal.
func collectionName(fn string, arg Expr) (string, error) {
	switch e := arg.(type) {
	case *VarRefExpr:
		return e.Name, nil
	case *LiteralExpr:
		if t, ok := e.Val.(TextValue); ok {
			return t.Val, nil
		}
	}
	return "", newError(CodeType, arg.Span(), "%s: first argument must name a collection", fn)
}
