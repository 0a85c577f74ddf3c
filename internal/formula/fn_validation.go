package formula

import "errors"

// Validation built-ins. IsBlank and IsError are special forms so that
// an undefined name inside them reads as blank / error instead of
// aborting the evaluation.
func (r *Registry) registerValidationFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "IsBlank",
		Category: CategoryValidation,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			val, err := args[0].Eval(ec)
			if err != nil {
				var ferr *Error
				if errors.As(err, &ferr) && ferr.Code == CodeUndefined {
					return BoolValue{Val: true}, nil
				}
				return nil, err
			}
			switch v := val.(type) {
			case NullValue:
				return BoolValue{Val: true}, nil
			case TextValue:
				return BoolValue{Val: v.Val == ""}, nil
			default:
				return BoolValue{Val: false}, nil
			}
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "IsEmpty",
		Category: CategoryValidation,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			switch v := args[0].(type) {
			case ListValue:
				return BoolValue{Val: len(v.Vals) == 0}, nil
			case RecordValue:
				return BoolValue{Val: len(v.Vals) == 0}, nil
			default:
				return BoolValue{Val: false}, nil
			}
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "IsError",
		Category: CategoryValidation,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			val, err := args[0].Eval(ec)
			if err != nil {
				var ferr *Error
				// Budget exhaustion is not observable as a value error.
				if errors.As(err, &ferr) && ferr.Code != CodeTimeout {
					return BoolValue{Val: true}, nil
				}
				return nil, err
			}
			_, isErr := val.(ErrorValue)
			return BoolValue{Val: isErr}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "IsNumeric",
		Category: CategoryValidation,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			switch v := args[0].(type) {
			case NumberValue:
				return BoolValue{Val: true}, nil
			case TextValue:
				_, ok := ToNumber(v)
				return BoolValue{Val: ok}, nil
			default:
				return BoolValue{Val: false}, nil
			}
		},
	})
}
