package formula

import (
	"strconv"
	"strings"
)

// Conversion built-ins.
func (r *Registry) registerConversionFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "Value",
		Category: CategoryConversion,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			switch v := args[0].(type) {
			case NumberValue:
				return v, nil
			case BoolValue:
				if v.Val {
					return NumberValue{Val: 1}, nil
				}
				return NumberValue{Val: 0}, nil
			case TextValue:
				f, err := strconv.ParseFloat(strings.TrimSpace(v.Val), 64)
				if err != nil {
					return ErrorValue{Code: CodeType, Message: "Value: cannot convert " + strconv.Quote(v.Val) + " to a number"}, nil
				}
				return NumberValue{Val: f}, nil
			default:
				return ErrorValue{Code: CodeType, Message: "Value: cannot convert " + string(v.Kind()) + " to a number"}, nil
			}
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Boolean",
		Category: CategoryConversion,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return BoolValue{Val: ToBool(args[0])}, nil
		},
	})
}
