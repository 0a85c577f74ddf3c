package formula

import "math"

// Math built-ins. Domain errors (divide by zero, Sqrt of a negative,
// logs of non-positives) come back as first-class ErrorValue results so
// IsError can observe them.
func (r *Registry) registerMathFunctions() {
	// Round halves away from zero, matching spreadsheet expectations
	// rather than banker's rounding.
	r.mustRegister(&Descriptor{
		Name:     "Round",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return roundWith("Round", args, math.Round)
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "RoundUp",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return roundWith("RoundUp", args, func(x float64) float64 {
				return math.Copysign(math.Ceil(math.Abs(x)), x)
			})
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "RoundDown",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return roundWith("RoundDown", args, math.Trunc)
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Abs",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			n, err := argNumber("Abs", args, 0)
			if err != nil {
				return nil, err
			}
			return NumberValue{Val: math.Abs(n)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Sqrt",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			n, err := argNumber("Sqrt", args, 0)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				return ErrorValue{Code: CodeArithmetic, Message: "Sqrt of a negative number"}, nil
			}
			return NumberValue{Val: math.Sqrt(n)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Power",
		Category: CategoryMath,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			base, err := argNumber("Power", args, 0)
			if err != nil {
				return nil, err
			}
			exp, err := argNumber("Power", args, 1)
			if err != nil {
				return nil, err
			}
			result := math.Pow(base, exp)
			if math.IsNaN(result) || math.IsInf(result, 0) {
				return ErrorValue{Code: CodeArithmetic, Message: "Power result out of range"}, nil
			}
			return NumberValue{Val: result}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Exp",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			n, err := argNumber("Exp", args, 0)
			if err != nil {
				return nil, err
			}
			return NumberValue{Val: math.Exp(n)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Ln",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			n, err := argNumber("Ln", args, 0)
			if err != nil {
				return nil, err
			}
			if n <= 0 {
				return ErrorValue{Code: CodeArithmetic, Message: "Ln of a non-positive number"}, nil
			}
			return NumberValue{Val: math.Log(n)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Log",
		Category: CategoryMath,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			n, err := argNumber("Log", args, 0)
			if err != nil {
				return nil, err
			}
			base := 10.0
			if len(args) == 2 {
				if base, err = argNumber("Log", args, 1); err != nil {
					return nil, err
				}
			}
			if n <= 0 || base <= 0 || base == 1 {
				return ErrorValue{Code: CodeArithmetic, Message: "Log of a non-positive number or invalid base"}, nil
			}
			return NumberValue{Val: math.Log(n) / math.Log(base)}, nil
		},
	})

	// Mod's result sign follows the divisor.
	r.mustRegister(&Descriptor{
		Name:     "Mod",
		Category: CategoryMath,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			a, err := argNumber("Mod", args, 0)
			if err != nil {
				return nil, err
			}
			b, err := argNumber("Mod", args, 1)
			if err != nil {
				return nil, err
			}
			if b == 0 {
				return ErrorValue{Code: CodeArithmetic, Message: "Mod by zero"}, nil
			}
			return NumberValue{Val: floorMod(a, b)}, nil
		},
	})
}

func roundWith(name string, args []Value, round func(float64) float64) (Value, error) {
	n, err := argNumber(name, args, 0)
	if err != nil {
		return nil, err
	}
	digits := 0
	if len(args) == 2 {
		if digits, err = argInt(name, args, 1); err != nil {
			return nil, err
		}
	}
	shift := math.Pow(10, float64(digits))
	return NumberValue{Val: round(n*shift) / shift}, nil
}
