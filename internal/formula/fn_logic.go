package formula

// Logic built-ins. If, And, Or and Switch are special forms: they
// receive raw argument ASTs and evaluate only the arms they need.
func (r *Registry) registerLogicFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "If",
		Category: CategoryLogic,
		MinArgs:  2,
		MaxArgs:  3,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			cond, err := args[0].Eval(ec)
			if err != nil {
				return nil, err
			}
			if ToBool(cond) {
				return args[1].Eval(ec)
			}
			if len(args) == 3 {
				return args[2].Eval(ec)
			}
			return NullValue{}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "And",
		Category: CategoryLogic,
		MinArgs:  2,
		MaxArgs:  ArityVariadic,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			for _, arg := range args {
				val, err := arg.Eval(ec)
				if err != nil {
					return nil, err
				}
				if !ToBool(val) {
					return BoolValue{Val: false}, nil
				}
			}
			return BoolValue{Val: true}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Or",
		Category: CategoryLogic,
		MinArgs:  2,
		MaxArgs:  ArityVariadic,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			for _, arg := range args {
				val, err := arg.Eval(ec)
				if err != nil {
					return nil, err
				}
				if ToBool(val) {
					return BoolValue{Val: true}, nil
				}
			}
			return BoolValue{Val: false}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Not",
		Category: CategoryLogic,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return BoolValue{Val: !ToBool(args[0])}, nil
		},
	})

	// Switch(value, case1, result1, ..., default?) — first equal case
	// wins; the trailing odd argument is the default.
	r.mustRegister(&Descriptor{
		Name:     "Switch",
		Category: CategoryLogic,
		MinArgs:  3,
		MaxArgs:  ArityVariadic,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			subject, err := args[0].Eval(ec)
			if err != nil {
				return nil, err
			}
			rest := args[1:]
			for i := 0; i+1 < len(rest); i += 2 {
				caseVal, err := rest[i].Eval(ec)
				if err != nil {
					return nil, err
				}
				if subject.Equals(caseVal) {
					return rest[i+1].Eval(ec)
				}
			}
			if len(rest)%2 == 1 {
				return rest[len(rest)-1].Eval(ec)
			}
			return NullValue{}, nil
		},
	})
}
