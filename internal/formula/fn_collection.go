package formula

// Collection built-ins are the only mutators in the engine: they write
// to the Context's collections (and, for Set, variables), never to its
// read-only values. The target name is taken from a bare identifier or
// a text literal, so collections can be created on first use.
func (r *Registry) registerCollectionFunctions() {
	// Collect(name, record) — appends and returns the collected row.
	r.mustRegister(&Descriptor{
		Name:     "Collect",
		Category: CategoryCollection,
		MinArgs:  2,
		MaxArgs:  2,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			name, err := collectionName("Collect", args[0])
			if err != nil {
				return nil, err
			}
			row, err := args[1].Eval(ec)
			if err != nil {
				return nil, err
			}
			if ev, ok := row.(ErrorValue); ok {
				return ev, nil
			}
			ec.Ctx.AppendToCollection(name, row)
			return row, nil
		},
	})

	// ClearCollect(name, source) — replaces the collection with the
	// source list (or a single record).
	r.mustRegister(&Descriptor{
		Name:     "ClearCollect",
		Category: CategoryCollection,
		MinArgs:  2,
		MaxArgs:  2,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			name, err := collectionName("ClearCollect", args[0])
			if err != nil {
				return nil, err
			}
			source, err := args[1].Eval(ec)
			if err != nil {
				return nil, err
			}
			var rows []Value
			switch v := source.(type) {
			case ErrorValue:
				return v, nil
			case ListValue:
				rows = append([]Value(nil), v.Vals...)
			case NullValue:
			default:
				rows = []Value{v}
			}
			ec.Ctx.SetCollection(name, rows)
			return ListValue{Vals: rows}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Clear",
		Category: CategoryCollection,
		MinArgs:  1,
		MaxArgs:  1,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			name, err := collectionName("Clear", args[0])
			if err != nil {
				return nil, err
			}
			ec.Ctx.SetCollection(name, nil)
			return NullValue{}, nil
		},
	})

	// Set(name, value) — writes a request-scoped variable and returns
	// the value.
	r.mustRegister(&Descriptor{
		Name:     "Set",
		Category: CategoryOther,
		MinArgs:  2,
		MaxArgs:  2,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			name, err := collectionName("Set", args[0])
			if err != nil {
				return nil, err
			}
			val, err := args[1].Eval(ec)
			if err != nil {
				return nil, err
			}
			ec.Ctx.SetVariable(name, val)
			return val, nil
		},
	})
}
