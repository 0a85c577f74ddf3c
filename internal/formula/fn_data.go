package formula

import "sort"

// Data built-ins. Filter, LookUp, Sort and Distinct take a predicate or
// key expression rather than a closure: the iteration record is bound
// as the current values scope while the sub-expression evaluates, with
// outer names still reachable through the parent scope.
func (r *Registry) registerDataFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "Filter",
		Category: CategoryData,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			rows, err := evalCollection("Filter", args[0], ec)
			if err != nil {
				return nil, err
			}
			var matched []Value
			for _, row := range rows {
				val, err := ec.evalIn(rowScope(ec, row), args[1])
				if err != nil {
					return nil, err
				}
				if ToBool(val) {
					matched = append(matched, row)
				}
			}
			return ListValue{Vals: matched}, nil
		},
	})

	// LookUp(coll, predicate, projection?) — first matching row, with
	// the optional projection evaluated in that row's scope. Null when
	// nothing matches.
	r.mustRegister(&Descriptor{
		Name:     "LookUp",
		Category: CategoryData,
		MinArgs:  2,
		MaxArgs:  3,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			rows, err := evalCollection("LookUp", args[0], ec)
			if err != nil {
				return nil, err
			}
			for _, row := range rows {
				scope := rowScope(ec, row)
				val, err := ec.evalIn(scope, args[1])
				if err != nil {
					return nil, err
				}
				if !ToBool(val) {
					continue
				}
				if len(args) == 3 {
					return ec.evalIn(scope, args[2])
				}
				return row, nil
			}
			return NullValue{}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Sort",
		Category: CategoryData,
		MinArgs:  2,
		MaxArgs:  3,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			rows, err := evalCollection("Sort", args[0], ec)
			if err != nil {
				return nil, err
			}
			descending := false
			if len(args) == 3 {
				order, err := args[2].Eval(ec)
				if err != nil {
					return nil, err
				}
				switch ToText(order) {
				case "asc", "ascending":
				case "desc", "descending":
					descending = true
				default:
					return nil, newError(CodeType, args[2].Span(), "Sort: order must be \"asc\" or \"desc\"")
				}
			}

			keys := make([]Value, len(rows))
			for i, row := range rows {
				key, err := ec.evalIn(rowScope(ec, row), args[1])
				if err != nil {
					return nil, err
				}
				keys[i] = key
			}

			sorted := make([]Value, len(rows))
			copy(sorted, rows)
			order := make([]int, len(rows))
			for i := range order {
				order[i] = i
			}
			var sortErr error
			sort.SliceStable(order, func(a, b int) bool {
				cmp, err := compareValues(keys[order[a]], keys[order[b]])
				if err != nil && sortErr == nil {
					sortErr = newError(CodeType, span, "Sort: %s", err.Error())
				}
				if descending {
					return cmp > 0
				}
				return cmp < 0
			})
			if sortErr != nil {
				return nil, sortErr
			}
			for i, idx := range order {
				sorted[i] = rows[idx]
			}
			return ListValue{Vals: sorted}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "CountRows",
		Category: CategoryData,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			rows, err := argList("CountRows", args, 0)
			if err != nil {
				return nil, err
			}
			return NumberValue{Val: float64(len(rows))}, nil
		},
	})

	r.mustRegister(aggregateDescriptor("Sum", func(nums []float64) Value {
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return NumberValue{Val: total}
	}))
	r.mustRegister(aggregateDescriptor("Average", func(nums []float64) Value {
		if len(nums) == 0 {
			return NullValue{}
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return NumberValue{Val: total / float64(len(nums))}
	}))
	r.mustRegister(aggregateDescriptor("Min", func(nums []float64) Value {
		if len(nums) == 0 {
			return NullValue{}
		}
		min := nums[0]
		for _, n := range nums[1:] {
			if n < min {
				min = n
			}
		}
		return NumberValue{Val: min}
	}))
	r.mustRegister(aggregateDescriptor("Max", func(nums []float64) Value {
		if len(nums) == 0 {
			return NullValue{}
		}
		max := nums[0]
		for _, n := range nums[1:] {
			if n > max {
				max = n
			}
		}
		return NumberValue{Val: max}
	}))

	// Distinct(coll, keyExpr?) — distinct key values in first-seen
	// order; without a key, distinct raw values.
	r.mustRegister(&Descriptor{
		Name:     "Distinct",
		Category: CategoryData,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Special: func(args []Expr, span Span, ec *EvalContext) (Value, error) {
			rows, err := evalCollection("Distinct", args[0], ec)
			if err != nil {
				return nil, err
			}
			var out []Value
			for _, row := range rows {
				key := row
				if len(args) == 2 {
					if key, err = ec.evalIn(rowScope(ec, row), args[1]); err != nil {
						return nil, err
					}
				}
				seen := false
				for _, existing := range out {
					if existing.Equals(key) {
						seen = true
						break
					}
				}
				if !seen {
					out = append(out, key)
				}
			}
			return ListValue{Vals: out}, nil
		},
	})

	// First/Last return a single element without n, or the leading/
	// trailing n elements with it.
	r.mustRegister(&Descriptor{
		Name:     "First",
		Category: CategoryData,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			rows, err := argList("First", args, 0)
			if err != nil {
				return nil, err
			}
			if len(args) == 1 {
				if len(rows) == 0 {
					return NullValue{}, nil
				}
				return rows[0], nil
			}
			n, err := argInt("First", args, 1)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n = 0
			}
			if n > len(rows) {
				n = len(rows)
			}
			return ListValue{Vals: append([]Value(nil), rows[:n]...)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Last",
		Category: CategoryData,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			rows, err := argList("Last", args, 0)
			if err != nil {
				return nil, err
			}
			if len(args) == 1 {
				if len(rows) == 0 {
					return NullValue{}, nil
				}
				return rows[len(rows)-1], nil
			}
			n, err := argInt("Last", args, 1)
			if err != nil {
				return nil, err
			}
			if n < 0 {
				n = 0
			}
			if n > len(rows) {
				n = len(rows)
			}
			return ListValue{Vals: append([]Value(nil), rows[len(rows)-n:]...)}, nil
		},
	})
}

// aggregateDescriptor builds a numeric aggregate that skips Nulls and
// returns a TYPE_MISMATCH error value on non-numeric elements.
func aggregateDescriptor(name string, agg func(nums []float64) Value) *Descriptor {
	return &Descriptor{
		Name:     name,
		Category: CategoryData,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			rows, err := argList(name, args, 0)
			if err != nil {
				return nil, err
			}
			nums := make([]float64, 0, len(rows))
			for _, row := range rows {
				if row.Kind() == KindNull {
					continue
				}
				n, ok := ToNumber(row)
				if !ok {
					return ErrorValue{Code: CodeType, Message: name + ": collection contains a non-numeric " + string(row.Kind())}, nil
				}
				nums = append(nums, n)
			}
			return agg(nums), nil
		},
	}
}

// compareValues orders two sort keys of the same shape.
func compareValues(a, b Value) (int, error) {
	if at, aok := a.(TextValue); aok {
		if bt, bok := b.(TextValue); bok {
			switch {
			case at.Val < bt.Val:
				return -1, nil
			case at.Val > bt.Val:
				return 1, nil
			}
			return 0, nil
		}
	}
	if ad, aok := a.(DateValue); aok {
		if bd, bok := b.(DateValue); bok {
			switch {
			case ad.Val.Before(bd.Val):
				return -1, nil
			case ad.Val.After(bd.Val):
				return 1, nil
			}
			return 0, nil
		}
	}
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if !aok || !bok {
		return 0, newError(CodeType, Span{}, "cannot order %s against %s", a.Kind(), b.Kind())
	}
	switch {
	case an < bn:
		return -1, nil
	case an > bn:
		return 1, nil
	}
	return 0, nil
}
