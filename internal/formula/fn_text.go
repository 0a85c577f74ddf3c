package formula

import (
	"strconv"
	"strings"
)

// Text built-ins. Positions are 1-based and rune-aware, matching the
// user-facing dialect rather than Go's byte indexing.
func (r *Registry) registerTextFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "Text",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			if len(args) == 1 {
				return TextValue{Val: ToText(args[0])}, nil
			}
			format, err := argText("Text", args, 1)
			if err != nil {
				return nil, err
			}
			return TextValue{Val: formatValue(args[0], format)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Concatenate",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  ArityVariadic,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			var sb strings.Builder
			for _, arg := range args {
				if arg.Kind() == KindNull {
					continue
				}
				sb.WriteString(ToText(arg))
			}
			return TextValue{Val: sb.String()}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Upper",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Upper", args, 0)
			if err != nil {
				return nil, err
			}
			return TextValue{Val: strings.ToUpper(s)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Lower",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Lower", args, 0)
			if err != nil {
				return nil, err
			}
			return TextValue{Val: strings.ToLower(s)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Trim",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Trim", args, 0)
			if err != nil {
				return nil, err
			}
			return TextValue{Val: strings.TrimSpace(s)}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Left",
		Category: CategoryText,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Left", args, 0)
			if err != nil {
				return nil, err
			}
			n, err := argInt("Left", args, 1)
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			if n < 0 {
				n = 0
			}
			if n > len(runes) {
				n = len(runes)
			}
			return TextValue{Val: string(runes[:n])}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Right",
		Category: CategoryText,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Right", args, 0)
			if err != nil {
				return nil, err
			}
			n, err := argInt("Right", args, 1)
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			if n < 0 {
				n = 0
			}
			if n > len(runes) {
				n = len(runes)
			}
			return TextValue{Val: string(runes[len(runes)-n:])}, nil
		},
	})

	// Mid(s, start, len?) — start is 1-based; omitted len means to the
	// end of the string.
	r.mustRegister(&Descriptor{
		Name:     "Mid",
		Category: CategoryText,
		MinArgs:  2,
		MaxArgs:  3,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Mid", args, 0)
			if err != nil {
				return nil, err
			}
			start, err := argInt("Mid", args, 1)
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			if start < 1 {
				start = 1
			}
			if start > len(runes) {
				return TextValue{Val: ""}, nil
			}
			end := len(runes)
			if len(args) == 3 {
				n, err := argInt("Mid", args, 2)
				if err != nil {
					return nil, err
				}
				if n < 0 {
					n = 0
				}
				if start-1+n < end {
					end = start - 1 + n
				}
			}
			return TextValue{Val: string(runes[start-1 : end])}, nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Len",
		Category: CategoryText,
		MinArgs:  1,
		MaxArgs:  1,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Len", args, 0)
			if err != nil {
				return nil, err
			}
			return NumberValue{Val: float64(len([]rune(s)))}, nil
		},
	})

	// Replace(s, start, count, new) — positional replacement, 1-based.
	r.mustRegister(&Descriptor{
		Name:     "Replace",
		Category: CategoryText,
		MinArgs:  4,
		MaxArgs:  4,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Replace", args, 0)
			if err != nil {
				return nil, err
			}
			start, err := argInt("Replace", args, 1)
			if err != nil {
				return nil, err
			}
			count, err := argInt("Replace", args, 2)
			if err != nil {
				return nil, err
			}
			repl, err := argText("Replace", args, 3)
			if err != nil {
				return nil, err
			}
			runes := []rune(s)
			if start < 1 {
				start = 1
			}
			if start > len(runes)+1 {
				start = len(runes) + 1
			}
			if count < 0 {
				count = 0
			}
			end := start - 1 + count
			if end > len(runes) {
				end = len(runes)
			}
			return TextValue{Val: string(runes[:start-1]) + repl + string(runes[end:])}, nil
		},
	})

	// Substitute(s, old, new, occurrence?) — replaces every occurrence,
	// or only the n-th when given.
	r.mustRegister(&Descriptor{
		Name:     "Substitute",
		Category: CategoryText,
		MinArgs:  3,
		MaxArgs:  4,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Substitute", args, 0)
			if err != nil {
				return nil, err
			}
			old, err := argText("Substitute", args, 1)
			if err != nil {
				return nil, err
			}
			repl, err := argText("Substitute", args, 2)
			if err != nil {
				return nil, err
			}
			if old == "" {
				return TextValue{Val: s}, nil
			}
			if len(args) < 4 {
				return TextValue{Val: strings.ReplaceAll(s, old, repl)}, nil
			}
			occurrence, err := argInt("Substitute", args, 3)
			if err != nil {
				return nil, err
			}
			if occurrence < 1 {
				return TextValue{Val: s}, nil
			}
			idx := 0
			for n := 0; ; n++ {
				found := strings.Index(s[idx:], old)
				if found < 0 {
					return TextValue{Val: s}, nil
				}
				idx += found
				if n == occurrence-1 {
					return TextValue{Val: s[:idx] + repl + s[idx+len(old):]}, nil
				}
				idx += len(old)
			}
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Split",
		Category: CategoryText,
		MinArgs:  2,
		MaxArgs:  2,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			s, err := argText("Split", args, 0)
			if err != nil {
				return nil, err
			}
			sep, err := argText("Split", args, 1)
			if err != nil {
				return nil, err
			}
			parts := strings.Split(s, sep)
			vals := make([]Value, len(parts))
			for i, p := range parts {
				vals[i] = TextValue{Val: p}
			}
			return ListValue{Vals: vals}, nil
		},
	})
}

// formatValue renders a value against a display format. Dates accept
// the usual yyyy/MM/dd/HH/mm/ss tokens; numbers accept a "0.00"-style
// pattern whose fractional digits fix the precision.
func formatValue(v Value, format string) string {
	switch val := v.(type) {
	case DateValue:
		layout := strings.NewReplacer(
			"yyyy", "2006",
			"MM", "01",
			"dd", "02",
			"HH", "15",
			"mm", "04",
			"ss", "05",
		).Replace(format)
		return val.Val.Format(layout)
	case NumberValue:
		if dot := strings.IndexByte(format, '.'); dot >= 0 {
			decimals := 0
			for _, c := range format[dot+1:] {
				if c == '0' || c == '#' {
					decimals++
				}
			}
			return strconv.FormatFloat(val.Val, 'f', decimals, 64)
		}
		return strconv.FormatFloat(val.Val, 'f', 0, 64)
	default:
		return ToText(v)
	}
}
