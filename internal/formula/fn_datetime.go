package formula

import (
	"strings"
	"time"
)

// Datetime built-ins. All dates are UTC instants; timezone rendering is
// pushed to Text(date, format).
func (r *Registry) registerDatetimeFunctions() {
	r.mustRegister(&Descriptor{
		Name:     "Now",
		Category: CategoryDatetime,
		MinArgs:  0,
		MaxArgs:  0,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			return NewDate(time.Now()), nil
		},
	})

	r.mustRegister(&Descriptor{
		Name:     "Today",
		Category: CategoryDatetime,
		MinArgs:  0,
		MaxArgs:  0,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			now := time.Now().UTC()
			return NewDate(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)), nil
		},
	})

	for _, part := range []struct {
		name    string
		extract func(time.Time) int
	}{
		{"Year", func(t time.Time) int { return t.Year() }},
		{"Month", func(t time.Time) int { return int(t.Month()) }},
		{"Day", func(t time.Time) int { return t.Day() }},
		{"Hour", func(t time.Time) int { return t.Hour() }},
		{"Minute", func(t time.Time) int { return t.Minute() }},
		{"Second", func(t time.Time) int { return t.Second() }},
	} {
		extract := part.extract
		name := part.name
		r.mustRegister(&Descriptor{
			Name:     name,
			Category: CategoryDatetime,
			MinArgs:  1,
			MaxArgs:  1,
			Pure:     true,
			Fn: func(args []Value, ec *EvalContext) (Value, error) {
				t, err := argDate(name, args, 0)
				if err != nil {
					return ErrorValue{Code: CodeArithmetic, Message: name + " requires a date operand"}, nil
				}
				return NumberValue{Val: float64(extract(t))}, nil
			},
		})
	}

	r.mustRegister(&Descriptor{
		Name:     "DateAdd",
		Category: CategoryDatetime,
		MinArgs:  3,
		MaxArgs:  3,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			t, err := argDate("DateAdd", args, 0)
			if err != nil {
				return ErrorValue{Code: CodeArithmetic, Message: "DateAdd requires a date operand"}, nil
			}
			n, err := argInt("DateAdd", args, 1)
			if err != nil {
				return nil, err
			}
			unit, err := argText("DateAdd", args, 2)
			if err != nil {
				return nil, err
			}
			switch normalizeUnit(unit) {
			case "seconds":
				return NewDate(t.Add(time.Duration(n) * time.Second)), nil
			case "minutes":
				return NewDate(t.Add(time.Duration(n) * time.Minute)), nil
			case "hours":
				return NewDate(t.Add(time.Duration(n) * time.Hour)), nil
			case "days":
				return NewDate(t.AddDate(0, 0, n)), nil
			case "months":
				return NewDate(t.AddDate(0, n, 0)), nil
			case "years":
				return NewDate(t.AddDate(n, 0, 0)), nil
			default:
				return nil, newError(CodeType, Span{}, "DateAdd: unknown unit %q", unit)
			}
		},
	})

	// DateDiff(d1, d2, unit) = d2 - d1 in whole units, truncated toward
	// zero. Month and year differences are calendar-based.
	r.mustRegister(&Descriptor{
		Name:     "DateDiff",
		Category: CategoryDatetime,
		MinArgs:  3,
		MaxArgs:  3,
		Pure:     true,
		Fn: func(args []Value, ec *EvalContext) (Value, error) {
			d1, err1 := argDate("DateDiff", args, 0)
			d2, err2 := argDate("DateDiff", args, 1)
			if err1 != nil || err2 != nil {
				return ErrorValue{Code: CodeArithmetic, Message: "DateDiff requires date operands"}, nil
			}
			unit, err := argText("DateDiff", args, 2)
			if err != nil {
				return nil, err
			}
			switch normalizeUnit(unit) {
			case "seconds":
				return NumberValue{Val: float64(int64(d2.Sub(d1) / time.Second))}, nil
			case "minutes":
				return NumberValue{Val: float64(int64(d2.Sub(d1) / time.Minute))}, nil
			case "hours":
				return NumberValue{Val: float64(int64(d2.Sub(d1) / time.Hour))}, nil
			case "days":
				return NumberValue{Val: float64(int64(d2.Sub(d1) / (24 * time.Hour)))}, nil
			case "months":
				return NumberValue{Val: float64(calendarMonths(d1, d2))}, nil
			case "years":
				return NumberValue{Val: float64(calendarMonths(d1, d2) / 12)}, nil
			default:
				return nil, newError(CodeType, Span{}, "DateDiff: unknown unit %q", unit)
			}
		},
	})
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	if !strings.HasSuffix(u, "s") {
		u += "s"
	}
	return u
}

// calendarMonths counts whole months between two instants, signed.
func calendarMonths(d1, d2 time.Time) int {
	sign := 1
	if d2.Before(d1) {
		d1, d2 = d2, d1
		sign = -1
	}
	months := (d2.Year()-d1.Year())*12 + int(d2.Month()) - int(d1.Month())
	// Not a whole month until the day-of-month (and time) catches up.
	if d2.Day() < d1.Day() {
		months--
	}
	if months < 0 {
		months = 0
	}
	return sign * months
}
