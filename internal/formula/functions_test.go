package formula

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctions_Math(t *testing.T) {
	testCases := []struct {
		formula  string
		expected interface{}
	}{
		{"Round(2.5)", 3.0},
		{"Round(-2.5)", -3.0},
		{"Round(2.4)", 2.0},
		{"RoundUp(2.1)", 3.0},
		{"RoundUp(-2.1)", -3.0},
		{"RoundDown(2.9)", 2.0},
		{"RoundDown(-2.9)", -2.0},
		{"Abs(-5)", 5.0},
		{"Abs(5)", 5.0},
		{"Sqrt(9)", 3.0},
		{"Power(2, 10)", 1024.0},
		{"Exp(0)", 1.0},
		{"Ln(1)", 0.0},
		{"Log(100)", 2.0},
		{"Log(8, 2)", 3.0},
		{"Mod(7, 3)", 1.0},
		{"Mod(-7, 3)", 2.0},
		{"Mod(7, -3)", -2.0},
	}
	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			assert.Equal(t, tc.expected, evalString(t, tc.formula, nil).GoValue())
		})
	}
}

func TestFunctions_MathDomainErrors(t *testing.T) {
	for _, formula := range []string{
		"Sqrt(-1)",
		"Ln(0)",
		"Ln(-3)",
		"Log(0)",
		"Log(10, 1)",
		"Mod(5, 0)",
	} {
		t.Run(formula, func(t *testing.T) {
			val := evalString(t, formula, nil)
			ev, ok := val.(ErrorValue)
			require.True(t, ok, "expected an error value, got %s", val.Kind())
			assert.Equal(t, CodeArithmetic, ev.Code)
		})
	}
}

func TestFunctions_RoundTypeErrorsNameTheFunction(t *testing.T) {
	engine := NewEngine()
	for _, name := range []string{"Round", "RoundUp", "RoundDown"} {
		_, err := engine.Evaluate(name+`("x")`, nil)
		require.Error(t, err, "function: %s", name)
		ferr, ok := err.(*Error)
		require.True(t, ok)
		assert.Equal(t, CodeType, ferr.Code)
		assert.Contains(t, ferr.Message, name)
	}
}

func TestFunctions_Text(t *testing.T) {
	testCases := []struct {
		formula  string
		expected interface{}
	}{
		{`Upper("abc")`, "ABC"},
		{`Lower("ABC")`, "abc"},
		{`Trim("  x  ")`, "x"},
		{`Left("hello", 2)`, "he"},
		{`Left("hello", 99)`, "hello"},
		{`Right("hello", 3)`, "llo"},
		{`Mid("hello", 2, 3)`, "ell"},
		{`Mid("hello", 2)`, "ello"},
		{`Mid("hello", 99)`, ""},
		{`Len("héllo")`, 5.0},
		{`Concatenate("a", 1, "b")`, "a1b"},
		{`Concatenate("a", null, "b")`, "ab"},
		{`Replace("hello", 1, 2, "j")`, "jllo"},
		{`Substitute("aaa", "a", "b")`, "bbb"},
		{`Substitute("aaa", "a", "b", 2)`, "aba"},
		{`Text(3.14159, "0.00")`, "3.14"},
		{`Text(42)`, "42"},
	}
	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			assert.Equal(t, tc.expected, evalString(t, tc.formula, nil).GoValue())
		})
	}

	val := evalString(t, `Split("a,b,c", ",")`, nil)
	assert.Equal(t, []interface{}{"a", "b", "c"}, val.GoValue())
}

func TestFunctions_Logic(t *testing.T) {
	testCases := []struct {
		formula  string
		expected interface{}
	}{
		{"And(true, true, true)", true},
		{"And(true, false, true)", false},
		{"Or(false, false, true)", true},
		{"Or(false, false)", false},
		{"Not(true)", false},
		{"Not(0)", true},
		{`Switch(2, 1, "one", 2, "two", "other")`, "two"},
		{`Switch(9, 1, "one", 2, "two", "other")`, "other"},
	}
	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			assert.Equal(t, tc.expected, evalString(t, tc.formula, nil).GoValue())
		})
	}

	// Switch without a default yields Null.
	assert.Equal(t, KindNull, evalString(t, `Switch(9, 1, "one", 2, "two")`, nil).Kind())
}

func TestFunctions_Datetime(t *testing.T) {
	testCases := []struct {
		formula  string
		expected interface{}
	}{
		{`Year("2024-03-15")`, 2024.0},
		{`Month("2024-03-15")`, 3.0},
		{`Day("2024-03-15")`, 15.0},
		{`Hour("2024-03-15T10:30:45")`, 10.0},
		{`Minute("2024-03-15T10:30:45")`, 30.0},
		{`Second("2024-03-15T10:30:45")`, 45.0},
		{`DateDiff("2024-01-01", "2024-01-31", "days")`, 30.0},
		{`DateDiff("2024-01-01", "2024-03-01", "months")`, 2.0},
		{`DateDiff("2020-06-15", "2024-06-14", "years")`, 3.0},
		{`Year(DateAdd("2024-01-15", 1, "years"))`, 2025.0},
		{`Day(DateAdd("2024-01-15", 10, "days"))`, 25.0},
		{`Hour(DateAdd("2024-03-15T10:00:00", 5, "hours"))`, 15.0},
	}
	for _, tc := range testCases {
		t.Run(tc.formula, func(t *testing.T) {
			assert.Equal(t, tc.expected, evalString(t, tc.formula, nil).GoValue())
		})
	}

	// Part extraction from a non-date is a first-class error.
	val := evalString(t, "Year(42)", nil)
	ev, ok := val.(ErrorValue)
	require.True(t, ok)
	assert.Equal(t, CodeArithmetic, ev.Code)
}

func TestFunctions_Conversion(t *testing.T) {
	assert.Equal(t, 42.5, evalString(t, `Value("42.5")`, nil).GoValue())
	assert.Equal(t, true, evalString(t, "Boolean(1)", nil).GoValue())
	assert.Equal(t, false, evalString(t, "Boolean(0)", nil).GoValue())
	assert.Equal(t, false, evalString(t, `Boolean("")`, nil).GoValue())
	assert.Equal(t, false, evalString(t, "Boolean(null)", nil).GoValue())

	val := evalString(t, `Value("not a number")`, nil)
	ev, ok := val.(ErrorValue)
	require.True(t, ok)
	assert.Equal(t, CodeType, ev.Code)
}

func TestFunctions_Validation(t *testing.T) {
	ctx := NewContext(map[string]interface{}{"name": "", "age": 30}, nil, nil)

	assert.Equal(t, true, evalString(t, "IsBlank(name)", ctx).GoValue())
	assert.Equal(t, false, evalString(t, "IsBlank(age)", ctx).GoValue())
	assert.Equal(t, true, evalString(t, "IsBlank(null)", ctx).GoValue())
	assert.Equal(t, true, evalString(t, "IsNumeric(42)", ctx).GoValue())
	assert.Equal(t, true, evalString(t, `IsNumeric("3.5")`, ctx).GoValue())
	assert.Equal(t, false, evalString(t, `IsNumeric("abc")`, ctx).GoValue())
	assert.Equal(t, false, evalString(t, "IsNumeric(true)", ctx).GoValue())
}

func TestFunctions_DataAggregates(t *testing.T) {
	ctx := orderContext()

	assert.Equal(t, 3.0, evalString(t, "CountRows(orders)", ctx).GoValue())
	assert.Equal(t, 35.5, evalString(t, "Sum(orders.amount)", ctx).GoValue())
	assert.InDelta(t, 11.8333, evalString(t, "Average(orders.amount)", ctx).GoValue().(float64), 0.001)
	assert.Equal(t, 5.5, evalString(t, "Min(orders.amount)", ctx).GoValue())
	assert.Equal(t, 20.0, evalString(t, "Max(orders.amount)", ctx).GoValue())

	// Aggregates skip Nulls; an empty Sum is zero.
	sparse := NewContext(nil, map[string][]map[string]interface{}{
		"rows": {{"v": 1.0}, {"v": nil}, {"v": 2.0}},
		"none": {},
	}, nil)
	assert.Equal(t, 3.0, evalString(t, "Sum(rows.v)", sparse).GoValue())
	assert.Equal(t, 0.0, evalString(t, "Sum(none.v)", sparse).GoValue())
	assert.Equal(t, KindNull, evalString(t, "Average(none.v)", sparse).Kind())

	// Non-numeric elements surface as a first-class error.
	mixed := NewContext(nil, map[string][]map[string]interface{}{
		"rows": {{"v": 1.0}, {"v": "x"}},
	}, nil)
	val := evalString(t, "Sum(rows.v)", mixed)
	ev, ok := val.(ErrorValue)
	require.True(t, ok)
	assert.Equal(t, CodeType, ev.Code)
}

func TestFunctions_SortDistinctFirstLast(t *testing.T) {
	ctx := orderContext()

	sorted := evalString(t, "Sort(orders, amount)[1].amount", ctx)
	assert.Equal(t, 5.5, sorted.GoValue())

	sortedDesc := evalString(t, `Sort(orders, amount, "desc")[1].amount`, ctx)
	assert.Equal(t, 20.0, sortedDesc.GoValue())

	distinct := evalString(t, "Distinct(orders, region)", ctx)
	assert.Equal(t, []interface{}{"east", "west"}, distinct.GoValue())

	first := evalString(t, "First(orders)", ctx)
	assert.Equal(t, KindRecord, first.Kind())
	assert.Equal(t, 10.0, evalString(t, "First(orders).amount", ctx).GoValue())
	assert.Equal(t, 5.5, evalString(t, "Last(orders).amount", ctx).GoValue())

	firstTwo := evalString(t, "First(orders, 2)", ctx)
	assert.Len(t, firstTwo.(ListValue).Vals, 2)
	lastTwo := evalString(t, "Last(orders, 2)", ctx)
	assert.Len(t, lastTwo.(ListValue).Vals, 2)

	// Empty collections yield Null for the single-element form.
	empty := NewContext(nil, map[string][]map[string]interface{}{"rows": {}}, nil)
	assert.Equal(t, KindNull, evalString(t, "First(rows)", empty).Kind())
	assert.Equal(t, KindNull, evalString(t, "Last(rows)", empty).Kind())
}

func TestRegistry_CaseInsensitiveLookupAndCatalog(t *testing.T) {
	reg := NewRegistry()

	for _, name := range []string{"Sum", "sum", "SUM", "sUm"} {
		d, ok := reg.Lookup(name)
		require.True(t, ok, "lookup: %s", name)
		assert.Equal(t, "Sum", d.Name)
	}

	_, ok := reg.Lookup("NoSuchFunction")
	assert.False(t, ok)

	infos := reg.List()
	assert.Equal(t, reg.Len(), len(infos))
	assert.NotEmpty(t, infos)

	// The catalog is sorted by name.
	for i := 1; i < len(infos); i++ {
		assert.LessOrEqual(t, infos[i-1].Name, infos[i].Name)
	}
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	reg := NewRegistry()
	err := reg.Register(&Descriptor{Name: "sum", MinArgs: 1, MaxArgs: 1, Category: CategoryMath,
		Fn: func(args []Value, ec *EvalContext) (Value, error) { return NullValue{}, nil }})
	require.Error(t, err)
}
