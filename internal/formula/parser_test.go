package formula

import (
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ValidForms(t *testing.T) {
	reg := NewRegistry()
	testCases := []string{
		"1 + 2 * 3",
		`"a" + "b"`,
		"(1 + 2) * 3",
		"-x + Not y",
		"a.b.c",
		"orders[1].amount",
		"items[i + 1]",
		`if x > 0 then "pos" else "neg"`,
		`if (x > 0) then "pos" else "neg"`,
		`if (x > 0) And (y > 0) then "both" else "not"`,
		`if If(x > 0, 1, 0) = 1 then "pos" else "neg"`,
		`If(x > 0, "pos", "neg")`,
		"And(a, b, c)",
		"a And b Or c",
		"a || (b && c)",
		"Filter(orders, amount > 10)",
		"LookUp(users, id = 42, name)",
		"Sum(orders.amount)",
		"Switch(grade, 1, \"A\", 2, \"B\", \"other\")",
		"true",
		"null",
	}
	for _, source := range testCases {
		_, err := Parse(source, reg)
		assert.NoError(t, err, "formula: %s", source)
	}
}

func TestParse_TruncatedExpressionPosition(t *testing.T) {
	_, err := Parse("1 + ", NewRegistry())
	require.Error(t, err)
	ferr, ok := err.(*Error)
	require.True(t, ok)
	assert.Equal(t, CodeParse, ferr.Code)
	assert.Equal(t, 4, ferr.Position())
}

func TestParse_ArityCheckedAtParseTime(t *testing.T) {
	reg := NewRegistry()

	_, err := Parse("Upper()", reg)
	require.Error(t, err)
	assert.Equal(t, CodeArity, err.(*Error).Code)

	_, err = Parse(`Upper("a", "b")`, reg)
	require.Error(t, err)
	assert.Equal(t, CodeArity, err.(*Error).Code)

	// Unknown functions are deferred to evaluation.
	_, err = Parse("Frobnicate(1, 2, 3)", reg)
	assert.NoError(t, err)
}

func TestParse_ErrorMessages(t *testing.T) {
	reg := NewRegistry()
	sources := []string{
		"1 + ",
		"1 < 2 < 3",
		"(1 + 2",
		"orders[1",
		"a.",
		"a ! b",
		"1 2",
		"If(a,,b)",
		"if a then b",
		"Upper()",
		"",
	}
	for _, source := range sources {
		_, err := Parse(source, reg)
		require.Error(t, err, "formula: %q", source)
		snaps.MatchSnapshot(t, source+" => "+err.Error())
	}
}

func TestParse_WordOperatorsAsCalls(t *testing.T) {
	reg := NewRegistry()

	// Operand position with '(' parses as a call.
	expr, err := Parse("And(a, b)", reg)
	require.NoError(t, err)
	call, ok := expr.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "And", call.Name)
	assert.Len(t, call.Args, 2)

	// Infix position stays an operator even when followed by '('.
	expr, err = Parse("a And (b)", reg)
	require.NoError(t, err)
	bin, ok := expr.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, OpAnd, bin.Op)
}

func TestParse_SpansCoverSource(t *testing.T) {
	expr, err := Parse("  1 + 2  ", NewRegistry())
	require.NoError(t, err)
	span := expr.Span()
	assert.Equal(t, 2, span.Start)
	assert.Equal(t, 7, span.End)
}

func TestValidate(t *testing.T) {
	reg := NewRegistry()
	assert.Nil(t, Validate("1 + 2", reg))

	ferr := Validate("1 + ", reg)
	require.NotNil(t, ferr)
	assert.Equal(t, CodeParse, ferr.Code)
}
