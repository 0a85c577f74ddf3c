package dtable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/internal/formula"
)

func discountTable(policy HitPolicy) *Table {
	return &Table{
		ID:        "discount",
		Name:      "Order discount",
		Inputs:    []string{"total", "tier"},
		Outputs:   []string{"discount"},
		HitPolicy: policy,
		DefaultOutput: map[string]interface{}{
			"discount": 0.0,
		},
		Rules: []*Rule{
			{
				ID:         "gold",
				Conditions: map[string]string{"tier": `tier = "gold"`},
				Outputs:    map[string]string{"discount": "0.2"},
				Priority:   10,
			},
			{
				ID:         "big-order",
				Conditions: map[string]string{"total": "total > 100"},
				Outputs:    map[string]string{"discount": "0.1"},
				Priority:   5,
			},
		},
	}
}

func compile(t *testing.T, table *Table) (*Compiled, *Executor) {
	t.Helper()
	engine := formula.NewEngine()
	compiled, err := Compile(table, engine)
	require.NoError(t, err)
	return compiled, NewExecutor(engine)
}

func TestExecute_FirstPolicy(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyFirst))

	// Both rules match; first declared wins.
	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"discount": 0.2}, result.Outputs)

	// Only the second matches.
	result, err = executor.Execute(compiled, map[string]interface{}{"tier": "silver", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"big-order"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"discount": 0.1}, result.Outputs)
}

func TestExecute_NoMatchUsesDefault(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyFirst))

	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "silver", "total": 10})
	require.NoError(t, err)
	assert.Empty(t, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"discount": 0.0}, result.Outputs)
}

func TestExecute_UniquePolicy(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyUnique))

	// One match is fine.
	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold"}, result.MatchedRules)

	// Two matches violate the policy.
	_, err = executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.Error(t, err)
	ferr, ok := err.(*formula.Error)
	require.True(t, ok)
	assert.Equal(t, formula.CodeHitPolicy, ferr.Code)
	assert.Contains(t, ferr.Message, "gold")
	assert.Contains(t, ferr.Message, "big-order")
}

func TestExecute_PriorityPolicy(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyPriority))

	// Both match; gold has the higher priority.
	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"discount": 0.2}, result.Outputs)
}

func TestExecute_PriorityTieKeepsDeclarationOrder(t *testing.T) {
	table := discountTable(PolicyPriority)
	table.Rules[0].Priority = 5
	table.Rules[1].Priority = 5
	compiled, executor := compile(t, table)

	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold"}, result.MatchedRules)
}

func TestExecute_AnyPolicy(t *testing.T) {
	table := discountTable(PolicyAny)
	// Make both rules agree on their output.
	table.Rules[0].Outputs["discount"] = "0.1"
	compiled, executor := compile(t, table)

	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold", "big-order"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"discount": 0.1}, result.Outputs)
}

func TestExecute_AnyPolicyDisagreementFails(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyAny))

	_, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.Error(t, err)
	ferr := err.(*formula.Error)
	assert.Equal(t, formula.CodeHitPolicy, ferr.Code)
	assert.Contains(t, ferr.Message, "disagree")
}

func TestExecute_CollectPolicy(t *testing.T) {
	compiled, executor := compile(t, discountTable(PolicyCollect))

	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"gold", "big-order"}, result.MatchedRules)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"discount": 0.2},
		map[string]interface{}{"discount": 0.1},
	}, result.Outputs)

	// No matches collect to an empty list, not the default.
	result, err = executor.Execute(compiled, map[string]interface{}{"tier": "silver", "total": 10})
	require.NoError(t, err)
	assert.Empty(t, result.MatchedRules)
	assert.Equal(t, []interface{}{}, result.Outputs)
}

func TestExecute_ConditionErrorIsDiagnosticNotMatch(t *testing.T) {
	table := discountTable(PolicyFirst)
	table.Rules[0].Conditions["tier"] = "missing > 1"
	compiled, executor := compile(t, table)

	result, err := executor.Execute(compiled, map[string]interface{}{"tier": "gold", "total": 200})
	require.NoError(t, err)
	assert.Equal(t, []string{"big-order"}, result.MatchedRules)
	require.Len(t, result.Diagnostics, 1)
	assert.Equal(t, "gold", result.Diagnostics[0].RuleID)
	assert.Equal(t, "tier", result.Diagnostics[0].Input)
}

func TestExecute_AbsentConditionMatchesAnything(t *testing.T) {
	table := &Table{
		ID:        "fallback",
		Inputs:    []string{"x"},
		Outputs:   []string{"label"},
		HitPolicy: PolicyFirst,
		Rules: []*Rule{
			{ID: "always", Conditions: map[string]string{}, Outputs: map[string]string{"label": `"matched"`}},
		},
	}
	compiled, executor := compile(t, table)

	result, err := executor.Execute(compiled, map[string]interface{}{"x": 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"always"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"label": "matched"}, result.Outputs)
}

func TestExecute_AddingNonMatchingRuleKeepsOutputs(t *testing.T) {
	base := discountTable(PolicyFirst)
	compiled, executor := compile(t, base)
	input := map[string]interface{}{"tier": "gold", "total": 10}

	before, err := executor.Execute(compiled, input)
	require.NoError(t, err)

	extended := discountTable(PolicyFirst)
	extended.Rules = append(extended.Rules, &Rule{
		ID:         "never",
		Conditions: map[string]string{"total": "total < 0"},
		Outputs:    map[string]string{"discount": "0.99"},
	})
	compiledExt, executorExt := compile(t, extended)

	after, err := executorExt.Execute(compiledExt, input)
	require.NoError(t, err)
	assert.Equal(t, before.MatchedRules, after.MatchedRules)
	assert.Equal(t, before.Outputs, after.Outputs)
}

func TestCompile_Validation(t *testing.T) {
	engine := formula.NewEngine()

	_, err := Compile(&Table{ID: "", HitPolicy: PolicyFirst}, engine)
	require.Error(t, err)

	_, err = Compile(&Table{ID: "t", HitPolicy: "bogus"}, engine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown hit policy")

	_, err = Compile(&Table{
		ID:        "t",
		HitPolicy: PolicyFirst,
		Rules: []*Rule{
			{ID: "r1", Conditions: map[string]string{"x": "1 + "}},
		},
	}, engine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "condition")
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	doc := `tables:
  - id: shipping
    name: Shipping cost
    inputs: [weight]
    outputs: [cost]
    hit_policy: first
    default_output:
      cost: 0
    rules:
      - id: heavy
        conditions:
          weight: weight > 20
        outputs:
          cost: "25"
      - id: standard
        conditions:
          weight: weight > 0
        outputs:
          cost: "10"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shipping.tables.yaml"), []byte(doc), 0o644))

	engine := formula.NewEngine()
	registry := NewRegistry()
	require.NoError(t, registry.LoadDir(dir, engine))
	assert.Equal(t, 1, registry.Count())

	compiled, ok := registry.Get("shipping")
	require.True(t, ok)

	executor := NewExecutor(engine)
	result, err := executor.Execute(compiled, map[string]interface{}{"weight": 30})
	require.NoError(t, err)
	assert.Equal(t, []string{"heavy"}, result.MatchedRules)
	assert.Equal(t, map[string]interface{}{"cost": 25.0}, result.Outputs)
}
