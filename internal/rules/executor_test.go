package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridbase/gridbase/internal/formula"
)

func testEngine() *formula.Engine {
	return formula.NewEngine()
}

func TestExecute_ConditionMetRunsAction(t *testing.T) {
	engine := testEngine()
	executor := NewExecutor(engine)

	rule := &Rule{
		ID:        "discount",
		Type:      TypeCalculation,
		Condition: "total > 100",
		Action:    "total * 0.9",
		Enabled:   true,
	}

	result := executor.Execute(rule, map[string]interface{}{"total": 200})
	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.True(t, result.ConditionMet)
	assert.Equal(t, 180.0, result.Action.GoValue())
}

func TestExecute_ConditionNotMet(t *testing.T) {
	executor := NewExecutor(testEngine())

	rule := &Rule{
		ID:        "discount",
		Type:      TypeCalculation,
		Condition: "total > 100",
		Action:    "total * 0.9",
		Enabled:   true,
	}

	result := executor.Execute(rule, map[string]interface{}{"total": 50})
	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.False(t, result.ConditionMet)
	assert.Nil(t, result.Action)
}

func TestExecute_DisabledRuleSkipsAction(t *testing.T) {
	executor := NewExecutor(testEngine())

	rule := &Rule{
		ID:        "discount",
		Type:      TypeCalculation,
		Condition: "true",
		Action:    "1 / 0",
		Enabled:   false,
	}

	result := executor.Execute(rule, nil)
	require.Nil(t, result.Error)
	assert.True(t, result.Success)
	assert.True(t, result.ConditionMet)
	assert.Nil(t, result.Action)
}

func TestExecute_ConditionErrors(t *testing.T) {
	executor := NewExecutor(testEngine())

	// Undefined name in the condition.
	result := executor.Execute(&Rule{
		ID:        "broken",
		Type:      TypeCondition,
		Condition: "missing > 1",
		Enabled:   true,
	}, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, formula.CodeUndefined, result.Error.Code)
	assert.False(t, result.Success)

	// Arithmetic error value in the condition.
	result = executor.Execute(&Rule{
		ID:        "div",
		Type:      TypeCondition,
		Condition: "1 / 0",
		Enabled:   true,
	}, nil)
	require.NotNil(t, result.Error)
	assert.Equal(t, formula.CodeArithmetic, result.Error.Code)
	assert.False(t, result.ConditionMet)
}

func TestExecuteSet_PriorityOrderAndDisabled(t *testing.T) {
	engine := testEngine()
	registry := NewRegistry()

	rulesToLoad := []*Rule{
		{ID: "low", Type: TypeCondition, Condition: "true", Priority: 1, Enabled: true},
		{ID: "high", Type: TypeCondition, Condition: "true", Priority: 10, Enabled: true},
		{ID: "off", Type: TypeCondition, Condition: "true", Priority: 99, Enabled: false},
		{ID: "mid", Type: TypeCondition, Condition: "true", Priority: 5, Enabled: true},
	}
	for _, r := range rulesToLoad {
		require.NoError(t, registry.Register(r, engine))
	}

	executor := NewExecutor(engine)
	results := executor.ExecuteSet(registry.ByPriority(), nil)

	require.Len(t, results, 3)
	assert.Equal(t, "high", results[0].RuleID)
	assert.Equal(t, "mid", results[1].RuleID)
	assert.Equal(t, "low", results[2].RuleID)
}

func TestRegistry_ValidatesOnRegister(t *testing.T) {
	engine := testEngine()
	registry := NewRegistry()

	err := registry.Register(&Rule{
		ID:        "bad",
		Type:      TypeCondition,
		Condition: "1 + ",
		Enabled:   true,
	}, engine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid condition")

	err = registry.Register(&Rule{ID: "", Type: TypeCondition, Condition: "true"}, engine)
	require.Error(t, err)

	err = registry.Register(&Rule{ID: "x", Type: "bogus", Condition: "true"}, engine)
	require.Error(t, err)

	ok := &Rule{ID: "ok", Type: TypeValidation, Condition: "true", Enabled: true}
	require.NoError(t, registry.Register(ok, engine))
	err = registry.Register(&Rule{ID: "ok", Type: TypeValidation, Condition: "true"}, engine)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestRegistry_LoadDir(t *testing.T) {
	dir := t.TempDir()
	doc := `rules:
  - id: adult-check
    name: Adult check
    type: validation
    condition: age >= 18
    action: '"ok"'
    priority: 10
    enabled: true
  - id: vip
    type: condition
    condition: tier = "gold"
    action: ""
    priority: 5
    enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "checks.rules.yaml"), []byte(doc), 0o644))
	// Non-matching files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.yaml"), []byte("x: 1"), 0o644))

	engine := testEngine()
	registry := NewRegistry()
	require.NoError(t, registry.LoadDir(dir, engine))

	assert.Equal(t, 2, registry.Count())
	rule, ok := registry.Get("adult-check")
	require.True(t, ok)
	assert.Equal(t, TypeValidation, rule.Type)

	executor := NewExecutor(engine)
	result := executor.Execute(rule, map[string]interface{}{"age": 21})
	require.Nil(t, result.Error)
	assert.True(t, result.ConditionMet)
	assert.Equal(t, "ok", result.Action.GoValue())
}
