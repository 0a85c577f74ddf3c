package rules

import (
	"errors"

	"github.com/gridbase/gridbase/internal/formula"
)

// Result captures one rule execution. ConditionMet=false with a nil
// Error means the condition evaluated cleanly to false; a non-nil Error
// means the condition (or action) failed and the rule did not fire.
type Result struct {
	RuleID       string         `json:"rule_id"`
	Success      bool           `json:"success"`
	ConditionMet bool           `json:"condition_met"`
	Action       formula.Value  `json:"-"`
	Error        *formula.Error `json:"error,omitempty"`
}

// Executor evaluates business rules through a shared formula engine.
// The engine's AST cache makes repeated executions of the same rule
// parse-free.
type Executor struct {
	engine *formula.Engine
}

func NewExecutor(engine *formula.Engine) *Executor {
	return &Executor{engine: engine}
}

// Execute runs one rule against the input. Rule types differ only in
// how the caller interprets the action value; execution is uniform.
func (x *Executor) Execute(rule *Rule, input map[string]interface{}) *Result {
	result := &Result{RuleID: rule.ID}

	cond, err := x.engine.Parse(rule.Condition)
	if err != nil {
		result.Error = asFormulaError(err)
		return result
	}

	ctx := formula.NewContext(input, nil, nil)
	condVal, err := x.engine.EvaluateAST(cond, ctx)
	if err != nil {
		result.Error = asFormulaError(err)
		return result
	}
	if ev, ok := condVal.(formula.ErrorValue); ok {
		result.Error = &formula.Error{Code: ev.Code, Message: ev.Message}
		return result
	}

	result.ConditionMet = formula.ToBool(condVal)
	if !result.ConditionMet || !rule.Enabled {
		result.Success = true
		return result
	}

	if rule.Action == "" {
		result.Success = true
		return result
	}
	action, err := x.engine.Evaluate(rule.Action, ctx)
	if err != nil {
		result.Error = asFormulaError(err)
		return result
	}
	result.Success = true
	result.Action = action
	return result
}

// ExecuteSet runs a rule set in descending priority order, ties broken
// by declaration order. Disabled rules are skipped entirely.
func (x *Executor) ExecuteSet(set []*Rule, input map[string]interface{}) []*Result {
	results := make([]*Result, 0, len(set))
	for _, rule := range set {
		if !rule.Enabled {
			continue
		}
		results = append(results, x.Execute(rule, input))
	}
	return results
}

func asFormulaError(err error) *formula.Error {
	var ferr *formula.Error
	if errors.As(err, &ferr) {
		return ferr
	}
	return &formula.Error{Code: formula.CodeInternal, Message: err.Error()}
}
