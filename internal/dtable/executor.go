package dtable

import (
	"github.com/gridbase/gridbase/internal/formula"
)

// Diagnostic records why a rule failed to match, without aborting the
// table. Only rules whose conditions errored produce diagnostics.
type Diagnostic struct {
	RuleID  string `json:"rule_id"`
	Input   string `json:"input,omitempty"`
	Message string `json:"message"`
}

// Result is one table execution. Outputs is a record (map) for every
// policy except collect, where it is a list of records in declaration
// order.
type Result struct {
	MatchedRules []string     `json:"matched_rules"`
	Outputs      interface{}  `json:"outputs"`
	Diagnostics  []Diagnostic `json:"diagnostics,omitempty"`
}

// Executor runs compiled decision tables.
type Executor struct {
	engine *formula.Engine
}

func NewExecutor(engine *formula.Engine) *Executor {
	return &Executor{engine: engine}
}

// Execute evaluates the table's rules against the input and aggregates
// outputs per the hit policy. Output expressions run only for the rules
// the policy selects, never speculatively.
func (x *Executor) Execute(c *Compiled, input map[string]interface{}) (*Result, error) {
	result := &Result{MatchedRules: []string{}}

	var matched []int
	for i := range c.Table.Rules {
		ok, diag := x.ruleMatches(c, i, input)
		if diag != nil {
			result.Diagnostics = append(result.Diagnostics, *diag)
			continue
		}
		if ok {
			matched = append(matched, i)
		}
	}

	switch c.Table.HitPolicy {
	case PolicyFirst:
		if len(matched) == 0 {
			result.Outputs = x.defaultOutputs(c)
			return result, nil
		}
		return x.selectRule(c, result, matched[0], input)

	case PolicyUnique:
		if len(matched) == 0 {
			result.Outputs = x.defaultOutputs(c)
			return result, nil
		}
		if len(matched) > 1 {
			ids := matchedIDs(c, matched)
			return nil, &formula.Error{
				Code:    formula.CodeHitPolicy,
				Message: "unique hit policy violated: rules " + joinIDs(ids) + " all matched",
			}
		}
		return x.selectRule(c, result, matched[0], input)

	case PolicyPriority:
		if len(matched) == 0 {
			result.Outputs = x.defaultOutputs(c)
			return result, nil
		}
		best := matched[0]
		for _, i := range matched[1:] {
			// Strict > keeps the earliest declaration on ties.
			if c.Table.Rules[i].Priority > c.Table.Rules[best].Priority {
				best = i
			}
		}
		return x.selectRule(c, result, best, input)

	case PolicyAny:
		if len(matched) == 0 {
			result.Outputs = x.defaultOutputs(c)
			return result, nil
		}
		var common map[string]formula.Value
		for _, i := range matched {
			outputs, err := x.evalOutputs(c, i, input)
			if err != nil {
				return nil, err
			}
			if common == nil {
				common = outputs
			} else if !outputsEqual(common, outputs) {
				ids := matchedIDs(c, matched)
				return nil, &formula.Error{
					Code:    formula.CodeHitPolicy,
					Message: "any hit policy violated: rules " + joinIDs(ids) + " disagree on outputs",
				}
			}
			result.MatchedRules = append(result.MatchedRules, c.Table.Rules[i].ID)
		}
		result.Outputs = goOutputs(common)
		return result, nil

	case PolicyCollect:
		collected := make([]interface{}, 0, len(matched))
		for _, i := range matched {
			outputs, err := x.evalOutputs(c, i, input)
			if err != nil {
				return nil, err
			}
			collected = append(collected, goOutputs(outputs))
			result.MatchedRules = append(result.MatchedRules, c.Table.Rules[i].ID)
		}
		result.Outputs = collected
		return result, nil
	}

	return nil, &formula.Error{Code: formula.CodeInternal, Message: "unknown hit policy " + string(c.Table.HitPolicy)}
}

// ruleMatches evaluates every condition of rule i; all must be truthy.
// An evaluation error makes the rule a non-match and is reported as a
// diagnostic rather than aborting the table.
func (x *Executor) ruleMatches(c *Compiled, i int, input map[string]interface{}) (bool, *Diagnostic) {
	rule := c.Table.Rules[i]
	for _, inputName := range c.Table.Inputs {
		expr, ok := c.conditions[i][inputName]
		if !ok {
			continue // absent condition matches anything
		}
		ctx := formula.NewContext(input, nil, nil)
		val, err := x.engine.EvaluateAST(expr, ctx)
		if err != nil {
			return false, &Diagnostic{RuleID: rule.ID, Input: inputName, Message: err.Error()}
		}
		if ev, isErr := val.(formula.ErrorValue); isErr {
			return false, &Diagnostic{RuleID: rule.ID, Input: inputName, Message: ev.Message}
		}
		if !formula.ToBool(val) {
			return false, nil
		}
	}
	return true, nil
}

func (x *Executor) selectRule(c *Compiled, result *Result, i int, input map[string]interface{}) (*Result, error) {
	outputs, err := x.evalOutputs(c, i, input)
	if err != nil {
		return nil, err
	}
	result.MatchedRules = append(result.MatchedRules, c.Table.Rules[i].ID)
	result.Outputs = goOutputs(outputs)
	return result, nil
}

func (x *Executor) evalOutputs(c *Compiled, i int, input map[string]interface{}) (map[string]formula.Value, error) {
	outputs := make(map[string]formula.Value, len(c.outputs[i]))
	ctx := formula.NewContext(input, nil, nil)
	for name, expr := range c.outputs[i] {
		val, err := x.engine.EvaluateAST(expr, ctx)
		if err != nil {
			return nil, err
		}
		outputs[name] = val
	}
	return outputs, nil
}

// defaultOutputs returns the table's default output record; an absent
// default yields an empty record.
func (x *Executor) defaultOutputs(c *Compiled) map[string]interface{} {
	out := make(map[string]interface{}, len(c.Table.DefaultOutput))
	for k, v := range c.Table.DefaultOutput {
		out[k] = v
	}
	return out
}

func outputsEqual(a, b map[string]formula.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !av.Equals(bv) {
			return false
		}
	}
	return true
}

func goOutputs(outputs map[string]formula.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(outputs))
	for k, v := range outputs {
		out[k] = v.GoValue()
	}
	return out
}

func matchedIDs(c *Compiled, matched []int) []string {
	ids := make([]string, len(matched))
	for j, i := range matched {
		ids[j] = c.Table.Rules[i].ID
	}
	return ids
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ", "
		}
		out += id
	}
	return out
}
