package dtable

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/gridbase/gridbase/internal/formula"
)

// HitPolicy selects how matching rules aggregate into table outputs.
type HitPolicy string

const (
	PolicyFirst    HitPolicy = "first"
	PolicyUnique   HitPolicy = "unique"
	PolicyPriority HitPolicy = "priority"
	PolicyAny      HitPolicy = "any"
	PolicyCollect  HitPolicy = "collect"
)

func (p HitPolicy) valid() bool {
	switch p {
	case PolicyFirst, PolicyUnique, PolicyPriority, PolicyAny, PolicyCollect:
		return true
	}
	return false
}

// Rule is one row of a decision table: a condition expression per input
// name and an output expression per output name.
type Rule struct {
	ID         string            `yaml:"id" json:"id"`
	Conditions map[string]string `yaml:"conditions" json:"conditions"`
	Outputs    map[string]string `yaml:"outputs" json:"outputs"`
	Priority   int               `yaml:"priority" json:"priority"`
}

// Table is a declarative rule table with a hit policy and an optional
// default output used when nothing matches.
type Table struct {
	ID            string                 `yaml:"id" json:"id"`
	Name          string                 `yaml:"name" json:"name,omitempty"`
	Inputs        []string               `yaml:"inputs" json:"inputs"`
	Outputs       []string               `yaml:"outputs" json:"outputs"`
	Rules         []*Rule                `yaml:"rules" json:"rules"`
	HitPolicy     HitPolicy              `yaml:"hit_policy" json:"hit_policy"`
	DefaultOutput map[string]interface{} `yaml:"default_output" json:"default_output,omitempty"`
}

type tableFile struct {
	Tables []*Table `yaml:"tables"`
}

// Compiled pairs a table with its parsed expressions. Compilation
// happens once per table revision at load time, so per-request
// execution never touches the parser.
type Compiled struct {
	Table      *Table
	conditions []map[string]formula.Expr
	outputs    []map[string]formula.Expr
}

// Compile parses every condition and output expression of the table.
func Compile(t *Table, engine *formula.Engine) (*Compiled, error) {
	if t.ID == "" {
		return nil, fmt.Errorf("decision table is missing an id")
	}
	if !t.HitPolicy.valid() {
		return nil, fmt.Errorf("table %s: unknown hit policy %q", t.ID, t.HitPolicy)
	}

	c := &Compiled{
		Table:      t,
		conditions: make([]map[string]formula.Expr, len(t.Rules)),
		outputs:    make([]map[string]formula.Expr, len(t.Rules)),
	}
	for i, rule := range t.Rules {
		if rule.ID == "" {
			return nil, fmt.Errorf("table %s: rule %d is missing an id", t.ID, i+1)
		}
		c.conditions[i] = make(map[string]formula.Expr, len(rule.Conditions))
		for input, src := range rule.Conditions {
			expr, err := engine.Parse(src)
			if err != nil {
				return nil, fmt.Errorf("table %s rule %s: condition on %q: %w", t.ID, rule.ID, input, err)
			}
			c.conditions[i][input] = expr
		}
		c.outputs[i] = make(map[string]formula.Expr, len(rule.Outputs))
		for output, src := range rule.Outputs {
			expr, err := engine.Parse(src)
			if err != nil {
				return nil, fmt.Errorf("table %s rule %s: output %q: %w", t.ID, rule.ID, output, err)
			}
			c.outputs[i][output] = expr
		}
	}
	return c, nil
}

// Registry holds compiled decision tables keyed by ID.
type Registry struct {
	mu     sync.RWMutex
	tables map[string]*Compiled
	order  []string
}

func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]*Compiled)}
}

// Register compiles and adds a table.
func (r *Registry) Register(t *Table, engine *formula.Engine) error {
	compiled, err := Compile(t, engine)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tables[t.ID]; exists {
		return fmt.Errorf("duplicate table id %q", t.ID)
	}
	r.tables[t.ID] = compiled
	r.order = append(r.order, t.ID)
	return nil
}

// Get retrieves a compiled table by ID.
func (r *Registry) Get(id string) (*Compiled, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// List returns tables in declaration order.
func (r *Registry) List() []*Table {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Table, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tables[id].Table)
	}
	return out
}

// Count returns the number of registered tables.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// LoadDir loads every *.tables.yaml / *.tables.yml file under dir.
func (r *Registry) LoadDir(dir string, engine *formula.Engine) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !(strings.HasSuffix(path, ".tables.yaml") || strings.HasSuffix(path, ".tables.yml")) {
			return nil
		}
		return r.LoadFile(path, engine)
	})
}

// LoadFile loads one table document.
func (r *Registry) LoadFile(path string, engine *formula.Engine) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read table file %s: %w", path, err)
	}
	var doc tableFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse table file %s: %w", path, err)
	}
	for _, t := range doc.Tables {
		if err := r.Register(t, engine); err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		log.Info().
			Str("table_id", t.ID).
			Str("hit_policy", string(t.HitPolicy)).
			Int("rules", len(t.Rules)).
			Msg("Decision table loaded")
	}
	return nil
}
