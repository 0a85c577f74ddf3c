package formula

import (
	"fmt"
	"sort"
	"strings"
)

// Category groups built-in functions for the catalog endpoints.
type Category string

const (
	CategoryData       Category = "data"
	CategoryText       Category = "text"
	CategoryLogic      Category = "logic"
	CategoryMath       Category = "math"
	CategoryDatetime   Category = "datetime"
	CategoryConversion Category = "conversion"
	CategoryCollection Category = "collection"
	CategoryValidation Category = "validation"
	CategoryOther      Category = "other"
)

// ArityVariadic marks an unbounded maximum argument count.
const ArityVariadic = -1

// Func is an ordinary built-in: it receives its arguments already
// evaluated, left to right.
type Func func(args []Value, ec *EvalContext) (Value, error)

// SpecialFunc is a special form: it receives the raw argument ASTs so
// it can short-circuit (If, And, Or, Switch) or rebind the iteration
// scope (Filter, LookUp, Sort, Distinct, Collect-family).
type SpecialFunc func(args []Expr, span Span, ec *EvalContext) (Value, error)

// Descriptor describes one registered function. Exactly one of Fn and
// Special is set.
type Descriptor struct {
	Name     string
	Category Category
	MinArgs  int
	MaxArgs  int // ArityVariadic for unbounded
	Pure     bool
	Fn       Func
	Special  SpecialFunc
}

// FunctionInfo is the catalog view of a descriptor.
type FunctionInfo struct {
	Name     string   `json:"name"`
	Category Category `json:"category"`
	MinArgs  int      `json:"min_args"`
	MaxArgs  int      `json:"max_args"`
}

// Registry is the closed set of native built-ins. Lookup is
// case-insensitive via a normalized key map built at registration;
// display names keep their registered casing. The registry is
// read-only after startup and safe for concurrent lookups.
type Registry struct {
	byKey map[string]*Descriptor
}

// NewRegistry returns a registry pre-loaded with every built-in
// category. Additional functions may be registered before the registry
// is handed to an Engine.
func NewRegistry() *Registry {
	r := &Registry{byKey: make(map[string]*Descriptor)}

	r.registerLogicFunctions()
	r.registerMathFunctions()
	r.registerTextFunctions()
	r.registerDatetimeFunctions()
	r.registerConversionFunctions()
	r.registerValidationFunctions()
	r.registerDataFunctions()
	r.registerCollectionFunctions()

	return r
}

// Register adds a function descriptor. Duplicate names (compared
// case-insensitively) are a startup error.
func (r *Registry) Register(d *Descriptor) error {
	key := strings.ToLower(d.Name)
	if _, exists := r.byKey[key]; exists {
		return fmt.Errorf("duplicate function registration: %s", d.Name)
	}
	if (d.Fn == nil) == (d.Special == nil) {
		return fmt.Errorf("function %s must set exactly one of Fn and Special", d.Name)
	}
	r.byKey[key] = d
	return nil
}

func (r *Registry) mustRegister(d *Descriptor) {
	if err := r.Register(d); err != nil {
		panic(err)
	}
}

// Lookup resolves a function name case-insensitively.
func (r *Registry) Lookup(name string) (*Descriptor, bool) {
	d, ok := r.byKey[strings.ToLower(name)]
	return d, ok
}

// CheckArity validates an argument count against a descriptor.
func (d *Descriptor) CheckArity(n int) error {
	if n < d.MinArgs {
		return fmt.Errorf("%s expects at least %d argument(s), got %d", d.Name, d.MinArgs, n)
	}
	if d.MaxArgs != ArityVariadic && n > d.MaxArgs {
		return fmt.Errorf("%s expects at most %d argument(s), got %d", d.Name, d.MaxArgs, n)
	}
	return nil
}

// List returns catalog entries sorted by name.
func (r *Registry) List() []FunctionInfo {
	infos := make([]FunctionInfo, 0, len(r.byKey))
	for _, d := range r.byKey {
		infos = append(infos, FunctionInfo{
			Name:     d.Name,
			Category: d.Category,
			MinArgs:  d.MinArgs,
			MaxArgs:  d.MaxArgs,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Len reports the number of registered functions.
func (r *Registry) Len() int {
	return len(r.byKey)
}
