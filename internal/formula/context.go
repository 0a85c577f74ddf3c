package formula

// Context holds the ambient bindings for one evaluation: read-only
// named values, named collections of records, and read-write variables.
// A Context must not be shared between concurrent evaluations.
//
// Predicate sub-expressions (Filter, LookUp, Sort, Distinct) run in a
// child scope whose values map is the iteration record; lookups fall
// back to the parent for outer names. Variables and collections are
// shared with the root so Collect and Set mutate request-level state
// regardless of scope depth.
type Context struct {
	values      map[string]Value
	variables   map[string]Value
	collections map[string][]Value
	parent      *Context
}

// NewContext builds a root Context from decoded-JSON style maps. Nil
// maps are accepted.
func NewContext(values map[string]interface{}, collections map[string][]map[string]interface{}, variables map[string]interface{}) *Context {
	c := &Context{
		values:      make(map[string]Value, len(values)),
		variables:   make(map[string]Value, len(variables)),
		collections: make(map[string][]Value, len(collections)),
	}
	for k, v := range values {
		c.values[k] = FromGo(v)
	}
	for k, v := range variables {
		c.variables[k] = FromGo(v)
	}
	for name, records := range collections {
		rows := make([]Value, len(records))
		for i, rec := range records {
			rows[i] = FromGo(map[string]interface{}(rec))
		}
		c.collections[name] = rows
	}
	return c
}

// child creates a scope whose values are the given record's fields.
func (c *Context) child(record RecordValue) *Context {
	return &Context{
		values:      record.Vals,
		variables:   c.variables,
		collections: c.collections,
		parent:      c,
	}
}

// Resolve looks a name up in values, then variables, then collections,
// walking outward through enclosing scopes.
func (c *Context) Resolve(name string) (Value, bool) {
	for scope := c; scope != nil; scope = scope.parent {
		if v, ok := scope.values[name]; ok {
			return v, true
		}
		if v, ok := scope.variables[name]; ok {
			return v, true
		}
		if rows, ok := scope.collections[name]; ok {
			return ListValue{Vals: rows}, true
		}
	}
	return nil, false
}

// SetVariable writes a request-scoped variable.
func (c *Context) SetVariable(name string, v Value) {
	c.variables[name] = v
}

// Collection returns the named collection's rows.
func (c *Context) Collection(name string) ([]Value, bool) {
	for scope := c; scope != nil; scope = scope.parent {
		if rows, ok := scope.collections[name]; ok {
			return rows, true
		}
	}
	return nil, false
}

// SetCollection replaces the named collection's contents.
func (c *Context) SetCollection(name string, rows []Value) {
	for scope := c; scope != nil; scope = scope.parent {
		if _, ok := scope.collections[name]; ok {
			scope.collections[name] = rows
			return
		}
	}
	c.root().collections[name] = rows
}

// AppendToCollection appends a row, creating the collection on first
// use.
func (c *Context) AppendToCollection(name string, row Value) {
	for scope := c; scope != nil; scope = scope.parent {
		if rows, ok := scope.collections[name]; ok {
			scope.collections[name] = append(rows, row)
			return
		}
	}
	root := c.root()
	root.collections[name] = append(root.collections[name], row)
}

func (c *Context) root() *Context {
	scope := c
	for scope.parent != nil {
		scope = scope.parent
	}
	return scope
}

// Variables exposes the variable map for callers that report final
// variable state (e.g. the HTTP surface).
func (c *Context) Variables() map[string]Value {
	return c.root().variables
}

// Collections exposes the collection map of the root scope.
func (c *Context) Collections() map[string][]Value {
	return c.root().collections
}
