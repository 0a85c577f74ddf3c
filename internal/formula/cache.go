package formula

import "sync"

// ASTCache memoizes parse results keyed by formula text. Entries are
// immutable once inserted, so no invalidation is needed: identical text
// always yields the identical AST. Safe for concurrent use.
type ASTCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	expr Expr
	err  error
}

func NewASTCache() *ASTCache {
	return &ASTCache{entries: make(map[string]cacheEntry)}
}

// Parse returns the cached AST for source, parsing on first sight.
// Parse failures are cached too; re-submitting a broken formula does
// not re-run the parser.
func (c *ASTCache) Parse(source string, reg *Registry) (Expr, error) {
	c.mu.RLock()
	entry, ok := c.entries[source]
	c.mu.RUnlock()
	if ok {
		return entry.expr, entry.err
	}

	expr, err := Parse(source, reg)

	c.mu.Lock()
	// A concurrent parse of the same text produces an equivalent entry,
	// so last-write-wins is fine.
	c.entries[source] = cacheEntry{expr: expr, err: err}
	c.mu.Unlock()

	return expr, err
}

// Len reports the number of memoized formulas.
func (c *ASTCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
