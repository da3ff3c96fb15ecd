// Package cache holds the outcome of classifying and repairing the most
// recent input, so retranslating it into another language is free.
package cache

import (
	"sync"

	"github.com/appknox/ak-translator/internal/agent"
)

// Result is a single-slot cache keyed by the raw input. Storing a new key
// evicts the previous entry. The zero value is ready to use.
type Result struct {
	mu    sync.Mutex
	key   string
	entry agent.Prepared
	ok    bool
}

func New() *Result { return &Result{} }

// Get returns the prepared input stored under key.
func (c *Result) Get(key string) (agent.Prepared, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.ok || c.key != key {
		return agent.Prepared{}, false
	}
	return c.entry, true
}

func (c *Result) Put(key string, p agent.Prepared) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.key, c.entry, c.ok = key, p, true
}

// Clear empties the slot and reports whether it held anything.
func (c *Result) Clear() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	had := c.ok
	c.key, c.entry, c.ok = "", agent.Prepared{}, false
	return had
}
