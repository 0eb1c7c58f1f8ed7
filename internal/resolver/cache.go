package resolver

import (
	"sync"

	"github.com/leapstack-labs/leapcell/pkg/core"
	"github.com/leapstack-labs/leapcell/pkg/formula"
)

// ParseCache keeps successfully parsed formulas keyed by address. An entry
// is reused only while the formula text is unchanged. A nil *ParseCache is
// valid and caches nothing.
type ParseCache struct {
	mu      sync.RWMutex
	entries map[core.Address]cacheEntry
}

type cacheEntry struct {
	text string
	node formula.Node
}

// NewParseCache creates an empty cache.
func NewParseCache() *ParseCache {
	return &ParseCache{entries: make(map[core.Address]cacheEntry)}
}

// Get returns the tree parsed from text at addr.
func (c *ParseCache) Get(addr core.Address, text string) (formula.Node, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[addr]
	if !ok || e.text != text {
		return nil, false
	}
	return e.node, true
}

// Put stores a parsed tree.
func (c *ParseCache) Put(addr core.Address, text string, node formula.Node) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[addr] = cacheEntry{text: text, node: node}
}

// Len returns the number of cached trees.
func (c *ParseCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
