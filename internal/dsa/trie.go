// Package dsa holds the radix-tree index behind catalog id lookups.
package dsa

import (
	"github.com/armon/go-radix"
)

// Trie is a typed view over a go-radix tree. Turbine ids share long
// prefixes ("WT-0", "WT-01"), so prefix walks touch only the matching
// subtree and come back in key order.
//
// Not safe for concurrent mutation; build once, then read freely.
type Trie[V any] struct {
	tree *radix.Tree
}

// NewTrie returns an empty trie.
func NewTrie[V any]() *Trie[V] {
	return &Trie[V]{tree: radix.New()}
}

// Insert stores value under key, replacing any previous value.
func (t *Trie[V]) Insert(key string, value V) {
	t.tree.Insert(key, value)
}

// Search returns the value stored under key.
func (t *Trie[V]) Search(key string) (V, bool) {
	raw, found := t.tree.Get(key)
	v, ok := raw.(V)
	return v, found && ok
}

// WithPrefix returns the values whose keys start with prefix, in key order.
// An empty prefix returns every value.
func (t *Trie[V]) WithPrefix(prefix string) []V {
	var out []V
	t.tree.WalkPrefix(prefix, func(_ string, raw interface{}) bool {
		if v, ok := raw.(V); ok {
			out = append(out, v)
		}
		return false
	})
	return out
}

// Size returns the number of keys.
func (t *Trie[V]) Size() int {
	return t.tree.Len()
}
