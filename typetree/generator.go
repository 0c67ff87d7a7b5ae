package typetree

import (
	"context"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const defaultCacheEntries = 1024

// Generator produces the flat field list of a script type. Implementations
// typically sit in front of a separate process that inspects game assemblies.
// Generate must return an error wrapping ErrUnknownType when the assembly or
// type is not known.
type Generator interface {
	Generate(ctx context.Context, assembly, typeName string) ([]Node, error)
}

// Key identifies one generated tree.
type Key struct {
	Assembly string // file name with extension, e.g. Assembly-CSharp.dll
	Type     string // fully-qualified type name
}

func (k Key) String() string { return k.Assembly + ":" + k.Type }

// MapGenerator serves fixed definitions.
type MapGenerator map[Key][]Node

func (m MapGenerator) Generate(_ context.Context, assembly, typeName string) ([]Node, error) {
	nodes, ok := m[Key{Assembly: assembly, Type: typeName}]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownType, typeName, assembly)
	}
	return nodes, nil
}

// Cache builds and memoizes generated trees per (assembly, type) for the
// lifetime of a generator session. Concurrent requests for one key share a
// single generator call.
type Cache struct {
	gen     Generator
	entries *lru.Cache[Key, *Node]
	group   singleflight.Group

	mu     sync.Mutex
	hits   int64
	misses int64
}

// NewCache wraps gen. maxEntries <= 0 selects a default.
func NewCache(gen Generator, maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	c := &Cache{gen: gen}
	c.entries, _ = lru.New[Key, *Node](maxEntries)
	return c
}

// Tree returns the hierarchy for (assembly, typeName). Callers must treat the
// returned tree as read-only; it is shared.
func (c *Cache) Tree(ctx context.Context, assembly, typeName string) (*Node, error) {
	key := Key{Assembly: assembly, Type: typeName}
	if root, ok := c.entries.Get(key); ok {
		c.count(true)
		return root, nil
	}
	c.count(false)

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if root, ok := c.entries.Get(key); ok {
			return root, nil
		}
		flat, err := c.gen.Generate(ctx, assembly, typeName)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", key, err)
		}
		root, err := Build(flat)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", key, err)
		}
		c.entries.Add(key, root)
		return root, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Node), nil
}

func (c *Cache) count(hit bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

// Stats returns hit and miss counters.
func (c *Cache) Stats() (hits, misses int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// Len returns the number of cached trees.
func (c *Cache) Len() int { return c.entries.Len() }
