package mlang

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"

	"github.com/golang/groupcache/lru"
)

// SchemaCache memoizes compiled schemas by source content, so repeated
// validation runs over the same schema text skip parsing and automaton
// construction. Entries are evicted least-recently-used; only successful
// compilations are cached. The cache is safe for concurrent use.
type SchemaCache struct {
	mu   sync.Mutex
	lru  *lru.Cache
	opts []CompileOption
}

type cacheEntry struct {
	schema *Schema
	diags  []Diagnostic
}

// NewSchemaCache creates a cache holding at most maxEntries compiled
// schemas; zero means unlimited. The options apply to every compilation the
// cache performs.
func NewSchemaCache(maxEntries int, opts ...CompileOption) *SchemaCache {
	return &SchemaCache{
		lru:  lru.New(maxEntries),
		opts: opts,
	}
}

// Get returns the compiled schema for src, compiling it on first use. The
// returned Schema is shared: it is immutable and safe to hand to concurrent
// sessions.
func (c *SchemaCache) Get(src []byte) (*Schema, []Diagnostic, error) {
	key := cacheKey(src)

	c.mu.Lock()
	if v, ok := c.lru.Get(key); ok {
		entry := v.(*cacheEntry)
		c.mu.Unlock()
		return entry.schema, entry.diags, nil
	}
	c.mu.Unlock()

	// Compile outside the lock; concurrent first requests may compile
	// twice, and the last one wins the cache slot.
	schema, diags, err := Compile(src, c.opts...)
	if err != nil {
		slog.Warn("schema compilation fault", "error", err)
		return nil, diags, err
	}
	if schema == nil {
		return nil, diags, nil
	}

	c.mu.Lock()
	c.lru.Add(key, &cacheEntry{schema: schema, diags: diags})
	c.mu.Unlock()
	return schema, diags, nil
}

// Remove drops the cached compilation of src, if any.
func (c *SchemaCache) Remove(src []byte) {
	c.mu.Lock()
	c.lru.Remove(cacheKey(src))
	c.mu.Unlock()
}

func cacheKey(src []byte) lru.Key {
	sum := sha256.Sum256(src)
	return hex.EncodeToString(sum[:])
}
