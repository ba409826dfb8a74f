package macho

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of files a [CachedInspector] remembers
// when no size is given.
const DefaultCacheSize = 4096

// CachedInspector memoizes another inspector by path. It is safe for
// concurrent use. Failed inspections are not cached.
type CachedInspector struct {
	inner Inspector
	cache *lru.Cache[string, *File]
}

// NewCachedInspector wraps inner. A size <= 0 selects [DefaultCacheSize].
func NewCachedInspector(inner Inspector, size int) (*CachedInspector, error) {
	if inner == nil {
		inner = FileInspector{}
	}
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *File](size)
	if err != nil {
		return nil, err
	}
	return &CachedInspector{inner: inner, cache: cache}, nil
}

// Inspect returns the cached result for path or inspects it.
func (c *CachedInspector) Inspect(path string) (*File, error) {
	if f, ok := c.cache.Get(path); ok {
		return f, nil
	}
	f, err := c.inner.Inspect(path)
	if err != nil {
		return nil, err
	}
	c.cache.Add(path, f)
	return f, nil
}

// Invalidate drops the cached entry for path. Pass it as
// [Rewriter.OnRewrite] so rewritten files are read again.
func (c *CachedInspector) Invalidate(path string) {
	c.cache.Remove(path)
}

// Len returns the number of cached files.
func (c *CachedInspector) Len() int { return c.cache.Len() }
