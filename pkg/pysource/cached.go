package pysource

import (
	"context"

	"github.com/matzehuels/macpack/pkg/cache"
)

// CachedScanner memoizes scan results by source content hash.
//
// Cache failures never fail a scan: an unreadable or unwritable cache simply
// means the file is parsed again.
type CachedScanner struct {
	inner Scanner
	cache cache.Cache
	keyer cache.Keyer
}

// NewCachedScanner wraps inner with c. Nil arguments select a tree-sitter
// scanner, a null cache and the default keyer.
func NewCachedScanner(inner Scanner, c cache.Cache, keyer cache.Keyer) *CachedScanner {
	if inner == nil {
		inner = NewScanner()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	return &CachedScanner{inner: inner, cache: c, keyer: keyer}
}

// Scan returns the cached result for src or scans it.
func (s *CachedScanner) Scan(ctx context.Context, src []byte) (*Result, error) {
	key := s.keyer.ScanKey(cache.Hash(src), cache.ScanKeyOpts{Grammar: Grammar})

	var cached Result
	if hit, err := cache.GetJSON(ctx, s.cache, "scan", key, &cached); err == nil && hit {
		return &cached, nil
	}

	res, err := s.inner.Scan(ctx, src)
	if err != nil {
		return nil, err
	}
	_ = cache.SetJSON(ctx, s.cache, "scan", key, res, cache.TTLScan)
	return res, nil
}
