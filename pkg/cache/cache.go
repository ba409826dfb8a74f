// Package cache provides the on-disk cache macpack uses to skip repeated
// work between builds: import scans of unchanged source files and
// interpreter probes.
//
// Entries are addressed by keys built with a [Keyer]. Keys embed content
// hashes, so a changed file never hits a stale entry; TTLs only bound the
// size of the cache directory.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/matzehuels/macpack/pkg/observability"
)

// Cache is a byte-oriented key/value store.
type Cache interface {
	// Get returns the value for key. A miss is reported as (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases resources held by the cache.
	Close() error
}

// Default TTLs for cache entries.
const (
	TTLScan  = 30 * 24 * time.Hour
	TTLProbe = 24 * time.Hour
)

// Keyer builds cache keys.
type Keyer interface {
	// ScanKey addresses the import scan of one source file.
	ScanKey(contentHash string, opts ScanKeyOpts) string
	// ProbeKey addresses an interpreter probe result.
	ProbeKey(interpreter string, opts ProbeKeyOpts) string
}

// ScanKeyOpts holds the inputs besides file content that change a scan.
type ScanKeyOpts struct {
	Grammar string `json:"grammar"`
}

// ProbeKeyOpts identifies one interpreter binary.
type ProbeKeyOpts struct {
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// DefaultKeyer builds keys as "<kind>:<sha256 of inputs>".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key builder.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// ScanKey implements Keyer.
func (DefaultKeyer) ScanKey(contentHash string, opts ScanKeyOpts) string {
	return hashKey("scan", contentHash, opts)
}

// ProbeKey implements Keyer.
func (DefaultKeyer) ProbeKey(interpreter string, opts ProbeKeyOpts) string {
	return hashKey("probe", interpreter, opts)
}

// GetJSON reads key and decodes it into v. keyType labels the lookup for
// the cache hooks. Undecodable entries are dropped and reported as misses.
func GetJSON(ctx context.Context, c Cache, keyType, key string, v any) (bool, error) {
	data, ok, err := c.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("cache get %s: %w", keyType, err)
	}
	if !ok {
		observability.Cache().OnCacheMiss(ctx, keyType)
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = c.Delete(ctx, key)
		observability.Cache().OnCacheMiss(ctx, keyType)
		return false, nil
	}
	observability.Cache().OnCacheHit(ctx, keyType)
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, c Cache, keyType, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", keyType, err)
	}
	if err := c.Set(ctx, key, data, ttl); err != nil {
		return fmt.Errorf("cache set %s: %w", keyType, err)
	}
	observability.Cache().OnCacheSet(ctx, keyType, len(data))
	return nil
}
