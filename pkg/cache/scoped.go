package cache

// ScopedKeyer wraps a Keyer with a prefix. The CLI scopes keys by macpack
// version so entries written by an older scanner are never reused.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "v1.2.0:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// ScanKey generates a prefixed key for import scan caching.
func (k *ScopedKeyer) ScanKey(contentHash string, opts ScanKeyOpts) string {
	return k.prefix + k.inner.ScanKey(contentHash, opts)
}

// ProbeKey generates a prefixed key for interpreter probe caching.
func (k *ScopedKeyer) ProbeKey(interpreter string, opts ProbeKeyOpts) string {
	return k.prefix + k.inner.ProbeKey(interpreter, opts)
}
