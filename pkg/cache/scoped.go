package cache

// ScopedKeyer wraps a Keyer with a prefix so that environments sharing one
// backend (for example several interpreters pointed at the same Redis) keep
// separate namespaces.
//
// Example usage:
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "py312:")
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

// BuildKey generates a prefixed build key.
func (k *ScopedKeyer) BuildKey(opts BuildKeyOpts) string {
	return k.prefix + k.inner.BuildKey(opts)
}

// MetadataKey generates a prefixed metadata key.
func (k *ScopedKeyer) MetadataKey(path, fingerprint string) string {
	return k.prefix + k.inner.MetadataKey(path, fingerprint)
}
