package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
)

// DefaultKeyer hashes its inputs with SHA-256. Project paths are cleaned
// first so "./app/" and "app" address the same build.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// BuildKey returns "build:<sha256>".
func (DefaultKeyer) BuildKey(opts BuildKeyOpts) string {
	opts.Path = filepath.Clean(opts.Path)
	return digestKey("build", opts)
}

// MetadataKey returns "metadata:<sha256>".
func (DefaultKeyer) MetadataKey(path, fingerprint string) string {
	return digestKey("metadata", filepath.Clean(path), fingerprint)
}

var _ Keyer = DefaultKeyer{}

func digestKey(kind string, parts ...any) string {
	data, _ := json.Marshal(parts)
	return kind + ":" + Hash(data)
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
