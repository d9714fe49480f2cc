// Package wheelcache stores built wheels on local disk.
//
// The store is append-only from a reader's point of view. Every write lands
// in tmp/ first and is renamed into place, so a concurrent reader sees either
// a complete entry or nothing, and a cancelled run leaves only temporary
// files behind. [Store.Prune] removes those.
//
// # Layout
//
//	<root>/wheels/<name>/<wheel filename>             registry releases
//	<root>/wheels/<name>/url-<hash>/<wheel filename>  direct URL artifacts
//	<root>/wheels/<name>/src-<hash>/<wheel filename>  wheels built from local sources
//	<root>/archives/<sha256>/                         unpacked wheels
//	<root>/tmp/                                       in-progress downloads
//
// # Lookup
//
// [Store.Lookup] answers the planner's "is a matching artifact already
// here?" question. Registry pins match by version, URL requirements by URL,
// and a requirement on a local .whl file is its own cache entry. Directories
// and editables never hit: they must be built from the current tree.
package wheelcache
