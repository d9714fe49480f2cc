// Package editable takes local editable requirements from a path on disk to
// an installed distribution.
//
// The lifecycle has three stages, each its own type so that a stage cannot
// be skipped:
//
//	ResolvedEditable   Resolve: path, static-or-dynamic metadata, fingerprint
//	BuiltEditable      Builder.Build: a PEP 660 wheel plus its real metadata
//	InstalledEditable  Install: the committed distribution in site-packages
//
// # Dynamic metadata
//
// A project whose pyproject.toml declares name, version and dependencies
// statically can be described without running any Python. Anything else
// (a bare setup.py, or version or dependencies listed under
// project.dynamic) is dynamic: its true metadata is only known after the
// build backend's metadata hook has run. [IsDynamic] makes that call.
//
// # Caching
//
// Builds are keyed by the project path and the content fingerprint of its
// source tree. A [Builder] with a [cache.Cache] reuses the wheel and
// metadata of a previous build when the fingerprint is unchanged, so an
// untouched editable is never rebuilt, and concurrent builds of the same
// project share one backend invocation through the in-flight registry.
package editable
