// Package dist defines the vocabulary shared by every stage of the installer:
// normalized package names, resolved requirements and their sources, version
// specifiers, and built wheel artifacts.
//
// # Requirements
//
// A [Requirement] is produced by the resolver and is immutable from the
// engine's point of view. Its [Source] says where the distribution comes from:
//
//   - [SourceRegistry]: a pinned version from an index; Source.URL is the
//     concrete file the resolver picked
//   - [SourceURL]: a direct reference (name @ https://...)
//   - [SourcePath]: a local archive (.whl, .tar.gz)
//   - [SourceDirectory]: a local project built non-editably
//   - [SourceEditable]: a local project installed in editable mode
//
// [Requirement.ID] returns the identity used for in-flight deduplication and
// cache addressing.
//
// # Specifiers
//
// [ParseSpecifier] accepts PEP 440 clause lists (">=1.0,<2", "~=1.4",
// "==1.4.*"). [ParseVersion] understands epochs, pre, post, dev and local
// segments; release segments are ordered with hashicorp/go-version. Versions
// that do not parse never satisfy a range; they only match an exact string
// pin.
package dist
