// Package download materializes remote requirements into cached wheels.
//
// [Downloader.Fetch] processes a list of requirements with bounded
// parallelism. Each requirement goes through the same steps:
//
//  1. Attach to an in-flight fetch of the same identity, if one exists.
//  2. Re-check the artifact cache; a concurrent run may have filled it.
//  3. Stream the artifact into a temporary file, reporting byte progress
//     and computing digests on the way.
//  4. Verify the requirement's hashes.
//  5. Promote a wheel directly, or unpack a source distribution and hand it
//     to the build backend, then promote the built wheel.
//
// Temporary files live in the cache's tmp/ directory and are never
// promoted unless every step succeeded, so an interrupted run cannot leave
// a truncated wheel in the cache.
//
// # Failure Semantics
//
// A failing requirement produces a [*FetchError] naming it. Siblings keep
// running; [Downloader.Fetch] returns the successful wheels together with
// all failures joined by [errors.Join]. With [Options.FailFast] the first
// failure cancels the remaining work instead.
package download
