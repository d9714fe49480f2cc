// Package fetch retrieves distribution artifacts.
//
// A [Fetcher] turns a [dist.Requirement] into a byte stream plus the
// artifact's file name. The stream is either a wheel, ready to cache, or a
// source archive that the downloader hands to a build backend.
//
// Implementations:
//
//   - [HTTPFetcher]: http and https URLs, with retry on transient failures
//   - [FileFetcher]: file:// URLs and local archive paths
//   - [ObjectStoreFetcher]: s3://bucket/key objects on an S3-compatible store
//   - [Router]: dispatches to one of the above by URL scheme
//
// Registry resolution is not done here. A resolved registry requirement
// already carries the concrete artifact URL in Source.URL.
package fetch
