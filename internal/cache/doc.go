// Package cache resolves model weights through an ordered tier hierarchy:
// local disk, then a remote object-storage bucket, then the origin model
// registry. It is structured into small files by concern:
//
//   - cache.go: Resolver, the tier contract, and atomic publish into the
//     local cache directory.
//   - local.go: tier 1, a pure existence/integrity check against cache_dir.
//   - bucket.go: tier 2 over an ObjectStore, plus promotion (upload) into it.
//   - gcs.go: Google Cloud Storage implementation of ObjectStore.
//   - origin.go: tier 3, a Hugging Face Hub style registry client.
//   - errors.go: error types and helpers (IsDownloadFailure, IsAuthFailure).
//   - metrics.go: Prometheus counters for tier outcomes and transfer volume.
//
// A resolution never leaves a partially-written entry visible: tiers fetch
// into a temp directory under cache_dir and rename into place, so concurrent
// readers either see nothing or a complete artifact. Re-resolving a model that
// is already local performs no network I/O.
package cache
