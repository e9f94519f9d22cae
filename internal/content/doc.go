// Package content owns the site bundle that pages are rendered from.
//
// A bundle is a tar.gz of HTML and static assets stored in S3 under its
// SHA-256, with the active hash published in an SSM parameter and an
// optional KMS signature alongside it. The pieces are:
//   - [Loader]: fetches, verifies and extracts bundles into memory
//   - [Manager]: holds the active [Snapshot] and notifies subscribers on swap
//   - [Watcher]: polls SSM and hot-swaps new bundles after validation
//
// Extraction enforces limits on compressed size, per-file size, total size
// and archive paths.
package content
