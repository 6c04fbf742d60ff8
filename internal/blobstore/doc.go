// Package blobstore persists audio blobs under hierarchical owner-scoped keys
// on the local filesystem, with a JSON sidecar carrying descriptive tags.
package blobstore
