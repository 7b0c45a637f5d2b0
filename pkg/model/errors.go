package model

import "errors"

// Domain errors returned by stores and services. Handlers map these onto
// HTTP status codes.
var (
	// ErrManifestNotFound is returned when no manifest exists for a file ID.
	ErrManifestNotFound = errors.New("manifest not found")

	// ErrChunkNotFound is returned when a chunk ID falls outside the
	// manifest's declared range.
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrChecksumMismatch is returned when uploaded chunk bytes do not hash
	// to the checksum declared in the manifest.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrTransferNotActive is returned when an upload targets a transfer
	// that is completed, stale, or failed.
	ErrTransferNotActive = errors.New("transfer not active")

	// ErrTransferIncomplete is returned when assembly or download is
	// requested before every chunk has been received.
	ErrTransferIncomplete = errors.New("transfer incomplete")

	// ErrInvalidManifest is returned when a registration payload fails
	// validation.
	ErrInvalidManifest = errors.New("invalid manifest")

	// ErrIllegalTransition is returned when a status update violates the
	// transfer lifecycle.
	ErrIllegalTransition = errors.New("illegal status transition")
)
