package ingest

import (
	"errors"
	"fmt"
)

// Sentinel errors for the user-correctable failure classes. Handlers map
// these onto HTTP status codes; everything else is an internal error.
var (
	// ErrInvalidInput marks an empty, oversized, or otherwise unusable upload.
	ErrInvalidInput = errors.New("invalid upload")

	// ErrQuotaExceeded means the user's storage quota cannot cover the upload.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrNotFound marks a lookup of an asset that does not exist or is not
	// visible to the requesting user.
	ErrNotFound = errors.New("asset not found")

	// ErrInvariantViolation marks an inconsistency in ledger or record state.
	// It is logged where detected and never shown to end users verbatim.
	ErrInvariantViolation = errors.New("invariant violation")
)

// DecodeError wraps a codec failure while reading the uploaded image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode image: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// EncodeError wraps a codec failure while producing a rendition.
type EncodeError struct {
	Kind RenditionKind
	Err  error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode %s rendition: %v", e.Kind, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// StorageError wraps an I/O failure while writing or deleting files or
// creating records. Transient; the caller may retry the whole ingestion.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
