package models

import "errors"

// Domain errors. Stores and the service layer return these (possibly
// wrapped); the API boundary maps them to HTTP status codes.
var (
	// ErrNotFound indicates an unknown metadata id or a missing blob for a
	// row that exists.
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates a uniqueness collision on the
	// (path, filename, extension) triple or on the id.
	ErrAlreadyExists = errors.New("file already exists")

	// ErrValidation indicates malformed input (filename, extension, path).
	ErrValidation = errors.New("validation failed")

	// ErrLockTimeout indicates a blob lock could not be acquired within the
	// configured timeout. The request is safe to retry.
	ErrLockTimeout = errors.New("blob lock acquisition timed out")

	// ErrBlobMissing indicates a committed blob file does not exist.
	ErrBlobMissing = errors.New("blob not found in storage")

	// ErrBlobStoreUnavailable indicates the blob directory is unreadable.
	ErrBlobStoreUnavailable = errors.New("blob storage unavailable")

	// ErrBlobWriteFailed indicates a write or rename failed mid-commit.
	// Reconciliation is advised once the underlying condition clears.
	ErrBlobWriteFailed = errors.New("blob write failed")

	// ErrMetaStore wraps database errors from the metadata store.
	ErrMetaStore = errors.New("metadata store error")
)
