// Package common defines shared constants and sentinel errors used across
// client and server layers of Exius. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorValidation   = errors.New("validation error")

	// Auth errors (invalid or malformed upload token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	// Registry and issuance errors. These are fatal to the operation and
	// surface to the caller.
	ErrUnknownRelay           = errors.New("unknown relay")
	ErrDuplicateRelay         = errors.New("relay already exists")
	ErrQuotaExhausted         = errors.New("relay pull quota exhausted")
	ErrCollisionRetryExceeded = errors.New("subject key collision retry limit exceeded")
	ErrUnknownSubjectKey      = errors.New("unknown subject key")
	ErrPersistence            = errors.New("persistence failure")
	ErrRemoteStorage          = errors.New("remote storage failure")
	ErrPartialProvisioning    = errors.New("partial provisioning")

	// Admission errors. These are recovered into the reject ledger and
	// never abort an upload request.
	ErrUnknownEndpoint     = errors.New("unknown endpoint")
	ErrEndpointFull        = errors.New("endpoint full")
	ErrUpdateLimitExceeded = errors.New("update limit exceeded")
	ErrDisallowedExtension = errors.New("disallowed extension")
	ErrSizeExceeded        = errors.New("size exceeded")
	ErrUploadFailed        = errors.New("upload failed")
)
