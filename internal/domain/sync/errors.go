package sync

import "errors"

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// Client errors
	ErrAuthFailed      = errors.New("sync: remote authentication failed")
	ErrRequestFailed   = errors.New("sync: remote request failed")
	ErrInvalidResponse = errors.New("sync: invalid remote response")
	ErrValidation      = errors.New("sync: remote rejected record")

	// ErrNotFound reports that a lookup matched nothing. It is an expected
	// outcome of identity resolution, not a failure: callers check it with
	// errors.Is and fall through to record creation.
	ErrNotFound = errors.New("sync: not found")

	// Record errors
	ErrInvalidOrder    = errors.New("sync: invalid order record")
	ErrInvalidCustomer = errors.New("sync: invalid customer record")
	ErrMissingSKU      = errors.New("sync: product line has no SKU")

	// Query errors
	ErrInvalidQuery = errors.New("sync: invalid query parameters")
)
