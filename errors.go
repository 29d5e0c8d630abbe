package chronocache

import "github.com/pkg/errors"

// Validation and lifecycle failures are sentinels so callers can test them
// with errors.Is. They are returned before any state is touched.
var (
	// ErrInvalidKey rejects the empty string as a key.
	ErrInvalidKey = errors.New("chronocache: key must be a non-empty string")

	// ErrInvalidTTL rejects negative TTLs. NoExpiration (zero) means the
	// entry never expires.
	ErrInvalidTTL = errors.New("chronocache: ttl must not be negative")

	// ErrDestroyed is returned by every operation once Destroy has run.
	ErrDestroyed = errors.New("chronocache: cache has been destroyed")
)
