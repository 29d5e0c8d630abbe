package manager

import "github.com/pkg/errors"

// Registration and lookup failures are sentinels so callers can test them
// with errors.Is.
var (
	// ErrEmptyName rejects the empty string as a cache name.
	ErrEmptyName = errors.New("manager: cache name must be non-empty")

	// ErrNilCache rejects a nil cache at registration.
	ErrNilCache = errors.New("manager: cache must not be nil")

	// ErrDuplicateName rejects registering a second cache under a name
	// already in use.
	ErrDuplicateName = errors.New("manager: cache name already registered")

	// ErrUnknownCache is returned when no cache is registered under the
	// requested name.
	ErrUnknownCache = errors.New("manager: no cache registered under that name")

	// ErrNoStore is returned when a persistence operation targets a cache
	// registered without a store.
	ErrNoStore = errors.New("manager: cache has no persistence store")

	// ErrClosed is returned by every operation once Close has run.
	ErrClosed = errors.New("manager: manager is closed")
)
