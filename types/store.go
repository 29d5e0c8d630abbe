package types

// Store is the contract between a cache and its persistence backend.
//
// Implementations hold exactly one snapshot. Save replaces it wholesale and
// must be atomic with respect to a process crash: a reader must see either
// the previous snapshot or the new one, never a torn write. Load returns
// (nil, nil) when nothing has been saved yet, so callers can distinguish
// "cold start" from a real failure.
type Store interface {

	// Save replaces the stored snapshot with p.
	Save(p *Payload) error

	// Load returns the stored snapshot, or (nil, nil) when none exists.
	Load() (*Payload, error)

	// Exists reports whether a snapshot is currently stored.
	Exists() bool

	// Clear removes the stored snapshot. Clearing an empty store is not an
	// error.
	Clear() error
}
