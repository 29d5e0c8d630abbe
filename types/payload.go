package types

import (
	"encoding/json"
	"time"
)

// PayloadVersion is bumped whenever the snapshot layout changes in a way old
// readers cannot handle.
const PayloadVersion = 1

// Payload is the serializable form of a whole cache: what a Store persists
// and what a cache is rebuilt from on load.
type Payload struct {
	Version int              `json:"version"`
	SavedAt time.Time        `json:"saved_at"`
	Entries []PersistedEntry `json:"entries"`
}

// PersistedEntry is the wire form of a single entry. Value holds the already
// encoded representation (see the persist package for the envelope used for
// types plain JSON cannot round-trip).
type PersistedEntry struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	ExpireAt    time.Time       `json:"expire_at"`
	CreatedAt   time.Time       `json:"created_at"`
	AccessCount uint64          `json:"access_count"`
}
