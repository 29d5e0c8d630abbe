package persist

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/krisalay/chronocache/types"
)

/*
SQLiteStore keeps snapshots in a SQLite database, one row per snapshot name.
Several caches can share one file by using distinct names. Writes replace the
named row inside a single statement, so readers never observe a torn
snapshot.
*/
type SQLiteStore struct {
	db   *sql.DB
	name string
}

var _ types.Store = (*SQLiteStore)(nil)

// DefaultSnapshotName is used when NewSQLiteStore is given an empty name.
const DefaultSnapshotName = "default"

// NewSQLiteStore opens (creating if needed) the database at path and
// prepares the snapshot table.
func NewSQLiteStore(path, name string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("empty database path")
	}
	if name == "" {
		name = DefaultSnapshotName
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open database %s", path)
	}

	// The driver serializes writers per connection; a single connection
	// avoids SQLITE_BUSY between concurrent saves.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(2 * time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "ping database %s", path)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS snapshots (
			name     TEXT PRIMARY KEY,
			payload  BLOB NOT NULL,
			saved_at INTEGER NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create snapshots table")
	}

	return &SQLiteStore{db: db, name: name}, nil
}

// Name returns the snapshot name this store reads and writes.
func (s *SQLiteStore) Name() string {
	return s.name
}

func (s *SQLiteStore) Save(p *types.Payload) error {
	if p == nil {
		return errors.New("nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	_, err = s.db.Exec(`
		INSERT INTO snapshots (name, payload, saved_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload  = excluded.payload,
			saved_at = excluded.saved_at
	`, s.name, data, p.SavedAt.Unix())
	return errors.Wrapf(err, "save snapshot %q", s.name)
}

func (s *SQLiteStore) Load() (*types.Payload, error) {
	var data []byte
	err := s.db.QueryRow(`
		SELECT payload FROM snapshots WHERE name = ?
	`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load snapshot %q", s.name)
	}

	var p types.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "parse snapshot %q", s.name)
	}
	return &p, nil
}

func (s *SQLiteStore) Exists() bool {
	var n int
	err := s.db.QueryRow(`
		SELECT COUNT(1) FROM snapshots WHERE name = ?
	`, s.name).Scan(&n)
	return err == nil && n > 0
}

func (s *SQLiteStore) Clear() error {
	_, err := s.db.Exec(`DELETE FROM snapshots WHERE name = ?`, s.name)
	return errors.Wrapf(err, "clear snapshot %q", s.name)
}

// Close releases the underlying database handle. The store is unusable
// afterwards.
func (s *SQLiteStore) Close() error {
	return errors.Wrap(s.db.Close(), "close database")
}
