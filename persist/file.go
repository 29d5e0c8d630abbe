package persist

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/krisalay/chronocache/types"
)

/*
FileStore keeps one snapshot in a JSON file. Saves go through a temp file in
the same directory followed by a rename, so a crash mid-write leaves the
previous snapshot intact.
*/
type FileStore struct {
	path string
}

var _ types.Store = (*FileStore)(nil)

// NewFileStore returns a store writing to path. Parent directories are
// created on the first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Save(p *types.Payload) error {
	if p == nil {
		return errors.New("nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create directory %s", dir)
	}

	// Temp file must live on the same filesystem as the target for the
	// rename to be atomic.
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "write snapshot")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "sync snapshot")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "close temp file")
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrapf(err, "rename snapshot to %s", s.path)
	}
	return nil
}

func (s *FileStore) Load() (*types.Payload, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read snapshot %s", s.path)
	}

	var p types.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "parse snapshot %s", s.path)
	}
	return &p, nil
}

func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

func (s *FileStore) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return errors.Wrapf(err, "remove snapshot %s", s.path)
	}
	return nil
}
