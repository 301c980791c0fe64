package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// FileAdapter persists the snapshot as JSON to a single path, writing
// atomically (temp file in the same directory, then rename) so a reader
// never observes a partially written file, and multiple Edge instances
// sharing one path never corrupt it by racing writes.
type FileAdapter struct {
	path string
}

// NewFileAdapter creates a FileAdapter rooted at path.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

// Load reads and decodes the snapshot file. A missing file is not an error;
// it returns (nil, nil) so the caller starts empty and relies on upstream.
func (f *FileAdapter) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Save writes snap to a temp file in the same directory and renames it
// into place, which is atomic on the same filesystem.
func (f *FileAdapter) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	return os.Rename(tmpName, f.path)
}
