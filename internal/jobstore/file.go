package jobstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"jobkernel/internal/job"
)

// FileStore keeps the snapshot in a single JSON document.
type FileStore struct {
	path  string
	codec Codec
}

// NewFileStore creates a file persister. The parent directory is created on
// first save.
func NewFileStore(path string, codec Codec) *FileStore {
	return &FileStore{path: path, codec: codec}
}

// Load implements Persister.
func (f *FileStore) Load(ctx context.Context) (*job.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.path, err)
	}
	return f.codec.Decode(data)
}

// Save implements Persister. The document is written to a temporary file and
// renamed over the previous one.
func (f *FileStore) Save(ctx context.Context, snap *job.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := f.codec.Encode(snap)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}
	if err := atomicwriter.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot %s: %w", f.path, err)
	}
	return nil
}

// Close implements Persister.
func (f *FileStore) Close() error { return nil }

var _ Persister = (*FileStore)(nil)
