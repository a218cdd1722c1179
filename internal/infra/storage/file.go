package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// FileDocument keeps the prediction document in one JSON file. Updates are
// serialized across processes by an advisory lock on a sibling ".lock" file.
type FileDocument struct {
	path string
}

// NewFileDocument prepares the parent directory of path.
func NewFileDocument(path string) (*FileDocument, error) {
	if path == "" {
		return nil, errors.New("document path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileDocument{path: path}, nil
}

func (d *FileDocument) Path() string { return d.path }

// Load returns nil, nil when the file does not exist yet.
func (d *FileDocument) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Update holds the lock file for the whole read-modify-write cycle. A fresh
// flock handle is taken per call so two updates in one process contend too.
func (d *FileDocument) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	fl := flock.New(d.path + ".lock")
	if err := fl.Lock(); err != nil {
		return fmt.Errorf("lock document: %w", err)
	}
	defer fl.Unlock()

	current, err := d.Load(ctx)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return d.Save(ctx, next)
}

// Save writes to a temp file in the same directory and renames it over the
// document, so readers see either the old or the new file, never a torn one.
func (d *FileDocument) Save(_ context.Context, data []byte) error {
	dir := filepath.Dir(d.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace document: %w", err)
	}
	return nil
}

// Check verifies the data directory is still there.
func (d *FileDocument) Check(_ context.Context) error {
	info, err := os.Stat(filepath.Dir(d.path))
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", filepath.Dir(d.path))
	}
	return nil
}
