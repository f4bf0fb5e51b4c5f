// Package filex contains small filesystem helpers.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and its parents if needed and returns its absolute
// path.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", abs, err)
	}
	return abs, nil
}

// Staged is content written and synced next to its destination but not yet
// visible there.
type Staged struct {
	dst  string
	tmp  string
	Size int64
}

// Stage copies r into a fresh temporary file in the directory of dst.
// Concurrent stages for the same dst do not collide.
func Stage(dst string, r io.Reader) (*Staged, error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(dst)+".*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	s := &Staged{dst: dst, tmp: f.Name()}

	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		s.Discard()
		return nil, fmt.Errorf("stage %s: %w", filepath.Base(dst), err)
	}
	s.Size = n
	return s, nil
}

// Commit renames the staged file onto its destination.
func (s *Staged) Commit() error {
	if err := os.Rename(s.tmp, s.dst); err != nil {
		s.Discard()
		return fmt.Errorf("commit %s: %w", filepath.Base(s.dst), err)
	}
	return nil
}

// Discard removes the staged file.
func (s *Staged) Discard() {
	_ = os.Remove(s.tmp)
}
