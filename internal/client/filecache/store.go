// Package filecache is the client's content-addressed file store. Files are
// kept under <root>/<first two hash characters>/<hash>, and every write is
// verified against its hash and committed with an atomic rename.
package filecache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/cryptox"
	"github.com/dmitrijs2005/charasync/internal/filex"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// ErrHashMismatch is returned when written content does not hash to the
// expected value. It wraps common.ErrValidationFailed.
var ErrHashMismatch = fmt.Errorf("content hash mismatch: %w", common.ErrValidationFailed)

type Store struct {
	root string
}

// New opens (and creates if needed) a cache rooted at dir.
func New(dir string) (*Store, error) {
	root, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("file cache: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// Path returns where h is (or would be) stored.
func (s *Store) Path(h models.Hash) (string, error) {
	if !h.Valid() {
		return "", fmt.Errorf("invalid hash %q: %w", h, common.ErrValidationFailed)
	}
	return filepath.Join(s.root, string(h[:2]), string(h)), nil
}

func (s *Store) Has(h models.Hash) bool {
	p, err := s.Path(h)
	if err != nil {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && st.Mode().IsRegular()
}

// Open returns the cached content of h and its size. The caller closes the
// file. A missing entry yields common.ErrNotFound.
func (s *Store) Open(h models.Hash) (*os.File, int64, error) {
	p, err := s.Path(h)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, fmt.Errorf("file %s: %w", h, common.ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", h, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", h, err)
	}
	return f, st.Size(), nil
}

// Put streams r into the cache as h. Content that does not hash to h is
// discarded with ErrHashMismatch; nothing is visible under h until the
// content has been verified and synced.
func (s *Store) Put(h models.Hash, r io.Reader) (int64, error) {
	p, err := s.Path(h)
	if err != nil {
		return 0, err
	}
	hasher := cryptox.NewContentHash()
	staged, err := filex.Stage(p, io.TeeReader(r, hasher))
	if err != nil {
		return 0, err
	}
	if sum := models.Hash(cryptox.FormatContentHash(hasher.Sum(nil))); sum != h {
		staged.Discard()
		return 0, fmt.Errorf("file %s got %s: %w", h, sum, ErrHashMismatch)
	}
	if err := staged.Commit(); err != nil {
		return 0, err
	}
	return staged.Size, nil
}

// Import copies a local file into the cache and returns its hash.
func (s *Store) Import(path string) (models.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("import %s: %w", path, err)
	}
	defer f.Close()

	sum, _, err := cryptox.ContentHash(f)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	h := models.Hash(sum)
	if s.Has(h) {
		return h, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", path, err)
	}
	if _, err := s.Put(h, f); err != nil {
		return "", err
	}
	return h, nil
}

// Remove deletes h; removing an absent entry is not an error.
func (s *Store) Remove(h models.Hash) error {
	p, err := s.Path(h)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", h, err)
	}
	return nil
}
