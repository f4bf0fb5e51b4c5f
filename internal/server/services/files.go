package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	servermodels "github.com/dmitrijs2005/charasync/internal/server/models"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/repomanager"
)

// FileService tracks content-addressed files in the object store and hands
// out presigned transfer URLs for them.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       ObjectStore
	log         logging.Logger
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store ObjectStore, log logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		store:       store,
		log:         log.With("module", "files"),
		now:         time.Now,
	}
}

func normalizeHashes(in []models.Hash) ([]models.Hash, error) {
	out := make([]models.Hash, 0, len(in))
	for _, h := range in {
		n := models.NormalizeHash(string(h))
		if !n.Valid() {
			return nil, fmt.Errorf("hash %q: %w", h, common.ErrValidationFailed)
		}
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// Missing returns the hashes among in that have not been confirmed
// uploaded, in request order.
func (s *FileService) Missing(ctx context.Context, in []models.Hash) ([]models.Hash, error) {
	hashes, err := normalizeHashes(in)
	if err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return []models.Hash{}, nil
	}
	have, err := s.repomanager.Files(s.db).Uploaded(ctx, hashes)
	if err != nil {
		return nil, err
	}
	missing := make([]models.Hash, 0, len(hashes))
	for _, h := range hashes {
		if !slices.Contains(have, h) {
			missing = append(missing, h)
		}
	}
	return missing, nil
}

// UploadTasks registers the missing hashes among in and returns one
// presigned PUT per missing hash. Hashes already uploaded get no task.
func (s *FileService) UploadTasks(ctx context.Context, in []models.Hash) ([]models.TransferTask, error) {
	missing, err := s.Missing(ctx, in)
	if err != nil {
		return nil, err
	}
	tasks := make([]models.TransferTask, 0, len(missing))
	if len(missing) == 0 {
		return tasks, nil
	}
	if err := s.repomanager.Files(s.db).Register(ctx, missing); err != nil {
		return nil, err
	}
	expires := s.now().Add(PresignExpiry)
	for _, h := range missing {
		url, err := s.store.PresignPut(ctx, servermodels.StorageKey(h))
		if err != nil {
			return nil, fmt.Errorf("presign upload %s: %w", h, err)
		}
		tasks = append(tasks, models.TransferTask{Hash: h, URL: url, ExpiresAt: expires})
	}
	s.log.Debug(ctx, "upload tasks issued", "count", len(tasks))
	return tasks, nil
}

// MarkUploaded confirms hash once its object is present in the store.
func (s *FileService) MarkUploaded(ctx context.Context, hash models.Hash) error {
	h := models.NormalizeHash(string(hash))
	if !h.Valid() {
		return fmt.Errorf("hash %q: %w", hash, common.ErrValidationFailed)
	}
	ok, err := s.store.Exists(ctx, servermodels.StorageKey(h))
	if err != nil {
		return fmt.Errorf("check object %s: %w", h, err)
	}
	if !ok {
		return fmt.Errorf("object %s was not uploaded: %w", h, common.ErrValidationFailed)
	}
	if err := s.repomanager.Files(s.db).MarkUploaded(ctx, h, s.now()); err != nil {
		return err
	}
	s.log.Info(ctx, "file uploaded", "hash", h)
	return nil
}

// DownloadURLs returns a presigned GET for every hash in in. All of them
// must be uploaded, otherwise the call fails with ErrNotFound.
func (s *FileService) DownloadURLs(ctx context.Context, in []models.Hash) ([]models.TransferTask, error) {
	missing, err := s.Missing(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%d files unavailable, first %s: %w", len(missing), missing[0], common.ErrNotFound)
	}
	hashes, _ := normalizeHashes(in)
	expires := s.now().Add(PresignExpiry)
	tasks := make([]models.TransferTask, 0, len(hashes))
	for _, h := range hashes {
		url, err := s.store.PresignGet(ctx, servermodels.StorageKey(h))
		if err != nil {
			return nil, fmt.Errorf("presign download %s: %w", h, err)
		}
		tasks = append(tasks, models.TransferTask{Hash: h, URL: url, ExpiresAt: expires})
	}
	return tasks, nil
}
