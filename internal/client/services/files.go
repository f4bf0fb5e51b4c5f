package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/client/filecache"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/netx"
)

// ProgressFunc receives transfer progress; done counts finished files.
type ProgressFunc func(done, total int)

func (p ProgressFunc) report(done, total int) {
	if p != nil {
		p(done, total)
	}
}

// RestoreResult lists what RestoreMissing moved.
type RestoreResult struct {
	Uploaded []models.Hash
	// Unavailable are missing server-side but absent from the local cache.
	Unavailable []models.Hash
}

// FileResolver decides which content-addressed files a record still needs
// and moves them between the local cache and the object store.
type FileResolver struct {
	client client.FileClient
	cache  *filecache.Store
	http   *http.Client
	log    logging.Logger
}

// NewFileResolver builds a resolver. hc may be nil for http.DefaultClient.
func NewFileResolver(c client.FileClient, cache *filecache.Store, hc *http.Client, log logging.Logger) *FileResolver {
	return &FileResolver{client: c, cache: cache, http: hc, log: log.With("module", "files")}
}

// MissingFiles returns the distinct manifest hashes the server does not
// hold, asking the server once for the whole manifest.
func (r *FileResolver) MissingFiles(ctx context.Context, rec *models.CharaRecord) (map[models.Hash]struct{}, error) {
	hashes := rec.UniqueHashes()
	missing := make(map[models.Hash]struct{})
	if len(hashes) == 0 {
		return missing, nil
	}

	absent, err := r.client.CheckFilesExist(ctx, hashes)
	if err != nil {
		return nil, fmt.Errorf("check files: %w", err)
	}
	wanted := make(map[models.Hash]struct{}, len(hashes))
	for _, h := range hashes {
		wanted[h] = struct{}{}
	}
	for _, h := range absent {
		if _, ok := wanted[h]; ok {
			missing[h] = struct{}{}
		}
	}
	return missing, nil
}

// Downloadable reports whether rec has an appearance and the server holds
// every file of its manifest.
func (r *FileResolver) Downloadable(ctx context.Context, rec *models.CharaRecord) (bool, error) {
	if len(rec.Appearance) == 0 {
		return false, nil
	}
	missing, err := r.MissingFiles(ctx, rec)
	if err != nil {
		return false, err
	}
	return len(missing) == 0, nil
}

// RestoreMissing uploads the files of rec the server lacks, read from the
// local cache. Files the server already holds are never sent. Each upload
// is confirmed before the next starts, so a cancelled restore keeps what it
// confirmed.
func (r *FileResolver) RestoreMissing(ctx context.Context, rec *models.CharaRecord, progress ProgressFunc) (RestoreResult, error) {
	var res RestoreResult

	missing, err := r.MissingFiles(ctx, rec)
	if err != nil {
		return res, err
	}

	var upload []models.Hash
	for _, h := range rec.UniqueHashes() {
		if _, ok := missing[h]; !ok {
			continue
		}
		if !r.cache.Has(h) {
			res.Unavailable = append(res.Unavailable, h)
			continue
		}
		upload = append(upload, h)
	}
	if len(upload) > 0 {
		tasks, err := r.client.UploadFiles(ctx, upload)
		if err != nil {
			return res, fmt.Errorf("request upload urls: %w", err)
		}
		progress.report(0, len(tasks))
		for i, t := range tasks {
			if err := r.uploadOne(ctx, t); err != nil {
				return res, err
			}
			res.Uploaded = append(res.Uploaded, t.Hash)
			progress.report(i+1, len(tasks))
		}
	}

	if len(res.Unavailable) > 0 {
		return res, fmt.Errorf("%d files are missing from the local cache: %w", len(res.Unavailable), common.ErrNotFound)
	}
	return res, nil
}

func (r *FileResolver) uploadOne(ctx context.Context, t models.TransferTask) error {
	f, size, err := r.cache.Open(t.Hash)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := netx.Put(ctx, r.http, t.URL, f, size); err != nil {
		return transferError("upload", t.Hash, err)
	}
	if err := r.client.MarkUploaded(ctx, t.Hash); err != nil {
		return fmt.Errorf("confirm upload %s: %w", t.Hash, err)
	}
	r.log.Debug(ctx, "file uploaded", "hash", t.Hash, "size", size)
	return nil
}

// FetchFiles downloads manifest files that are not in the local cache yet
// and returns the hashes it stored.
func (r *FileResolver) FetchFiles(ctx context.Context, rec *models.CharaRecord, progress ProgressFunc) ([]models.Hash, error) {
	var need []models.Hash
	for _, h := range rec.UniqueHashes() {
		if !r.cache.Has(h) {
			need = append(need, h)
		}
	}
	if len(need) == 0 {
		progress.report(0, 0)
		return nil, nil
	}

	tasks, err := r.client.DownloadURLs(ctx, need)
	if err != nil {
		return nil, fmt.Errorf("request download urls: %w", err)
	}

	var fetched []models.Hash
	progress.report(0, len(tasks))
	for i, t := range tasks {
		if err := r.fetchOne(ctx, t); err != nil {
			return fetched, err
		}
		fetched = append(fetched, t.Hash)
		progress.report(i+1, len(tasks))
	}
	return fetched, nil
}

func (r *FileResolver) fetchOne(ctx context.Context, t models.TransferTask) error {
	body, _, err := netx.Get(ctx, r.http, t.URL)
	if err != nil {
		return transferError("download", t.Hash, err)
	}
	defer body.Close()

	if _, err := r.cache.Put(t.Hash, body); err != nil {
		if errors.Is(err, filecache.ErrHashMismatch) {
			return err
		}
		return transferError("store", t.Hash, err)
	}
	return nil
}

func transferError(op string, h models.Hash, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, h, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, h, common.ErrTransportFailure, err)
}
