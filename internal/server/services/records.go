package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/access"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/dbx"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/server/config"
	"github.com/dmitrijs2005/charasync/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// RecordService owns the server copy of every chara record: creation
// limits, normalization on save, permission-scoped reads and expiry.
type RecordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	limits      models.Limits
	log         logging.Logger

	now   func() time.Time
	newID func() string

	mu         sync.Mutex
	lastCreate map[string]time.Time
}

func NewRecordService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) *RecordService {
	return &RecordService{
		db:          db,
		repomanager: m,
		limits: models.Limits{
			MaxRecords:     cfg.MaxRecords,
			MaxPoses:       cfg.MaxPoses,
			CreateCooldown: cfg.CreateCooldown,
		},
		log:        log.With("module", "records"),
		now:        time.Now,
		newID:      uuid.NewString,
		lastCreate: make(map[string]time.Time),
	}
}

func (s *RecordService) Limits() models.Limits {
	return s.limits
}

// Create inserts an empty record for owner. Creating inside the cooldown
// yields ErrRateLimited and creating at the record limit ErrValidationFailed.
func (s *RecordService) Create(ctx context.Context, owner string) (*models.CharaRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastCreate[owner]; ok && now.Sub(last) < s.limits.CreateCooldown {
		return nil, fmt.Errorf("next record allowed in %s: %w",
			s.limits.CreateCooldown-now.Sub(last), common.ErrRateLimited)
	}

	repo := s.repomanager.Records(s.db)
	if s.limits.MaxRecords > 0 {
		n, err := repo.CountByOwner(ctx, owner)
		if err != nil {
			return nil, err
		}
		if n >= s.limits.MaxRecords {
			return nil, fmt.Errorf("record limit %d reached: %w", s.limits.MaxRecords, common.ErrValidationFailed)
		}
	}

	rec := models.NewSkeleton(s.newID(), owner, now)
	if err := repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	s.lastCreate[owner] = now
	s.log.Info(ctx, "record created", "record_id", rec.ID, "owner_id", owner)
	return rec, nil
}

// Update applies the carried field groups to owner's record id and
// returns the stored result.
func (s *RecordService) Update(ctx context.Context, owner, id string, update models.RecordUpdate) (*models.CharaRecord, error) {
	if update.Empty() {
		return nil, fmt.Errorf("update carries no fields: %w", common.ErrValidationFailed)
	}
	return s.mutate(ctx, owner, id, update.ApplyTo)
}

// UploadAppearance replaces the appearance payload and file manifest.
func (s *RecordService) UploadAppearance(ctx context.Context, owner, id string, payload []byte, files []models.FileEntry) (*models.CharaRecord, error) {
	return s.mutate(ctx, owner, id, func(r *models.CharaRecord) {
		r.Appearance = slices.Clone(payload)
		r.Files = slices.Clone(files)
	})
}

func (s *RecordService) mutate(ctx context.Context, owner, id string, apply func(*models.CharaRecord)) (*models.CharaRecord, error) {
	var saved *models.CharaRecord
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Records(tx)
		rec, err := repo.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if rec.OwnerID != owner {
			return fmt.Errorf("record %s belongs to another user: %w", id, common.ErrPermissionDenied)
		}

		apply(rec)
		if err := s.normalize(rec); err != nil {
			return err
		}
		rec.UpdatedAt = s.now()

		if err := repo.Update(ctx, rec); err != nil {
			return err
		}
		saved = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Debug(ctx, "record saved", "record_id", id, "poses", len(saved.Poses), "files", len(saved.Files))
	return saved, nil
}

// normalize brings rec into its stored form. Malformed identities are
// dropped, Shared with Everyone falls back to code-only sharing and
// cleared poses are removed.
func (s *RecordService) normalize(rec *models.CharaRecord) error {
	if !rec.AccessRule.Valid() {
		return fmt.Errorf("access rule %q: %w", rec.AccessRule, common.ErrValidationFailed)
	}
	if !rec.ShareRule.Valid() {
		return fmt.Errorf("share rule %q: %w", rec.ShareRule, common.ErrValidationFailed)
	}
	if !models.ValidRuleCombination(rec.AccessRule, rec.ShareRule) {
		rec.ShareRule = models.ShareCodeOnly
	}
	rec.AllowedUsers = cleanIdentities(rec.AllowedUsers, rec.OwnerID)
	rec.AllowedGroups = cleanIdentities(rec.AllowedGroups, "")

	if rec.Files == nil {
		rec.Files = []models.FileEntry{}
	}
	for i, f := range rec.Files {
		f.Hash = models.NormalizeHash(string(f.Hash))
		if f.GamePath == "" || !f.Hash.Valid() {
			return fmt.Errorf("file entry %d (%q): %w", i, f.GamePath, common.ErrValidationFailed)
		}
		rec.Files[i] = f
	}

	if rec.Poses == nil {
		rec.Poses = []models.PoseEntry{}
	}
	rec.CompactPoses(s.newID)
	return models.ValidateRecord(rec, s.limits.MaxPoses)
}

func cleanIdentities(ids []string, skip string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != skip && models.ValidIdentity(id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func (s *RecordService) Delete(ctx context.Context, owner, id string) error {
	repo := s.repomanager.Records(s.db)
	rec, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.OwnerID != owner {
		return fmt.Errorf("record %s belongs to another user: %w", id, common.ErrPermissionDenied)
	}
	if err := repo.Delete(ctx, id, owner); err != nil {
		return err
	}
	s.log.Info(ctx, "record deleted", "record_id", id)
	return nil
}

func (s *RecordService) Owned(ctx context.Context, owner string) ([]*models.CharaRecord, error) {
	return s.repomanager.Records(s.db).ListByOwner(ctx, owner)
}

// Shared lists the shared records viewer may read.
func (s *RecordService) Shared(ctx context.Context, viewer string) ([]*models.CharaRecord, error) {
	snap, err := s.snapshot(ctx, viewer)
	if err != nil {
		return nil, err
	}
	all, err := s.repomanager.Records(s.db).ListShared(ctx, viewer, s.now())
	if err != nil {
		return nil, err
	}
	visible := make([]*models.CharaRecord, 0, len(all))
	for _, rec := range all {
		if snap.CanAccess(viewer, rec) {
			visible = append(visible, rec)
		}
	}
	return visible, nil
}

func (s *RecordService) snapshot(ctx context.Context, viewer string) (*access.Snapshot, error) {
	rel, err := s.repomanager.Relations(s.db).Relationships(ctx, viewer)
	if err != nil {
		return nil, err
	}
	return access.NewSnapshot(rel), nil
}

// resolve loads the record behind code for viewer. Unknown, expired,
// mismatched and inaccessible codes all read as ErrNotFound.
func (s *RecordService) resolve(ctx context.Context, viewer string, code models.Code) (*models.CharaRecord, error) {
	rec, err := s.repomanager.Records(s.db).Get(ctx, code.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.OwnerID != code.OwnerID || rec.Expired(s.now()) {
		return nil, fmt.Errorf("code %s: %w", code, common.ErrNotFound)
	}
	snap, err := s.snapshot(ctx, viewer)
	if err != nil {
		return nil, err
	}
	if !snap.CanAccess(viewer, rec) {
		return nil, fmt.Errorf("code %s: %w", code, common.ErrNotFound)
	}
	return rec, nil
}

// downloadable is true when rec has a payload and every file it needs is
// confirmed uploaded.
func (s *RecordService) downloadable(ctx context.Context, rec *models.CharaRecord) (bool, error) {
	if len(rec.Appearance) == 0 {
		return false, nil
	}
	hashes := rec.UniqueHashes()
	if len(hashes) == 0 {
		return true, nil
	}
	have, err := s.repomanager.Files(s.db).Uploaded(ctx, hashes)
	if err != nil {
		return false, err
	}
	return len(have) == len(hashes), nil
}

func (s *RecordService) FetchMeta(ctx context.Context, viewer string, code models.Code) (*models.RecordMeta, error) {
	rec, err := s.resolve(ctx, viewer, code)
	if err != nil {
		return nil, err
	}
	ok, err := s.downloadable(ctx, rec)
	if err != nil {
		return nil, err
	}
	return rec.Meta(ok), nil
}

// Download returns the full record behind code and counts the download.
// Owners fetching their own record are not counted.
func (s *RecordService) Download(ctx context.Context, viewer string, code models.Code) (*models.CharaRecord, error) {
	rec, err := s.resolve(ctx, viewer, code)
	if err != nil {
		return nil, err
	}
	if viewer != rec.OwnerID {
		n, err := s.repomanager.Records(s.db).IncrementDownloads(ctx, rec.ID)
		if err != nil {
			return nil, err
		}
		rec.DownloadCount = n
	}
	return rec, nil
}

// PurgeExpired deletes every record whose expiry has passed.
func (s *RecordService) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Records(s.db).PurgeExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info(ctx, "expired records purged", "count", n)
	}
	return n, nil
}
