package services

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// DefaultSaveQueueDepth is how many saves may wait behind the one in flight
// for the same record.
const DefaultSaveQueueDepth = 4

// DefaultMaxPoses applies until the server advertises its own limit.
const DefaultMaxPoses = 20

// RecordSink receives owned records after the store changed them, so a
// local cache can follow.
type RecordSink interface {
	Upsert(ctx context.Context, scope models.RecordScope, rec *models.CharaRecord) error
	Delete(ctx context.Context, scope models.RecordScope, id string) error
}

type RecordStoreConfig struct {
	CreateCooldown time.Duration
	SaveQueueDepth int
}

// RecordStore owns the canonical copies of the user's records and the
// pending edits opened on them. Canonical records are never edited in
// place; changes go through a PendingEdit and Save.
type RecordStore struct {
	client client.RecordClient
	sink   RecordSink
	log    logging.Logger
	now    func() time.Time

	cooldown   time.Duration
	queueDepth int

	mu         sync.RWMutex
	records    map[string]*models.CharaRecord
	edits      map[string]*models.PendingEdit
	limits     models.Limits
	lastCreate time.Time
	creating   bool

	slotMu sync.Mutex
	slots  map[string]*saveSlot
}

type saveSlot struct {
	sem     chan struct{}
	pending int
}

// NewRecordStore builds an empty store. sink may be nil.
func NewRecordStore(c client.RecordClient, sink RecordSink, cfg RecordStoreConfig, log logging.Logger) *RecordStore {
	depth := cfg.SaveQueueDepth
	if depth < 0 {
		depth = 0
	}
	return &RecordStore{
		client:     c,
		sink:       sink,
		log:        log.With("module", "records"),
		now:        time.Now,
		cooldown:   cfg.CreateCooldown,
		queueDepth: depth,
		records:    make(map[string]*models.CharaRecord),
		edits:      make(map[string]*models.PendingEdit),
		limits:     models.Limits{MaxPoses: DefaultMaxPoses},
		slots:      make(map[string]*saveSlot),
	}
}

// RefreshLimits loads the server-advertised limits.
func (s *RecordStore) RefreshLimits(ctx context.Context) (models.Limits, error) {
	l, err := s.client.GetLimits(ctx)
	if err != nil {
		return models.Limits{}, fmt.Errorf("get limits: %w", err)
	}
	s.SetLimits(l)
	return l, nil
}

func (s *RecordStore) SetLimits(l models.Limits) {
	if l.MaxPoses <= 0 {
		l.MaxPoses = DefaultMaxPoses
	}
	s.mu.Lock()
	s.limits = l
	s.mu.Unlock()
}

func (s *RecordStore) Limits() models.Limits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.limits
}

// CreateCooldownLeft reports how long Create stays rate limited.
func (s *RecordStore) CreateCooldownLeft() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cooldownLeftLocked()
}

func (s *RecordStore) createCooldown() time.Duration {
	return max(s.cooldown, s.limits.CreateCooldown)
}

func (s *RecordStore) cooldownLeftLocked() time.Duration {
	if s.lastCreate.IsZero() {
		return 0
	}
	left := s.createCooldown() - s.now().Sub(s.lastCreate)
	return max(left, 0)
}

// Create asks the server for a new record and inserts the acknowledged
// skeleton. The cooldown slot is held while the call is in flight and given
// back if it fails.
func (s *RecordStore) Create(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return "", fmt.Errorf("create already in progress: %w", common.ErrRateLimited)
	}
	if s.limits.MaxRecords > 0 && len(s.records) >= s.limits.MaxRecords {
		s.mu.Unlock()
		return "", fmt.Errorf("record limit %d reached: %w", s.limits.MaxRecords, common.ErrValidationFailed)
	}
	if left := s.cooldownLeftLocked(); left > 0 {
		s.mu.Unlock()
		return "", fmt.Errorf("next record can be created in %s: %w", left.Round(time.Second), common.ErrRateLimited)
	}
	prev := s.lastCreate
	s.lastCreate = s.now()
	s.creating = true
	s.mu.Unlock()

	rec, err := s.client.CreateRecord(ctx)

	s.mu.Lock()
	s.creating = false
	if err != nil {
		s.lastCreate = prev
		s.mu.Unlock()
		return "", fmt.Errorf("create record: %w", err)
	}
	s.records[rec.ID] = rec.Clone()
	s.mu.Unlock()

	s.persist(ctx, rec)
	s.log.Info(ctx, "record created", "record_id", rec.ID)
	return rec.ID, nil
}

// Get returns a copy of the canonical record.
func (s *RecordStore) Get(id string) (*models.CharaRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Records returns copies of all canonical records, oldest first.
func (s *RecordStore) Records() []*models.CharaRecord {
	s.mu.RLock()
	out := make([]*models.CharaRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.CharaRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// ReplaceOwned swaps in the records of a completed refresh. Clean edits are
// reopened on the new canonical values; dirty edits are kept; edits of
// records that vanished are discarded.
func (s *RecordStore) ReplaceOwned(recs []*models.CharaRecord) {
	now := s.now()
	next := make(map[string]*models.CharaRecord, len(recs))
	for _, r := range recs {
		if r.Expired(now) {
			continue
		}
		next[r.ID] = r.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = next
	for id, e := range s.edits {
		rec, ok := next[id]
		switch {
		case !ok:
			delete(s.edits, id)
		case !e.IsDirty():
			s.edits[id] = models.NewPendingEdit(rec, s.limits.MaxPoses)
		}
	}
}

// Reset forgets every record, edit, limit and the create cooldown, leaving
// the store as NewRecordStore built it.
func (s *RecordStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*models.CharaRecord)
	s.edits = make(map[string]*models.PendingEdit)
	s.limits = models.Limits{MaxPoses: DefaultMaxPoses}
	s.lastCreate = time.Time{}
}

// BeginEdit opens the pending edit for id, or returns the one already open.
func (s *RecordStore) BeginEdit(id string) (*models.PendingEdit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.edits[id]; ok {
		return e, nil
	}
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	e := models.NewPendingEdit(rec, s.limits.MaxPoses)
	s.edits[id] = e
	return e, nil
}

// Edit returns the open edit for id, if any.
func (s *RecordStore) Edit(id string) (*models.PendingEdit, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edits[id]
	return e, ok
}

// Deselect discards the pending edit of id.
func (s *RecordStore) Deselect(id string) {
	s.mu.Lock()
	delete(s.edits, id)
	s.mu.Unlock()
}

func (s *RecordStore) AddAllowedUser(id, user string) error {
	e, err := s.BeginEdit(id)
	if err != nil {
		return err
	}
	return e.AddAllowedUser(user)
}

func (s *RecordStore) RemoveAllowedUser(id, user string) (bool, error) {
	e, err := s.BeginEdit(id)
	if err != nil {
		return false, err
	}
	return e.RemoveAllowedUser(user), nil
}

func (s *RecordStore) AddAllowedGroup(id, group string) error {
	e, err := s.BeginEdit(id)
	if err != nil {
		return err
	}
	return e.AddAllowedGroup(group)
}

func (s *RecordStore) RemoveAllowedGroup(id, group string) (bool, error) {
	e, err := s.BeginEdit(id)
	if err != nil {
		return false, err
	}
	return e.RemoveAllowedGroup(group), nil
}

// Save sends the dirty groups of id's edit. On success the sent groups are
// clean and the canonical record is replaced by the server's copy; on
// failure the edit is left as it was. Saves of one record run one at a
// time, with up to the configured queue depth waiting; further requests
// fail with common.ErrConflict. A queued save finding that the saves ahead
// of it already sent everything returns nil.
func (s *RecordStore) Save(ctx context.Context, id string) error {
	if !s.hasChanges(id) {
		return fmt.Errorf("record %s has no pending changes: %w", id, common.ErrValidationFailed)
	}
	release, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer release()

	s.mu.RLock()
	e, ok := s.edits[id]
	s.mu.RUnlock()
	if !ok || !e.IsDirty() {
		return nil
	}
	if err := e.Validate(); err != nil {
		return err
	}

	update, token := e.Diff()
	rec, err := s.client.UpdateRecord(ctx, id, update)
	if err != nil {
		return fmt.Errorf("save record %s: %w", id, err)
	}

	s.mu.Lock()
	s.records[id] = rec.Clone()
	if cur, ok := s.edits[id]; ok && cur == e {
		e.Rebase(rec, token)
	}
	s.mu.Unlock()

	s.persist(ctx, rec)
	s.log.Info(ctx, "record saved", "record_id", id, "groups", token.Groups().String())
	return nil
}

func (s *RecordStore) hasChanges(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.edits[id]
	return ok && e.IsDirty()
}

func (s *RecordStore) acquire(ctx context.Context, id string) (func(), error) {
	s.slotMu.Lock()
	slot, ok := s.slots[id]
	if !ok {
		slot = &saveSlot{sem: make(chan struct{}, 1)}
		s.slots[id] = slot
	}
	if slot.pending >= 1+s.queueDepth {
		s.slotMu.Unlock()
		return nil, fmt.Errorf("save queue of record %s is full: %w", id, common.ErrConflict)
	}
	slot.pending++
	s.slotMu.Unlock()

	done := func() {
		s.slotMu.Lock()
		slot.pending--
		if slot.pending == 0 {
			delete(s.slots, id)
		}
		s.slotMu.Unlock()
	}

	select {
	case slot.sem <- struct{}{}:
		return func() {
			<-slot.sem
			done()
		}, nil
	case <-ctx.Done():
		done()
		return nil, fmt.Errorf("save record %s: %w: %w", id, common.ErrCancelled, ctx.Err())
	}
}

// SetAppearance uploads a new appearance for id directly. An open edit keeps
// its own pending changes on top of the new canonical record.
func (s *RecordStore) SetAppearance(ctx context.Context, id string, payload []byte, files []models.FileEntry) error {
	if _, ok := s.Get(id); !ok {
		return fmt.Errorf("record %s: %w", id, common.ErrNotFound)
	}
	rec, err := s.client.UploadAppearance(ctx, id, payload, files)
	if err != nil {
		return fmt.Errorf("upload appearance %s: %w", id, err)
	}

	s.mu.Lock()
	s.records[id] = rec.Clone()
	if e, ok := s.edits[id]; ok {
		e.Rebase(rec, models.SaveToken{})
	}
	s.mu.Unlock()

	s.persist(ctx, rec)
	return nil
}

// Delete removes id on the server. It is irreversible, so the caller must
// pass confirmed=true.
func (s *RecordStore) Delete(ctx context.Context, id string, confirmed bool) error {
	if !confirmed {
		return fmt.Errorf("delete of record %s not confirmed: %w", id, common.ErrValidationFailed)
	}
	if err := s.client.DeleteRecord(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}

	s.mu.Lock()
	delete(s.records, id)
	delete(s.edits, id)
	s.mu.Unlock()

	if s.sink != nil {
		if err := s.sink.Delete(ctx, models.ScopeOwned, id); err != nil {
			s.log.Warn(ctx, "cache delete failed", "record_id", id, "error", err)
		}
	}
	s.log.Info(ctx, "record deleted", "record_id", id)
	return nil
}

func (s *RecordStore) persist(ctx context.Context, rec *models.CharaRecord) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Upsert(ctx, models.ScopeOwned, rec); err != nil {
		s.log.Warn(ctx, "cache update failed", "record_id", rec.ID, "error", err)
	}
}
