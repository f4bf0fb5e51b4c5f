package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/dmitrijs2005/charasync/internal/client/client"
	"github.com/dmitrijs2005/charasync/internal/common"
	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
)

// ScopeCache persists the result of a full refresh.
type ScopeCache interface {
	Replace(ctx context.Context, scope models.RecordScope, recs []*models.CharaRecord) error
}

type OrchestratorConfig struct {
	RefreshCooldown  time.Duration
	OperationTimeout time.Duration
	// RetainCount and RetainTTL bound how many finished operations stay
	// addressable, and for how long.
	RetainCount int
	RetainTTL   time.Duration
}

// Orchestrator runs record and file transfers in the background. Every
// call returns an Operation handle at once; callers poll it or wait on it.
type Orchestrator struct {
	client  client.RecordClient
	store   *RecordStore
	files   *FileResolver
	catalog *SharedCatalog
	cache   ScopeCache
	log     logging.Logger
	now     func() time.Time
	cfg     OrchestratorConfig

	root     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  map[string]*Operation
	refresh  map[OpKind]*Operation
	lastDone map[OpKind]time.Time
	finished *expirable.LRU[string, *Operation]
}

// NewOrchestrator wires the orchestrator. cache may be nil.
func NewOrchestrator(c client.RecordClient, store *RecordStore, files *FileResolver, catalog *SharedCatalog,
	cache ScopeCache, cfg OrchestratorConfig, log logging.Logger) *Orchestrator {
	if cfg.RetainCount <= 0 {
		cfg.RetainCount = 256
	}
	if cfg.RetainTTL <= 0 {
		cfg.RetainTTL = 10 * time.Minute
	}
	root, stop := context.WithCancel(context.Background())
	return &Orchestrator{
		client:   c,
		store:    store,
		files:    files,
		catalog:  catalog,
		cache:    cache,
		log:      log.With("module", "orchestrator"),
		now:      time.Now,
		cfg:      cfg,
		root:     root,
		stop:     stop,
		running:  make(map[string]*Operation),
		refresh:  make(map[OpKind]*Operation),
		lastDone: make(map[OpKind]time.Time),
		finished: expirable.NewLRU[string, *Operation](cfg.RetainCount, nil, cfg.RetainTTL),
	}
}

// Get finds a running or recently finished operation by id.
func (o *Orchestrator) Get(id string) (*Operation, bool) {
	o.mu.Lock()
	op, ok := o.running[id]
	o.mu.Unlock()
	if ok {
		return op, true
	}
	return o.finished.Get(id)
}

// Running lists the operations in flight.
func (o *Orchestrator) Running() []*Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Operation, 0, len(o.running))
	for _, op := range o.running {
		out = append(out, op)
	}
	return out
}

// RefreshCooldownLeft reports how long a refresh of kind stays rate limited.
func (o *Orchestrator) RefreshCooldownLeft(kind OpKind) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cooldownLeftLocked(kind)
}

func (o *Orchestrator) cooldownLeftLocked(kind OpKind) time.Duration {
	last, ok := o.lastDone[kind]
	if !ok {
		return 0
	}
	return max(o.cfg.RefreshCooldown-o.now().Sub(last), 0)
}

// DownloadAllOwned refreshes the owned records. Only one runs at a time,
// and a new one is refused until the refresh cooldown after the last
// successful one has elapsed.
func (o *Orchestrator) DownloadAllOwned() (*Operation, error) {
	return o.startRefresh(KindDownloadOwned, func(ctx context.Context, op *Operation) (any, error) {
		op.setProgress("download", 0, 1)
		recs, err := o.client.GetOwnedRecords(ctx)
		if err != nil {
			return nil, fmt.Errorf("get owned records: %w", err)
		}
		o.store.ReplaceOwned(recs)
		o.persist(ctx, models.ScopeOwned, recs)
		op.setProgress("download", 1, 1)
		return o.store.Records(), nil
	})
}

// DownloadAllShared refreshes the records shared with this account, under
// the same exclusivity and cooldown rules as DownloadAllOwned.
func (o *Orchestrator) DownloadAllShared() (*Operation, error) {
	return o.startRefresh(KindDownloadShared, func(ctx context.Context, op *Operation) (any, error) {
		op.setProgress("download", 0, 1)
		recs, err := o.client.GetSharedRecords(ctx)
		if err != nil {
			return nil, fmt.Errorf("get shared records: %w", err)
		}
		o.catalog.Replace(recs)
		o.persist(ctx, models.ScopeShared, recs)
		op.setProgress("download", 1, 1)
		return o.catalog.Records(), nil
	})
}

// UploadRecord saves the pending edit of id, if any, and then restores the
// files the server is missing for it. The result is a RestoreResult.
func (o *Orchestrator) UploadRecord(id string) *Operation {
	return o.start(KindUploadRecord, func(ctx context.Context, op *Operation) (any, error) {
		if e, ok := o.store.Edit(id); ok && e.IsDirty() {
			op.setProgress("save", 0, 1)
			if err := o.store.Save(ctx, id); err != nil {
				return nil, err
			}
			op.setProgress("save", 1, 1)
		}
		rec, ok := o.store.Get(id)
		if !ok {
			return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		return o.files.RestoreMissing(ctx, rec, op.progressFunc("files"))
	})
}

// CreateRecord creates a record; the result is its id.
func (o *Orchestrator) CreateRecord() *Operation {
	return o.start(KindCreateRecord, func(ctx context.Context, op *Operation) (any, error) {
		return o.store.Create(ctx)
	})
}

// FetchMeta looks up the summary of the record addressed by code.
func (o *Orchestrator) FetchMeta(code string) *Operation {
	return o.start(KindFetchMeta, func(ctx context.Context, op *Operation) (any, error) {
		c, err := models.ParseCode(code)
		if err != nil {
			return nil, err
		}
		return o.client.FetchMetaInfo(ctx, c)
	})
}

// DownloadRecord fetches the full record addressed by code and the files it
// references that are not cached yet. The result is the record.
func (o *Orchestrator) DownloadRecord(code string) *Operation {
	return o.start(KindDownloadRecord, func(ctx context.Context, op *Operation) (any, error) {
		c, err := models.ParseCode(code)
		if err != nil {
			return nil, err
		}
		op.setProgress("record", 0, 1)
		rec, err := o.client.DownloadRecord(ctx, c)
		if err != nil {
			return nil, err
		}
		op.setProgress("record", 1, 1)
		if _, err := o.files.FetchFiles(ctx, rec, op.progressFunc("files")); err != nil {
			return nil, err
		}
		return rec, nil
	})
}

// RestoreFiles uploads the missing files of owned record id.
func (o *Orchestrator) RestoreFiles(id string) *Operation {
	return o.start(KindRestoreFiles, func(ctx context.Context, op *Operation) (any, error) {
		rec, ok := o.store.Get(id)
		if !ok {
			return nil, fmt.Errorf("record %s: %w", id, common.ErrNotFound)
		}
		return o.files.RestoreMissing(ctx, rec, op.progressFunc("files"))
	})
}

// FetchFiles downloads the uncached files of rec. The result lists the
// stored hashes.
func (o *Orchestrator) FetchFiles(rec *models.CharaRecord) *Operation {
	rec = rec.Clone()
	return o.start(KindFetchFiles, func(ctx context.Context, op *Operation) (any, error) {
		return o.files.FetchFiles(ctx, rec, op.progressFunc("files"))
	})
}

// Reset cancels the operations in flight, waits for them to finish and then
// forgets the refresh cooldowns and every retained result.
func (o *Orchestrator) Reset() {
	for _, op := range o.Running() {
		op.Cancel()
		<-op.Done()
	}
	o.mu.Lock()
	clear(o.lastDone)
	o.mu.Unlock()
	o.finished.Purge()
}

// Close cancels everything in flight and waits for it to wind down.
func (o *Orchestrator) Close() {
	o.stop()
	o.wg.Wait()
}

type opFunc func(ctx context.Context, op *Operation) (any, error)

func (o *Orchestrator) startRefresh(kind OpKind, fn opFunc) (*Operation, error) {
	o.mu.Lock()
	if cur, ok := o.refresh[kind]; ok {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s already running as %s: %w", kind, cur.ID, common.ErrConflict)
	}
	if left := o.cooldownLeftLocked(kind); left > 0 {
		o.mu.Unlock()
		return nil, fmt.Errorf("%s available again in %s: %w", kind, left.Round(time.Second), common.ErrRateLimited)
	}
	op := o.launchLocked(kind, fn)
	o.refresh[kind] = op
	o.mu.Unlock()
	return op, nil
}

func (o *Orchestrator) start(kind OpKind, fn opFunc) *Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.launchLocked(kind, fn)
}

func (o *Orchestrator) launchLocked(kind OpKind, fn opFunc) *Operation {
	op := newOperation(uuid.NewString(), kind)

	ctx, cancel := context.WithCancel(o.root)
	if o.cfg.OperationTimeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, o.cfg.OperationTimeout)
		parent := cancel
		cancel = func() {
			cancelTimeout()
			parent()
		}
	}

	op.cancel = cancel
	op.status = OpStatus{State: StateRunning, StartedAt: o.now()}
	o.running[op.ID] = op

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		res, err := fn(ctx, op)
		o.finish(ctx, op, res, err)
	}()
	return op
}

func (o *Orchestrator) finish(ctx context.Context, op *Operation, res any, err error) {
	now := o.now()

	op.mu.Lock()
	st := op.status
	st.FinishedAt = now
	switch {
	case err == nil:
		st.State, st.Outcome = StateCompleted, OutcomeSuccess
		op.result = res
	case op.cancelled || errors.Is(err, common.ErrCancelled) ||
		errors.Is(err, context.Canceled) && !errors.Is(ctx.Err(), context.DeadlineExceeded):
		st.State, st.Outcome = StateCancelled, OutcomeNone
		if !errors.Is(err, common.ErrCancelled) {
			err = fmt.Errorf("%w: %w", common.ErrCancelled, err)
		}
		op.result = res
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		st.State, st.Outcome = StateCompleted, OutcomeFailure
		if !errors.Is(err, common.ErrTimeout) {
			err = fmt.Errorf("%w: %w", common.ErrTimeout, err)
		}
		op.result = res
	default:
		st.State, st.Outcome = StateCompleted, OutcomeFailure
		op.result = res
	}
	st.Err = err
	st.Reason = common.Reason(err)
	op.status = st
	op.mu.Unlock()

	o.mu.Lock()
	delete(o.running, op.ID)
	if o.refresh[op.Kind] == op {
		delete(o.refresh, op.Kind)
		if st.Outcome == OutcomeSuccess {
			o.lastDone[op.Kind] = now
		}
	}
	o.finished.Add(op.ID, op)
	o.mu.Unlock()

	close(op.done)

	if err != nil {
		o.log.Warn(ctx, "operation failed", "op_id", op.ID, "kind", op.Kind, "reason", st.Reason, "error", err)
	} else {
		o.log.Debug(ctx, "operation completed", "op_id", op.ID, "kind", op.Kind)
	}
}

func (o *Orchestrator) persist(ctx context.Context, scope models.RecordScope, recs []*models.CharaRecord) {
	if o.cache == nil {
		return
	}
	if err := o.cache.Replace(ctx, scope, recs); err != nil {
		o.log.Warn(ctx, "cache replace failed", "scope", scope, "error", err)
	}
}
