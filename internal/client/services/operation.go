package services

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOperationRunning is returned by Operation.Result before the operation
// has finished.
var ErrOperationRunning = errors.New("operation still running")

type OpKind string

const (
	KindDownloadOwned  OpKind = "download_owned"
	KindDownloadShared OpKind = "download_shared"
	KindUploadRecord   OpKind = "upload_record"
	KindCreateRecord   OpKind = "create_record"
	KindFetchMeta      OpKind = "fetch_meta"
	KindDownloadRecord OpKind = "download_record"
	KindRestoreFiles   OpKind = "restore_files"
	KindFetchFiles     OpKind = "fetch_files"
)

type OpState string

const (
	StateIdle      OpState = "idle"
	StateRunning   OpState = "running"
	StateCompleted OpState = "completed"
	StateCancelled OpState = "cancelled"
)

type Outcome string

const (
	OutcomeNone    Outcome = ""
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Progress is the latest progress an operation reported. Newer values
// replace older ones.
type Progress struct {
	Stage string
	Done  int
	Total int
}

// OpStatus is a point-in-time view of an operation.
type OpStatus struct {
	State      OpState
	Outcome    Outcome
	Progress   Progress
	Reason     string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// Finished reports whether the operation reached a terminal state.
func (s OpStatus) Finished() bool {
	return s.State == StateCompleted || s.State == StateCancelled
}

// Operation is the handle of one orchestrated transfer.
type Operation struct {
	ID   string
	Kind OpKind

	mu        sync.RWMutex
	status    OpStatus
	result    any
	cancel    context.CancelFunc
	cancelled bool
	done      chan struct{}
}

func newOperation(id string, kind OpKind) *Operation {
	return &Operation{
		ID:     id,
		Kind:   kind,
		status: OpStatus{State: StateIdle},
		done:   make(chan struct{}),
	}
}

func (o *Operation) Status() OpStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Cancel asks the operation to stop. Work already confirmed is kept.
func (o *Operation) Cancel() {
	o.mu.Lock()
	cancel := o.cancel
	if !o.status.Finished() {
		o.cancelled = true
	}
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed when the operation finished.
func (o *Operation) Done() <-chan struct{} {
	return o.done
}

// Result returns the operation's value and error once it finished, and
// ErrOperationRunning before that.
func (o *Operation) Result() (any, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if !o.status.Finished() {
		return nil, ErrOperationRunning
	}
	return o.result, o.status.Err
}

// Wait blocks until the operation finished or ctx is done.
func (o *Operation) Wait(ctx context.Context) (any, error) {
	select {
	case <-o.done:
		return o.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Operation) setProgress(stage string, done, total int) {
	o.mu.Lock()
	o.status.Progress = Progress{Stage: stage, Done: done, Total: total}
	o.mu.Unlock()
}

func (o *Operation) progressFunc(stage string) ProgressFunc {
	return func(done, total int) { o.setProgress(stage, done, total) }
}
