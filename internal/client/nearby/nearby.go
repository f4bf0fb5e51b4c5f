// Package nearby keeps the list of shared, world-anchored poses around the
// local observer. The list is recomputed on a tick and published as a
// whole, so readers never see a half-built result.
package nearby

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/charasync/internal/logging"
	"github.com/dmitrijs2005/charasync/internal/models"
	"github.com/dmitrijs2005/charasync/internal/spatial"
)

const DefaultTick = time.Second

// Pose is one discovered pose. Published slices are shared between readers
// and must be treated as read-only.
type Pose struct {
	RecordID  string
	PoseIndex int
	OwnerID   string
	Pose      models.PoseEntry
	Distance  float64
	Bearing   float64
	Own       bool
}

// Observer is where the local character stands.
type Observer struct {
	Location models.Location
	Position models.Vec3
	Facing   float64
}

// Options are the filters applied on every refresh. A Radius of zero or
// less disables the distance filter.
type Options struct {
	Radius        float64
	IgnoreHousing bool
	IncludeOwn    bool
	// Background keeps ticks running while the view is hidden.
	Background bool
}

// PoolFunc returns the records to search. ObserverFunc reports the
// observer position, or false when it is unknown.
type (
	PoolFunc     func() []*models.CharaRecord
	ObserverFunc func() (Observer, bool)
	SelfFunc     func() string
)

type Index struct {
	pool     PoolFunc
	observer ObserverFunc
	self     SelfFunc
	tick     time.Duration
	log      logging.Logger

	mu      sync.RWMutex
	opts    Options
	visible atomic.Bool
	current atomic.Pointer[[]Pose]
	ticks   atomic.Uint64
}

func New(pool PoolFunc, observer ObserverFunc, self SelfFunc, tick time.Duration, opts Options, log logging.Logger) *Index {
	if tick <= 0 {
		tick = DefaultTick
	}
	idx := &Index{
		pool:     pool,
		observer: observer,
		self:     self,
		tick:     tick,
		log:      log.With("module", "nearby"),
		opts:     opts,
	}
	empty := []Pose{}
	idx.current.Store(&empty)
	return idx
}

func (i *Index) Options() Options {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.opts
}

// SetOptions changes the filters; they apply from the next refresh.
func (i *Index) SetOptions(o Options) {
	i.mu.Lock()
	i.opts = o
	i.mu.Unlock()
}

// SetVisible records whether the discovery view is shown.
func (i *Index) SetVisible(v bool) {
	i.visible.Store(v)
}

func (i *Index) Visible() bool {
	return i.visible.Load()
}

// Tick is the interval Run refreshes at.
func (i *Index) Tick() time.Duration {
	return i.tick
}

// Poses returns the last published result sorted by distance.
func (i *Index) Poses() []Pose {
	return *i.current.Load()
}

// Refreshes counts the refreshes performed by Run.
func (i *Index) Refreshes() uint64 {
	return i.ticks.Load()
}

// Refresh recomputes and publishes the result, and returns it.
func (i *Index) Refresh() []Pose {
	next := i.compute()
	i.current.Store(&next)
	return next
}

func (i *Index) compute() []Pose {
	obs, ok := i.observer()
	if !ok {
		return []Pose{}
	}
	opts := i.Options()
	self := ""
	if i.self != nil {
		self = i.self()
	}

	out := []Pose{}
	seen := make(map[string]struct{})
	for _, rec := range i.pool() {
		if rec == nil {
			continue
		}
		if _, dup := seen[rec.ID]; dup {
			continue
		}
		seen[rec.ID] = struct{}{}

		own := self != "" && rec.OwnerID == self
		if own && !opts.IncludeOwn {
			continue
		}
		for idx, p := range rec.Poses {
			w := p.World
			if w == nil || p.Cleared() {
				continue
			}
			if !spatial.Classify(obs.Location, w.Location).SameMap {
				continue
			}
			if !opts.IgnoreHousing && !spatial.SameHousing(obs.Location.Housing, w.Location.Housing) {
				continue
			}
			d := spatial.Distance(obs.Position, w.Position)
			if opts.Radius > 0 && d > opts.Radius {
				continue
			}
			out = append(out, Pose{
				RecordID:  rec.ID,
				PoseIndex: idx,
				OwnerID:   rec.OwnerID,
				Pose:      p.Clone(),
				Distance:  d,
				Bearing:   spatial.Bearing(obs.Position, obs.Facing, w.Position),
				Own:       own,
			})
		}
	}

	slices.SortFunc(out, func(a, b Pose) int {
		return cmp.Or(
			cmp.Compare(a.Distance, b.Distance),
			cmp.Compare(a.RecordID, b.RecordID),
			cmp.Compare(a.PoseIndex, b.PoseIndex),
		)
	})
	return out
}

// Run refreshes on every tick until ctx is done. Unless Background is set,
// ticks are skipped while the view is hidden.
func (i *Index) Run(ctx context.Context) error {
	t := time.NewTicker(i.tick)
	defer t.Stop()

	i.log.Debug(ctx, "nearby index started", "tick", i.tick)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if !i.Options().Background && !i.visible.Load() {
				continue
			}
			i.Refresh()
			i.ticks.Add(1)
		}
	}
}
