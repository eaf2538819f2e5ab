// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package work

import (
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/time/rate"

	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/telemetry"
)

// Work is one session's queue. It is always reached through the session
// registry's with_work gateway (see internal/session), never shared
// directly, so its own lock only ever protects this one session's state.
type Work struct {
	mu sync.Mutex

	active    map[uint64]*DownstairsWork
	lastFlush uint64
	completed mapset.Set[uint64]

	// outstandingDeps is a diagnostic only: it is never consulted to decide
	// whether a job may run, only to rate-limit the "still waiting on N
	// deps" log line so a stuck chain doesn't flood the log.
	outstandingDeps map[uint64]int
	warnLimiter     *rate.Limiter

	log     *logging.Logger
	metrics *telemetry.Metrics
}

// New constructs an empty queue. log and metrics may both be nil; nil
// metrics simply means job counts aren't observed (tests, mainly).
func New(log *logging.Logger, metrics *telemetry.Metrics) *Work {
	return &Work{
		active:          make(map[uint64]*DownstairsWork),
		completed:       mapset.NewSet[uint64](),
		outstandingDeps: make(map[uint64]int),
		warnLimiter:     rate.NewLimiter(rate.Every(time.Second), 1),
		log:             log,
		metrics:         metrics,
	}
}

// Add inserts dsw under dsw.DsID. Resubmitting an id still resident is a
// programming error in the caller (the dispatcher must never do this) and
// returns ErrDuplicateJob rather than silently overwriting state a worker
// may be mid-flight on.
func (w *Work) Add(dsw DownstairsWork) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.active[dsw.DsID]; exists {
		return ErrDuplicateJob
	}
	cp := dsw
	cp.State = New
	w.active[dsw.DsID] = &cp
	if w.metrics != nil {
		w.metrics.JobsInFlight.Inc()
	}
	return nil
}

// NewWork returns, ascending, the ids of every job still in New or
// DepWait. Ascending order tends to unblock dependency chains in the
// fewest passes since ds_id is assigned monotonically by the upstairs.
func (w *Work) NewWork() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	ids := make([]uint64, 0, len(w.active))
	for id, dsw := range w.active {
		if dsw.State == New || dsw.State == DepWait {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (w *Work) depSatisfied(dep uint64) bool {
	return dep <= w.lastFlush || w.completed.Contains(dep)
}

// TryStart attempts to move id from New/DepWait to InProgress. It succeeds
// only if every dependency is satisfied; otherwise it marks the job
// DepWait (if it was New) and returns false. A missing id (raced with
// eviction's Clear) also returns false.
func (w *Work) TryStart(id uint64) (protocol.UpstairsConnection, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dsw, ok := w.active[id]
	if !ok {
		return protocol.UpstairsConnection{}, false
	}
	if dsw.State != New && dsw.State != DepWait {
		return protocol.UpstairsConnection{}, false
	}

	unmet := 0
	for _, d := range dsw.Op.Deps() {
		if !w.depSatisfied(d) {
			unmet++
		}
	}
	if unmet > 0 {
		dsw.State = DepWait
		w.outstandingDeps[id] = unmet
		if w.log != nil && w.warnLimiter.Allow() {
			w.log.Warn("job waiting on dependencies", "ds_id", id, "unmet", unmet)
		}
		return protocol.UpstairsConnection{}, false
	}

	delete(w.outstandingDeps, id)
	dsw.State = InProgress
	return dsw.Owner, true
}

// TakeReady returns a copy of id's job for a worker to execute. The state
// must already be InProgress (set by a prior TryStart); a missing id means
// eviction raced the worker between TryStart and TakeReady.
func (w *Work) TakeReady(id uint64) (DownstairsWork, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	dsw, ok := w.active[id]
	if !ok || dsw.State != InProgress {
		return DownstairsWork{}, false
	}
	return dsw.clone(), true
}

// Complete removes id from active. A flush resets the completed set and
// advances the flush horizon; any other op is recorded in completed so
// later jobs can see it as a satisfied dependency. A missing id (eviction
// raced completion) is a no-op, matching the worker's tolerance for a
// failed with_work call after this point.
func (w *Work) Complete(id uint64, wasFlush bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.active[id]; !ok {
		return
	}
	delete(w.active, id)
	delete(w.outstandingDeps, id)
	if w.metrics != nil {
		w.metrics.JobsInFlight.Dec()
	}

	if wasFlush {
		w.lastFlush = id
		w.completed.Clear()
		return
	}
	w.completed.Add(id)
}

// SetLastFlush is used by the negotiator's step-3 LastFlush handling to
// seed the horizon before any job has actually completed in this process.
func (w *Work) SetLastFlush(n uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastFlush = n
}

// LastFlush reports the current flush horizon.
func (w *Work) LastFlush() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFlush
}

// Completed reports the ds_ids completed since the last flush, for
// diagnostics and tests. The returned slice is a snapshot.
func (w *Work) Completed() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completed.ToSlice()
}

// Clear discards all queue state. Called by the session registry when this
// session is evicted or disconnects; the specification treats the queue as
// non-durable, so nothing here is persisted first.
func (w *Work) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metrics != nil {
		w.metrics.JobsInFlight.Sub(float64(len(w.active)))
	}
	w.active = make(map[uint64]*DownstairsWork)
	w.completed = mapset.NewSet[uint64]()
	w.outstandingDeps = make(map[uint64]int)
	w.lastFlush = 0
}

// Jobs reports the number of jobs currently resident in active.
func (w *Work) Jobs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.active)
}
