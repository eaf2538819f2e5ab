// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package worker drains a session's ready jobs and executes them against
// the region. Styled after the teacher's long-running subscription loops
// (a select over a wake channel and a context's Done channel, draining
// work until told to stop) rather than any one specific file, since the
// teacher's closest analogue (gossip push loops) lives in a file this
// repository did not need to keep.
package worker

import (
	"context"
	"math/rand"
	"time"

	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
	"github.com/luxfi/downstairs/internal/telemetry"
)

// WakeCapacity is the bound on the dispatcher-to-worker wake channel. Once
// full, the dispatcher blocks posting new job ids, which backpressures the
// frame reader and, transitively, the upstairs' TCP writes.
const WakeCapacity = 200

// Lossy, when set, enables the test-only fault injection described in the
// worker loop: a random sleep between scanning for new work and draining
// it, and a random chance of skipping any given ready job (it is retried
// on the next wake).
type Lossy struct {
	Enabled bool
	Rand    *rand.Rand
}

// Worker drains one session's ready jobs.
type Worker struct {
	conn     protocol.UpstairsConnection
	registry *session.Registry
	region   region.Region
	fw       *protocol.FrameWriter
	wake     <-chan uint64
	lossy    Lossy
	log      *logging.Logger
	metrics  *telemetry.Metrics
}

// New constructs a Worker for conn. wake is shared with the dispatcher,
// which posts a job id there every time it adds work to the queue.
// metrics may be nil, in which case job counts simply aren't observed.
func New(conn protocol.UpstairsConnection, registry *session.Registry, r region.Region, fw *protocol.FrameWriter, wake <-chan uint64, lossy Lossy, log *logging.Logger, metrics *telemetry.Metrics) *Worker {
	return &Worker{conn: conn, registry: registry, region: r, fw: fw, wake: wake, lossy: lossy, log: log, metrics: metrics}
}

// Run drains ready jobs until ctx is canceled, then returns ctx.Err().
// Returning nil means the session was evicted (or the wake channel was
// closed), a clean reason to stop; any other error is a genuine failure.
func (w *Worker) Run(ctx context.Context) error {
	var selfWake <-chan time.Time
	if w.lossy.Enabled {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		selfWake = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-selfWake:
		case _, ok := <-w.wake:
			if !ok {
				return nil
			}
		}

		if err := w.drain(ctx); err != nil {
			return err
		}
		if !w.registry.IsActive(w.conn) {
			return nil
		}
	}
}

// drain runs one pass over every New/DepWait job. It returns nil (rather
// than propagating ErrUpstairsInactive) when eviction ends the session
// mid-pass, since that is the expected way a takeover retires a worker.
func (w *Worker) drain(ctx context.Context) error {
	if !w.registry.IsActive(w.conn) {
		return nil
	}

	q, err := w.registry.WithWork(w.conn)
	if err != nil {
		return nil
	}

	if w.lossy.Enabled && w.lossy.Rand.Intn(4) == 0 {
		time.Sleep(time.Duration(w.lossy.Rand.Intn(1000)) * time.Millisecond)
	}

	for _, id := range q.NewWork() {
		if w.lossy.Enabled && w.lossy.Rand.Intn(5) == 0 {
			continue
		}

		owner, ok := q.TryStart(id)
		if !ok {
			continue
		}
		dsw, ok := q.TakeReady(id)
		if !ok {
			continue
		}

		ack, err := w.execute(ctx, owner, dsw)
		if err != nil {
			return err
		}
		if err := w.fw.WriteFrame(ack); err != nil {
			return err
		}

		// Re-acquire: a takeover may have landed between TakeReady and
		// here. Completing against a stale Work pointer would silently
		// resurrect state the new owner never produced, so Complete is
		// always called through a fresh WithWork lookup.
		q2, err := w.registry.WithWork(w.conn)
		if err != nil {
			return nil
		}
		q2.Complete(id, dsw.Op.IsFlush())
	}
	return nil
}
