// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package session is the process-wide registry of active upstairs
// connections: it arbitrates promotion (enforcing at most one read-write
// owner, fenced by generation number, and at most one read-only owner per
// upstairs identity), and is the sole gateway ("with_work") by which a
// dispatcher or worker task reaches a session's Work queue. Modeled after
// the teacher's Network type in network.go: one process-wide lock guarding
// a small map, plus a per-entry single-slot channel standing in for
// pendingRequests' per-request channels.
package session

import (
	"sync"

	"github.com/google/uuid"

	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/telemetry"
	"github.com/luxfi/downstairs/internal/work"
)

// ActiveUpstairs is one registry entry: the identity that is currently
// promoted, its Work queue, and the single-slot channel used to notify it
// of eviction.
type ActiveUpstairs struct {
	Connection protocol.UpstairsConnection
	Work       *work.Work

	terminate chan protocol.UpstairsConnection
}

// Terminate returns the receive side of the eviction channel. The owning
// connection's negotiator selects on this alongside its frame reader, and
// its supervisor watches it for the rest of the connection's life.
func (a *ActiveUpstairs) Terminate() <-chan protocol.UpstairsConnection {
	return a.terminate
}

func newEntry(conn protocol.UpstairsConnection, log *logging.Logger, metrics *telemetry.Metrics) *ActiveUpstairs {
	return &ActiveUpstairs{
		Connection: conn,
		Work:       work.New(log, metrics),
		terminate:  make(chan protocol.UpstairsConnection, 1),
	}
}

// signal delivers newConn to old's evicted task. A full or closed channel
// (the old task already exited) is tolerated: the registry has already
// removed the entry, which is the only state that matters.
func signal(old *ActiveUpstairs, newConn protocol.UpstairsConnection) {
	select {
	case old.terminate <- newConn:
	default:
	}
}

// Registry is the process-wide set of active upstairs connections.
type Registry struct {
	mu       sync.Mutex
	readOnly bool
	region   region.Region
	log      *logging.Logger
	metrics  *telemetry.Metrics

	active map[uuid.UUID]*ActiveUpstairs
}

// New constructs a registry for a region opened in the given mode. log and
// metrics may both be nil.
func New(r region.Region, readOnly bool, log *logging.Logger, metrics *telemetry.Metrics) *Registry {
	return &Registry{
		readOnly: readOnly,
		region:   r,
		log:      log,
		metrics:  metrics,
		active:   make(map[uuid.UUID]*ActiveUpstairs),
	}
}

func (r *Registry) setActive(key uuid.UUID, entry *ActiveUpstairs) {
	r.active[key] = entry
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.active)))
	}
}

func (r *Registry) dropActive(key uuid.UUID, evicted bool) {
	delete(r.active, key)
	if r.metrics != nil {
		r.metrics.ActiveSessions.Set(float64(len(r.active)))
		if evicted {
			r.metrics.Evictions.Inc()
		}
	}
}

// Promote attempts to make conn the active owner of its slot, per the
// read-write or read-only arbitration rules. On success it returns the
// registry entry the caller should retain; the caller does not need to
// call WithWork immediately afterward since the returned entry already
// carries the live Work reference.
func (r *Registry) Promote(conn protocol.UpstairsConnection) (*ActiveUpstairs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.readOnly {
		return r.promoteReadOnly(conn)
	}
	return r.promoteReadWrite(conn)
}

func (r *Registry) promoteReadWrite(conn protocol.UpstairsConnection) (*ActiveUpstairs, error) {
	switch len(r.active) {
	case 0:
		entry := newEntry(conn, r.log, r.metrics)
		r.setActive(conn.UpstairsID, entry)
		if err := r.region.ReopenAllExtents(); err != nil {
			r.dropActive(conn.UpstairsID, false)
			return nil, err
		}
		return entry, nil

	case 1:
		var curKey uuid.UUID
		var cur *ActiveUpstairs
		for k, v := range r.active {
			curKey, cur = k, v
		}

		switch {
		case conn.Gen < cur.Connection.Gen:
			return nil, ErrStaleGeneration
		case conn.Gen == cur.Connection.Gen:
			if conn.Equal(cur.Connection) {
				return cur, nil
			}
			return nil, ErrIdentityConflict
		default: // conn.Gen > cur.Connection.Gen: evict and take over.
			signal(cur, conn)
			cur.Work.Clear()
			r.dropActive(curKey, true)

			entry := newEntry(conn, r.log, r.metrics)
			r.setActive(conn.UpstairsID, entry)
			if err := r.region.ReopenAllExtents(); err != nil {
				r.dropActive(conn.UpstairsID, false)
				return nil, err
			}
			return entry, nil
		}

	default:
		return nil, ErrTooManyOwners
	}
}

func (r *Registry) promoteReadOnly(conn protocol.UpstairsConnection) (*ActiveUpstairs, error) {
	if cur, ok := r.active[conn.UpstairsID]; ok {
		signal(cur, conn)
		cur.Work.Clear()
		r.dropActive(conn.UpstairsID, true)
	}

	entry := newEntry(conn, r.log, r.metrics)
	r.setActive(conn.UpstairsID, entry)
	return entry, nil
}

// WithWork returns the Work queue for conn iff conn is still, field for
// field, the registered owner of its upstairs_id slot. A promotion that
// has since replaced the entry causes this to fail with
// ErrUpstairsInactive, which is how a laggard dispatcher or worker task
// notices it has been evicted.
func (r *Registry) WithWork(conn protocol.UpstairsConnection) (*work.Work, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.active[conn.UpstairsID]
	if !ok || !entry.Connection.Equal(conn) {
		return nil, ErrUpstairsInactive
	}
	return entry.Work, nil
}

// IsActive reports whether conn is still the exact registered owner of
// its slot.
func (r *Registry) IsActive(conn protocol.UpstairsConnection) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.active[conn.UpstairsID]
	return ok && entry.Connection.Equal(conn)
}

// Clear drops conn's registry entry if, and only if, conn is still the
// exact registered owner. Called on clean disconnect (frame reader EOF);
// a connection that has already been evicted by a newer promotion must
// not clear the newer owner's entry.
func (r *Registry) Clear(conn protocol.UpstairsConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.active[conn.UpstairsID]
	if !ok || !entry.Connection.Equal(conn) {
		return
	}
	entry.Work.Clear()
	r.dropActive(conn.UpstairsID, false)
}

// List returns a snapshot of every currently active connection identity.
func (r *Registry) List() []protocol.UpstairsConnection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.UpstairsConnection, 0, len(r.active))
	for _, entry := range r.active {
		out = append(out, entry.Connection)
	}
	return out
}
