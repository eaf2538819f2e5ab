// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package work

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/downstairs/internal/protocol"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testOwner() protocol.UpstairsConnection {
	return protocol.UpstairsConnection{
		UpstairsID: uuid.New(),
		SessionID:  uuid.New(),
		Gen:        1,
	}
}

func addJob(t *testing.T, w *Work, id uint64, deps []uint64, op protocol.IOop) {
	t.Helper()
	switch o := op.(type) {
	case protocol.Read:
		o.DepIDs = deps
		op = o
	case protocol.Write:
		o.DepIDs = deps
		op = o
	case protocol.WriteUnwritten:
		o.DepIDs = deps
		op = o
	case protocol.Flush:
		o.DepIDs = deps
		op = o
	}
	require.NoError(t, w.Add(DownstairsWork{Owner: testOwner(), DsID: id, Op: op}))
}

// scenario 1: one read, no deps.
func TestOneReadNoDeps(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 1000, nil, protocol.Read{})

	ids := w.NewWork()
	require.Equal(t, []uint64{1000}, ids)

	owner, ok := w.TryStart(1000)
	require.True(t, ok)
	require.NotEqual(t, protocol.UpstairsConnection{}, owner)

	dsw, ok := w.TakeReady(1000)
	require.True(t, ok)
	require.Equal(t, InProgress, dsw.State)

	w.Complete(1000, false)
	require.Equal(t, []uint64{1000}, w.Completed())
	require.Equal(t, uint64(0), w.LastFlush())
	require.Equal(t, 0, w.Jobs())
}

// scenario 2 & 3: chain with a flush in the middle, then a big-deps flush
// absorption job that must be immediately runnable.
func TestFlushHorizonAbsorption(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 1000, nil, protocol.Write{})
	addJob(t, w, 1001, []uint64{1000}, protocol.Flush{})
	addJob(t, w, 1002, []uint64{1000, 1001}, protocol.Write{})

	_, ok := w.TryStart(1001)
	require.False(t, ok, "flush must wait on its write dependency")

	_, ok = w.TryStart(1000)
	require.True(t, ok)
	w.TakeReady(1000)
	w.Complete(1000, false)
	require.Equal(t, []uint64{1000}, w.Completed())

	_, ok = w.TryStart(1001)
	require.True(t, ok)
	w.TakeReady(1001)
	w.Complete(1001, true)
	require.Empty(t, w.Completed())
	require.Equal(t, uint64(1001), w.LastFlush())

	_, ok = w.TryStart(1002)
	require.True(t, ok, "write depending only on pre-horizon ids must be runnable")
	w.TakeReady(1002)
	w.Complete(1002, false)
	require.Equal(t, []uint64{1002}, w.Completed())

	// scenario 3: a job whose deps are all <= last_flush or in completed
	// becomes runnable without ever passing through DepWait.
	addJob(t, w, 1003, []uint64{1000, 1001, 1002}, protocol.Write{})
	_, ok = w.TryStart(1003)
	require.True(t, ok)
}

func TestTryStartMarksDepWait(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 2000, []uint64{1999}, protocol.Write{})

	_, ok := w.TryStart(2000)
	require.False(t, ok)
	require.Equal(t, 1, w.Jobs())
}

func TestDuplicateAddRejected(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 1, nil, protocol.Read{})
	require.ErrorIs(t, w.Add(DownstairsWork{Owner: testOwner(), DsID: 1, Op: protocol.Read{}}), ErrDuplicateJob)
}

func TestCompleteAfterEvictionIsNoOp(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 5, nil, protocol.Read{})
	w.Clear()
	require.NotPanics(t, func() { w.Complete(5, false) })
}

func TestTakeReadyRequiresInProgress(t *testing.T) {
	w := New(nil, nil)
	addJob(t, w, 7, nil, protocol.Read{})
	_, ok := w.TakeReady(7)
	require.False(t, ok, "a New job has not passed through TryStart yet")
}
