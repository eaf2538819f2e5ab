// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"context"
	"math/rand"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/ids"

	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
	"github.com/luxfi/downstairs/internal/work"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	w       *Worker
	clientR *protocol.FrameReader
	wake    chan uint64
	reg     *session.Registry
	region  region.Region
	conn    protocol.UpstairsConnection
}

func newFixture(t *testing.T, lossy Lossy) *fixture {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	r := region.NewMemory(ids.GenerateTestID(), 512, 4, 2)
	reg := session.New(r, false, nil, nil)

	conn := protocol.UpstairsConnection{UpstairsID: uuid.New(), SessionID: uuid.New(), Gen: 1}
	_, err := reg.Promote(conn)
	require.NoError(t, err)

	wake := make(chan uint64, WakeCapacity)
	fw := protocol.NewFrameWriter(serverConn)
	w := New(conn, reg, r, fw, wake, lossy, nil, nil)

	return &fixture{
		w:       w,
		clientR: protocol.NewFrameReader(clientConn),
		wake:    wake,
		reg:     reg,
		region:  r,
		conn:    conn,
	}
}

func (f *fixture) addJob(t *testing.T, dsw work.DownstairsWork) {
	t.Helper()
	q, err := f.reg.WithWork(f.conn)
	require.NoError(t, err)
	require.NoError(t, q.Add(dsw))
	f.wake <- dsw.DsID
}

func TestDrainExecutesReadAndAcks(t *testing.T) {
	f := newFixture(t, Lossy{})
	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  1,
		Op:    protocol.Read{Requests: []protocol.BlockRequest{{ExtentID: 0, Block: 0}}},
	})

	done := make(chan error, 1)
	go func() { done <- f.w.drain(context.Background()) }()

	resp, err := f.clientR.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	ack, ok := resp.(protocol.ReadResponse)
	require.True(t, ok)
	require.True(t, ack.Result.Ok)
	require.Len(t, ack.Responses, 1)

	q, err := f.reg.WithWork(f.conn)
	require.NoError(t, err)
	require.Contains(t, q.Completed(), uint64(1))
}

func TestDrainExecutesWriteThenFlushAdvancesHorizon(t *testing.T) {
	f := newFixture(t, Lossy{})
	payload := make([]byte, 512)
	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  1,
		Op:    protocol.Write{Writes: []protocol.BlockWrite{{ExtentID: 0, Block: 0, Bytes: payload}}},
	})
	done := make(chan error, 1)
	go func() { done <- f.w.drain(context.Background()) }()

	resp, err := f.clientR.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	wack, ok := resp.(protocol.WriteAck)
	require.True(t, ok)
	require.True(t, wack.Result.Ok)

	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  2,
		Op:    protocol.Flush{DepIDs: []uint64{1}, FlushNumber: 7, GenNumber: 1},
	})
	go func() { done <- f.w.drain(context.Background()) }()

	resp, err = f.clientR.ReadFrame()
	require.NoError(t, err)
	require.NoError(t, <-done)
	fack, ok := resp.(protocol.FlushAck)
	require.True(t, ok)
	require.True(t, fack.Result.Ok)

	q, err := f.reg.WithWork(f.conn)
	require.NoError(t, err)
	require.Equal(t, uint64(2), q.LastFlush())
	require.Empty(t, q.Completed(), "flush absorbs completed ids into the new horizon")
}

func TestDrainLeavesUnsatisfiedDepsInDepWait(t *testing.T) {
	f := newFixture(t, Lossy{})
	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  5,
		Op:    protocol.Read{DepIDs: []uint64{4}, Requests: []protocol.BlockRequest{{ExtentID: 0, Block: 0}}},
	})

	require.NoError(t, f.w.drain(context.Background()))

	q, err := f.reg.WithWork(f.conn)
	require.NoError(t, err)
	require.Equal(t, 1, q.Jobs(), "the job stays queued, waiting on its dependency")
}

func TestDrainAfterEvictionIsCleanNoOp(t *testing.T) {
	f := newFixture(t, Lossy{})
	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  1,
		Op:    protocol.Read{Requests: []protocol.BlockRequest{{ExtentID: 0, Block: 0}}},
	})

	other := protocol.UpstairsConnection{UpstairsID: uuid.New(), SessionID: uuid.New(), Gen: 2}
	_, err := f.reg.Promote(other)
	require.NoError(t, err)

	require.NoError(t, f.w.drain(context.Background()), "eviction mid-drain is reported as a clean stop, not an error")
}

func TestRunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, Lossy{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunWithLossyEnabledEndsOnlyByCancellation(t *testing.T) {
	f := newFixture(t, Lossy{Enabled: true, Rand: rand.New(rand.NewSource(1))})
	f.addJob(t, work.DownstairsWork{
		Owner: f.conn,
		DsID:  1,
		Op:    protocol.Read{Requests: []protocol.BlockRequest{{ExtentID: 0, Block: 0}}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.w.Run(ctx) }()

	// A skipped job is never acked with an error; it either shows up as a
	// completed ack eventually or the context simply expires first. Either
	// way Run must not return a non-cancellation error.
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(3 * time.Second):
	}
	cancel()
}
