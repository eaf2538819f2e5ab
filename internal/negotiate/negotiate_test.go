// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package negotiate

import (
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/luxfi/ids"

	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// harness wires a Negotiator to one end of an in-memory net.Pipe, leaving
// the test free to drive the other end as a fake upstairs.
type harness struct {
	client  *protocol.FrameWriter
	clientR *protocol.FrameReader
	n       *Negotiator
	frames  <-chan protocol.FrameOrError
	done    chan result
}

type result struct {
	res *Result
	err error
}

func newHarness(t *testing.T, readOnly bool) *harness {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() { clientConn.Close(); serverConn.Close() })

	reg := session.New(region.NewMemory(ids.GenerateTestID(), 512, 4, 2), readOnly, nil, nil)
	r := region.NewMemory(ids.GenerateTestID(), 512, 4, 2)

	serverWriter := protocol.NewFrameWriter(serverConn)
	serverReader := protocol.NewFrameReader(serverConn)
	frames := protocol.PumpFrames(serverReader)

	n := New(Config{ReadOnly: readOnly}, reg, r, serverWriter, nil)

	return &harness{
		client:  protocol.NewFrameWriter(clientConn),
		clientR: protocol.NewFrameReader(clientConn),
		n:       n,
		frames:  frames,
		done:    make(chan result, 1),
	}
}

func (h *harness) run() {
	go func() {
		res, err := h.n.Run(h.frames)
		h.done <- result{res, err}
	}()
}

func TestFullHandshakeSucceeds(t *testing.T) {
	h := newHarness(t, false)
	h.run()

	upstairsID := uuid.New()
	sessionID := uuid.New()

	require.NoError(t, h.client.WriteFrame(protocol.HereIAm{
		Version:    1,
		UpstairsID: [16]byte(upstairsID),
		SessionID:  [16]byte(sessionID),
		Gen:        1,
	}))
	f, err := h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.YesItsMe{}, f)

	require.NoError(t, h.client.WriteFrame(protocol.PromoteToActive{
		UpstairsID: [16]byte(upstairsID),
		SessionID:  [16]byte(sessionID),
		Gen:        1,
	}))
	f, err = h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.YouAreNowActive{}, f)

	require.NoError(t, h.client.WriteFrame(protocol.RegionInfoPlease{}))
	f, err = h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.RegionInfo{}, f)

	require.NoError(t, h.client.WriteFrame(protocol.LastFlush{LastFlushNumber: 0}))
	f, err = h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.LastFlushAck{}, f)

	r := <-h.done
	require.NoError(t, r.err)
	require.NotNil(t, r.res)
	require.Equal(t, uint64(1), r.res.Conn.Gen)
}

func TestVersionMismatchFails(t *testing.T) {
	h := newHarness(t, false)
	h.run()

	require.NoError(t, h.client.WriteFrame(protocol.HereIAm{
		Version:    2,
		UpstairsID: [16]byte(uuid.New()),
		SessionID:  [16]byte(uuid.New()),
	}))

	r := <-h.done
	require.ErrorIs(t, r.err, ErrUnsupportedVersion)
}

func TestReadOnlyMismatchFails(t *testing.T) {
	h := newHarness(t, true)
	h.run()

	require.NoError(t, h.client.WriteFrame(protocol.HereIAm{
		Version:    1,
		UpstairsID: [16]byte(uuid.New()),
		SessionID:  [16]byte(uuid.New()),
		ReadOnly:   false,
	}))
	f, err := h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.ReadOnlyMismatch{}, f)

	r := <-h.done
	require.ErrorIs(t, r.err, ErrReadOnlyMismatch)
}

// scenario 7: UUID mismatch at promote time.
func TestPromoteIdentityMismatchFails(t *testing.T) {
	h := newHarness(t, false)
	h.run()

	upstairsID := uuid.New()
	require.NoError(t, h.client.WriteFrame(protocol.HereIAm{
		Version:    1,
		UpstairsID: [16]byte(upstairsID),
		SessionID:  [16]byte(uuid.New()),
	}))
	_, err := h.clientR.ReadFrame()
	require.NoError(t, err)

	require.NoError(t, h.client.WriteFrame(protocol.PromoteToActive{
		UpstairsID: [16]byte(uuid.New()),
		SessionID:  [16]byte(uuid.New()),
	}))
	f, err := h.clientR.ReadFrame()
	require.NoError(t, err)
	require.IsType(t, protocol.UuidMismatch{}, f)

	r := <-h.done
	require.ErrorIs(t, r.err, ErrIdentityMismatch)
}
