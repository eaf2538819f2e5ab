// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package dispatch implements the steady-state frame router: once a
// connection has finished negotiation, every inbound frame passes through
// here to be answered inline (Ruok, extent repair) or turned into a queued
// job for the worker loop. Grounded on the teacher's AppRequest/AppResponse
// handling in network.go and the gossip Add path in gossip.go, both of
// which validate a message before mutating shared state and reply
// immediately rather than queuing for anything but the actual work.
package dispatch

import (
	"context"

	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
	"github.com/luxfi/downstairs/internal/work"
)

// Dispatcher routes frames for one connection after negotiation.
type Dispatcher struct {
	conn     protocol.UpstairsConnection
	registry *session.Registry
	region   region.Region
	fw       *protocol.FrameWriter
	readOnly bool
	wake     chan<- uint64
	log      *logging.Logger
}

// New constructs a Dispatcher for conn. wake is the worker's bounded wake
// channel; posting a job id there is how the dispatcher hands new work to
// the worker loop.
func New(conn protocol.UpstairsConnection, registry *session.Registry, r region.Region, fw *protocol.FrameWriter, readOnly bool, wake chan<- uint64, log *logging.Logger) *Dispatcher {
	return &Dispatcher{conn: conn, registry: registry, region: r, fw: fw, readOnly: readOnly, wake: wake, log: log}
}

// Run consumes frames until the frame pump reports an error, ctx is
// canceled, or a frame cannot be handled. It never returns nil: it returns
// whatever error ended it (io.EOF when the peer closed cleanly, ctx.Err(),
// or the handling error), and the connection supervisor treats any of
// these as a reason to tear the connection down.
func (d *Dispatcher) Run(ctx context.Context, frames <-chan protocol.FrameOrError) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fe := <-frames:
			if fe.Err != nil {
				return fe.Err
			}
			if err := d.handle(fe.Frame); err != nil {
				return err
			}
		}
	}
}

func (d *Dispatcher) handle(f protocol.Frame) error {
	switch msg := f.(type) {
	case protocol.Ruok:
		return d.fw.WriteFrame(protocol.Imok{})

	case protocol.ReadRequest:
		return d.handleIO(msg.UpstairsID, msg.SessionID, msg.JobID, msg.Deps, protocol.IOopFromReadRequest(msg), false)
	case protocol.WriteMsg:
		return d.handleIO(msg.UpstairsID, msg.SessionID, msg.JobID, msg.Deps, protocol.IOopFromWrite(msg), true)
	case protocol.WriteUnwrittenMsg:
		return d.handleIO(msg.UpstairsID, msg.SessionID, msg.JobID, msg.Deps, protocol.IOopFromWriteUnwritten(msg), true)
	case protocol.FlushMsg:
		return d.handleIO(msg.UpstairsID, msg.SessionID, msg.JobID, msg.Deps, protocol.IOopFromFlush(msg), false)

	case protocol.ExtentFlush:
		return d.handleExtentFlush(msg)
	case protocol.ExtentClose:
		return d.handleExtentClose(msg)
	case protocol.ExtentRepair:
		return d.handleExtentRepair(msg)
	case protocol.ExtentReopen:
		return d.handleExtentReopen(msg)

	default:
		return ErrProtocolViolation
	}
}

func (d *Dispatcher) handleIO(upstairsID, sessionID [16]byte, jobID uint64, deps []uint64, op protocol.IOop, isWrite bool) error {
	wantUpstairs, wantSession := d.conn.WireIDs()
	if upstairsID != wantUpstairs || sessionID != wantSession {
		return d.fw.WriteFrame(protocol.UuidMismatch{ExpectedID: wantUpstairs})
	}

	if d.readOnly && isWrite {
		return d.writeReadOnlyAck(op, jobID, deps)
	}

	q, err := d.registry.WithWork(d.conn)
	if err != nil {
		return err
	}
	if err := q.Add(work.DownstairsWork{Owner: d.conn, DsID: jobID, Op: op}); err != nil {
		return err
	}

	d.wake <- jobID
	return nil
}

func (d *Dispatcher) writeReadOnlyAck(op protocol.IOop, jobID uint64, deps []uint64) error {
	hdr := protocol.JobHeaderFor(d.conn, jobID, deps)
	result := protocol.IOResult{Ok: false, Message: "region is read-only"}
	switch op.(type) {
	case protocol.Write:
		return d.fw.WriteFrame(protocol.WriteAck{JobHeader: hdr, Result: result})
	case protocol.WriteUnwritten:
		return d.fw.WriteFrame(protocol.WriteUnwrittenAck{JobHeader: hdr, Result: result})
	default:
		return ErrProtocolViolation
	}
}

func (d *Dispatcher) handleExtentFlush(msg protocol.ExtentFlush) error {
	err := d.region.FlushExtent(context.Background(), msg.ExtentID, msg.FlushNum, msg.GenNumber, msg.RepairID)
	return d.repairReply(msg.RepairID, msg.ExtentID, err)
}

func (d *Dispatcher) handleExtentClose(msg protocol.ExtentClose) error {
	err := d.region.CloseExtent(msg.ExtentID)
	return d.repairReply(msg.RepairID, msg.ExtentID, err)
}

func (d *Dispatcher) handleExtentRepair(msg protocol.ExtentRepair) error {
	err := d.region.RepairExtent(context.Background(), msg.ExtentID, msg.SourceAddr)
	return d.repairReply(msg.RepairID, msg.ExtentID, err)
}

func (d *Dispatcher) handleExtentReopen(msg protocol.ExtentReopen) error {
	err := d.region.ReopenExtent(msg.ExtentID)
	return d.repairReply(msg.RepairID, msg.ExtentID, err)
}

func (d *Dispatcher) repairReply(repairID uint64, extentID uint32, err error) error {
	if err != nil {
		if d.log != nil {
			d.log.Warn("extent repair operation failed", "repair_id", repairID, "extent_id", extentID, "err", err)
		}
		return d.fw.WriteFrame(protocol.ExtentError{RepairID: repairID, ExtentID: extentID, Error: err.Error()})
	}
	return d.fw.WriteFrame(protocol.RepairAckId{RepairID: repairID})
}
