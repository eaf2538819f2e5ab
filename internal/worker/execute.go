// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package worker

import (
	"context"

	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/work"
)

func (w *Worker) execute(ctx context.Context, owner protocol.UpstairsConnection, dsw work.DownstairsWork) (protocol.Frame, error) {
	hdr := protocol.JobHeaderFor(owner, dsw.DsID, dsw.Op.Deps())

	switch op := dsw.Op.(type) {
	case protocol.Read:
		results, err := w.region.Read(ctx, toRegionRequests(op.Requests), dsw.DsID)
		w.observe("read", err)
		return protocol.ReadResponse{
			JobHeader: hdr,
			Result:    resultFor(err),
			Responses: toWireReadResponses(results),
		}, nil

	case protocol.Write:
		err := w.region.Write(ctx, toRegionWrites(op.Writes), dsw.DsID, false)
		w.observe("write", err)
		return protocol.WriteAck{JobHeader: hdr, Result: resultFor(err)}, nil

	case protocol.WriteUnwritten:
		err := w.region.Write(ctx, toRegionWrites(op.Writes), dsw.DsID, true)
		w.observe("write_unwritten", err)
		return protocol.WriteUnwrittenAck{JobHeader: hdr, Result: resultFor(err)}, nil

	case protocol.Flush:
		err := w.region.Flush(ctx, op.FlushNumber, op.GenNumber, op.SnapshotDetails, dsw.DsID)
		w.observe("flush", err)
		return protocol.FlushAck{JobHeader: hdr, Result: resultFor(err)}, nil

	default:
		return nil, ErrUnknownOp
	}
}

// observe records the ack in metrics; a nil Metrics (tests, or a node
// started without a registry) makes this a no-op.
func (w *Worker) observe(op string, err error) {
	if w.metrics == nil {
		return
	}
	w.metrics.AcksSent.WithLabelValues(op).Inc()
	if err != nil {
		w.metrics.RegionErrors.WithLabelValues(op).Inc()
	}
}

// resultFor never fails the connection over a region error: per the error
// handling design, an I/O error is surfaced in the ack and the upstairs
// decides whether to retry.
func resultFor(err error) protocol.IOResult {
	if err == nil {
		return protocol.IOResult{Ok: true}
	}
	return protocol.IOResult{Ok: false, Message: err.Error()}
}

func toRegionRequests(in []protocol.BlockRequest) []region.BlockRequest {
	out := make([]region.BlockRequest, len(in))
	for i, r := range in {
		out[i] = region.BlockRequest{ExtentID: r.ExtentID, Block: r.Block}
	}
	return out
}

func toRegionWrites(in []protocol.BlockWrite) []region.BlockWrite {
	out := make([]region.BlockWrite, len(in))
	for i, wr := range in {
		out[i] = region.BlockWrite{ExtentID: wr.ExtentID, Block: wr.Block, Bytes: wr.Bytes, BlockContext: wr.BlockContext}
	}
	return out
}

func toWireReadResponses(in []region.BlockResult) []protocol.WireReadResponse {
	out := make([]protocol.WireReadResponse, len(in))
	for i, r := range in {
		out[i] = protocol.WireReadResponse{
			ExtentID:      r.ExtentID,
			Block:         r.Block,
			Data:          r.Data,
			BlockContexts: r.BlockContext,
		}
	}
	return out
}
