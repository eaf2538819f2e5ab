// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

// This file translates between the wire representation of an IO request
// (the JobHeader-prefixed frame types in frames.go) and the domain IOop
// variants in ioop.go. Kept separate from both so neither needs to import
// the other's notion of "what travels on the wire" versus "what the queue
// reasons about".

func wireRequestsToBlockRequests(in []WireBlockRequest) []BlockRequest {
	out := make([]BlockRequest, len(in))
	for i, r := range in {
		out[i] = BlockRequest{ExtentID: r.ExtentID, Block: r.Block}
	}
	return out
}

func wireWritesToBlockWrites(in []WireBlockWrite) []BlockWrite {
	out := make([]BlockWrite, len(in))
	for i, w := range in {
		out[i] = BlockWrite{ExtentID: w.ExtentID, Block: w.Block, Bytes: w.Bytes, BlockContext: w.BlockContext}
	}
	return out
}

// IOopFromReadRequest builds the Read op a ReadRequest frame describes.
func IOopFromReadRequest(f ReadRequest) Read {
	return Read{DepIDs: f.Deps, Requests: wireRequestsToBlockRequests(f.Requests)}
}

// IOopFromWrite builds the Write op a WriteMsg frame describes.
func IOopFromWrite(f WriteMsg) Write {
	return Write{DepIDs: f.Deps, Writes: wireWritesToBlockWrites(f.Writes)}
}

// IOopFromWriteUnwritten builds the WriteUnwritten op a WriteUnwrittenMsg
// frame describes.
func IOopFromWriteUnwritten(f WriteUnwrittenMsg) WriteUnwritten {
	return WriteUnwritten{DepIDs: f.Deps, Writes: wireWritesToBlockWrites(f.Writes)}
}

// IOopFromFlush builds the Flush op a FlushMsg frame describes.
func IOopFromFlush(f FlushMsg) Flush {
	return Flush{DepIDs: f.Deps, FlushNumber: f.FlushNumber, GenNumber: f.GenNumber, SnapshotDetails: f.SnapshotDetails}
}

// JobHeaderFor builds the identity+dependency header common to every IO
// ack, echoing jobID and deps back to the upstairs.
func JobHeaderFor(conn UpstairsConnection, jobID uint64, deps []uint64) JobHeader {
	upstairsID, sessionID := conn.WireIDs()
	return JobHeader{UpstairsID: upstairsID, SessionID: sessionID, JobID: jobID, Deps: deps}
}
