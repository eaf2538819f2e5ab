// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package region defines the storage engine interface consumed by the
// downstairs core. The production region/extent engine (on-disk layout,
// integrity hashing, repair-from-peer networking) is out of scope for
// this node per the specification; Region is the narrow boundary the
// core calls through, styled after the teacher's small single-purpose
// interfaces in sync/handlers/handler.go (BlockProvider/SnapshotProvider).
package region

import (
	"context"
	"io"

	"github.com/luxfi/ids"
)

// BlockRequest addresses one block within one extent.
type BlockRequest struct {
	ExtentID uint32
	Block    uint64
}

// BlockResult is the data returned for one BlockRequest.
type BlockResult struct {
	ExtentID     uint32
	Block        uint64
	Data         []byte
	BlockContext []byte
}

// BlockWrite carries the bytes and integrity context for one block write.
type BlockWrite struct {
	ExtentID     uint32
	Block        uint64
	Bytes        []byte
	BlockContext []byte
}

// Definition describes the static shape of a region.
type Definition struct {
	UUID        ids.ID
	BlockSize   uint64
	ExtentSize  uint64
	ExtentCount uint32
}

// Region is the storage engine this node executes IOs against. Every
// method may block on disk I/O and must be treated as potentially long
// running by callers (see the concurrency model: never hold a Work or
// writer lock across one of these calls).
type Region interface {
	Def() Definition

	Read(ctx context.Context, reqs []BlockRequest, jobID uint64) ([]BlockResult, error)
	Write(ctx context.Context, writes []BlockWrite, jobID uint64, onlyIfUnwritten bool) error
	Flush(ctx context.Context, flushNumber, genNumber uint64, snapshotDetails []byte, jobID uint64) error

	FlushExtent(ctx context.Context, extentID uint32, flushNumber, genNumber uint64, repairID uint64) error
	CloseExtent(extentID uint32) error
	ReopenExtent(extentID uint32) error
	ReopenAllExtents() error
	RepairExtent(ctx context.Context, extentID uint32, sourceAddr string) error

	FlushNumbers() []uint64
	GenNumbers() []uint64
	Dirty() []bool

	// Import and Export back the round-trip testable property (§8):
	// copying a byte stream in and reading it back out must be
	// idempotent modulo zero-padding to the next block boundary.
	Import(ctx context.Context, r io.Reader) (int64, error)
	Export(ctx context.Context, w io.Writer, length int64) error
}
