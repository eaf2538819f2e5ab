// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

// IOop is one of the four job variants an upstairs can submit. It is a
// marker interface; concrete variants implement isIOop so a DownstairsWork
// can hold one without reflection, mirroring the Request marker style in
// the teacher's message package.
type IOop interface {
	// Deps returns the job ids this operation depends on.
	Deps() []uint64
	// IsFlush reports whether completing this op advances the flush horizon.
	IsFlush() bool
	isIOop()
}

// BlockRequest addresses one block within one extent.
type BlockRequest struct {
	ExtentID uint32 `serialize:"true"`
	Block    uint64 `serialize:"true"`
}

// BlockWrite carries the bytes and integrity context for one block write.
type BlockWrite struct {
	ExtentID     uint32 `serialize:"true"`
	Block        uint64 `serialize:"true"`
	Bytes        []byte `serialize:"true"`
	BlockContext []byte `serialize:"true"`
}

// Read requests data from the requested blocks; it has no side effects on
// the region.
type Read struct {
	DepIDs   []uint64       `serialize:"true"`
	Requests []BlockRequest `serialize:"true"`
}

func (r Read) Deps() []uint64 { return r.DepIDs }
func (Read) IsFlush() bool    { return false }
func (Read) isIOop()          {}

// Write overwrites the requested blocks unconditionally.
type Write struct {
	DepIDs []uint64     `serialize:"true"`
	Writes []BlockWrite `serialize:"true"`
}

func (w Write) Deps() []uint64 { return w.DepIDs }
func (Write) IsFlush() bool    { return false }
func (Write) isIOop()          {}

// WriteUnwritten writes only blocks the region has not yet recorded as
// written; blocks already written are left untouched.
type WriteUnwritten struct {
	DepIDs []uint64     `serialize:"true"`
	Writes []BlockWrite `serialize:"true"`
}

func (w WriteUnwritten) Deps() []uint64 { return w.DepIDs }
func (WriteUnwritten) IsFlush() bool    { return false }
func (WriteUnwritten) isIOop()          {}

// Flush is a durability barrier; once it completes it subsumes every job
// that preceded it as a dependency.
type Flush struct {
	DepIDs          []uint64 `serialize:"true"`
	FlushNumber     uint64   `serialize:"true"`
	GenNumber       uint64   `serialize:"true"`
	SnapshotDetails []byte   `serialize:"true"`
}

func (f Flush) Deps() []uint64 { return f.DepIDs }
func (Flush) IsFlush() bool    { return true }
func (Flush) isIOop()          {}
