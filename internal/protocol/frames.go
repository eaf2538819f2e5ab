// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

// Frame is a marker interface implemented by every wire message. Like the
// teacher's message.Request, concrete frame types are registered with the
// codec individually rather than boxed behind a generic envelope.
type Frame interface {
	isFrame()
}

// --- connection lifecycle -------------------------------------------------

type Ruok struct{}

func (Ruok) isFrame() {}

type Imok struct{}

func (Imok) isFrame() {}

// HereIAm is the step-0 greeting that opens negotiation.
type HereIAm struct {
	Version    uint32 `serialize:"true"`
	UpstairsID [16]byte `serialize:"true"`
	SessionID  [16]byte `serialize:"true"`
	Gen        uint64 `serialize:"true"`
	ReadOnly   bool   `serialize:"true"`
	Encrypted  bool   `serialize:"true"`
}

func (HereIAm) isFrame() {}

type YesItsMe struct {
	Version    uint32 `serialize:"true"`
	RepairAddr string `serialize:"true"`
}

func (YesItsMe) isFrame() {}

type PromoteToActive struct {
	UpstairsID [16]byte `serialize:"true"`
	SessionID  [16]byte `serialize:"true"`
	Gen        uint64   `serialize:"true"`
}

func (PromoteToActive) isFrame() {}

type YouAreNowActive struct {
	UpstairsID [16]byte `serialize:"true"`
	SessionID  [16]byte `serialize:"true"`
	Gen        uint64   `serialize:"true"`
}

func (YouAreNowActive) isFrame() {}

// YouAreNoLongerActive is delivered to an evicted session; it names the
// connection that took over.
type YouAreNoLongerActive struct {
	NewUpstairsID [16]byte `serialize:"true"`
	NewSessionID  [16]byte `serialize:"true"`
	NewGen        uint64   `serialize:"true"`
}

func (YouAreNoLongerActive) isFrame() {}

type UuidMismatch struct {
	ExpectedID [16]byte `serialize:"true"`
}

func (UuidMismatch) isFrame() {}

type ReadOnlyMismatch struct {
	Expected bool `serialize:"true"`
}

func (ReadOnlyMismatch) isFrame() {}

type EncryptedMismatch struct {
	Expected bool `serialize:"true"`
}

func (EncryptedMismatch) isFrame() {}

// --- capabilities ----------------------------------------------------------

type RegionInfoPlease struct{}

func (RegionInfoPlease) isFrame() {}

type RegionDef struct {
	UUID        []byte `serialize:"true"`
	BlockSize   uint64 `serialize:"true"`
	ExtentSize  uint64 `serialize:"true"`
	ExtentCount uint32 `serialize:"true"`
}

type RegionInfo struct {
	Def RegionDef `serialize:"true"`
}

func (RegionInfo) isFrame() {}

type LastFlush struct {
	LastFlushNumber uint64 `serialize:"true"`
}

func (LastFlush) isFrame() {}

type LastFlushAck struct {
	LastFlushNumber uint64 `serialize:"true"`
}

func (LastFlushAck) isFrame() {}

type ExtentVersionsPlease struct{}

func (ExtentVersionsPlease) isFrame() {}

type ExtentVersions struct {
	GenNumbers   []uint64 `serialize:"true"`
	FlushNumbers []uint64 `serialize:"true"`
	DirtyBits    []bool   `serialize:"true"`
}

func (ExtentVersions) isFrame() {}

// --- IO ----------------------------------------------------------------

// JobHeader carries the identity and dependency fields common to every IO
// frame.
type JobHeader struct {
	UpstairsID [16]byte `serialize:"true"`
	SessionID  [16]byte `serialize:"true"`
	JobID      uint64   `serialize:"true"`
	Deps       []uint64 `serialize:"true"`
}

type WireBlockRequest struct {
	ExtentID uint32 `serialize:"true"`
	Block    uint64 `serialize:"true"`
}

type WireBlockWrite struct {
	ExtentID     uint32 `serialize:"true"`
	Block        uint64 `serialize:"true"`
	Bytes        []byte `serialize:"true"`
	BlockContext []byte `serialize:"true"`
}

type ReadRequest struct {
	JobHeader `serialize:"true"`
	Requests  []WireBlockRequest `serialize:"true"`
}

func (ReadRequest) isFrame() {}

type WriteMsg struct {
	JobHeader `serialize:"true"`
	Writes    []WireBlockWrite `serialize:"true"`
}

func (WriteMsg) isFrame() {}

type WriteUnwrittenMsg struct {
	JobHeader `serialize:"true"`
	Writes    []WireBlockWrite `serialize:"true"`
}

func (WriteUnwrittenMsg) isFrame() {}

type FlushMsg struct {
	JobHeader       `serialize:"true"`
	FlushNumber     uint64 `serialize:"true"`
	GenNumber       uint64 `serialize:"true"`
	SnapshotDetails []byte `serialize:"true"`
}

func (FlushMsg) isFrame() {}

// IOResult mirrors a region I/O error surfaced in an ack, never a closed
// connection (see error handling design: region errors are not fatal).
type IOResult struct {
	Ok      bool   `serialize:"true"`
	Message string `serialize:"true"`
}

type WireReadResponse struct {
	ExtentID      uint32 `serialize:"true"`
	Block         uint64 `serialize:"true"`
	Data          []byte `serialize:"true"`
	BlockContexts []byte `serialize:"true"`
}

type ReadResponse struct {
	JobHeader `serialize:"true"`
	Result    IOResult           `serialize:"true"`
	Responses []WireReadResponse `serialize:"true"`
}

func (ReadResponse) isFrame() {}

type WriteAck struct {
	JobHeader `serialize:"true"`
	Result    IOResult `serialize:"true"`
}

func (WriteAck) isFrame() {}

type WriteUnwrittenAck struct {
	JobHeader `serialize:"true"`
	Result    IOResult `serialize:"true"`
}

func (WriteUnwrittenAck) isFrame() {}

type FlushAck struct {
	JobHeader `serialize:"true"`
	Result    IOResult `serialize:"true"`
}

func (FlushAck) isFrame() {}

// --- repair ----------------------------------------------------------------

type ExtentFlush struct {
	RepairID  uint64 `serialize:"true"`
	ExtentID  uint32 `serialize:"true"`
	FlushNum  uint64 `serialize:"true"`
	GenNumber uint64 `serialize:"true"`
}

func (ExtentFlush) isFrame() {}

type ExtentClose struct {
	RepairID uint64 `serialize:"true"`
	ExtentID uint32 `serialize:"true"`
}

func (ExtentClose) isFrame() {}

type ExtentRepair struct {
	RepairID   uint64 `serialize:"true"`
	ExtentID   uint32 `serialize:"true"`
	SourceAddr string `serialize:"true"`
}

func (ExtentRepair) isFrame() {}

type ExtentReopen struct {
	RepairID uint64 `serialize:"true"`
	ExtentID uint32 `serialize:"true"`
}

func (ExtentReopen) isFrame() {}

type RepairAckId struct {
	RepairID uint64 `serialize:"true"`
}

func (RepairAckId) isFrame() {}

type ExtentError struct {
	RepairID uint64 `serialize:"true"`
	ExtentID uint32 `serialize:"true"`
	Error    string `serialize:"true"`
}

func (ExtentError) isFrame() {}
