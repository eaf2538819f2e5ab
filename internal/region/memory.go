// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package region

import (
	"context"
	"fmt"
	"io"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/luxfi/ids"
)

type extent struct {
	data    []byte
	closed  bool
	gen     uint64
	flush   uint64
	dirty   bool
	written mapset.Set[uint64] // blocks that have been written at least once
}

// Memory is a reference Region backed entirely by process memory. It
// implements real read/write/flush/repair semantics well enough to drive
// every scenario in the specification end to end, but it is not the
// production region engine: no on-disk persistence, no integrity hashing,
// no repair-from-peer networking. Safe for concurrent use.
type Memory struct {
	mu         sync.Mutex
	def        Definition
	extents    []*extent
	nextRepair uint64
}

// NewMemory allocates a region of extentCount extents, each holding
// extentSize blocks of blockSize bytes.
func NewMemory(uuid ids.ID, blockSize, extentSize uint64, extentCount uint32) *Memory {
	m := &Memory{
		def: Definition{
			UUID:        uuid,
			BlockSize:   blockSize,
			ExtentSize:  extentSize,
			ExtentCount: extentCount,
		},
		extents: make([]*extent, extentCount),
	}
	for i := range m.extents {
		m.extents[i] = &extent{
			data:    make([]byte, extentSize*blockSize),
			written: mapset.NewSet[uint64](),
		}
	}
	return m
}

func (m *Memory) Def() Definition { return m.def }

func (m *Memory) blockRange(extentID uint32, block uint64) (start, end int, err error) {
	if int(extentID) >= len(m.extents) {
		return 0, 0, fmt.Errorf("%w: extent %d", ErrNoSuchExtent, extentID)
	}
	if block >= m.def.ExtentSize {
		return 0, 0, fmt.Errorf("%w: block %d in extent %d", ErrBlockOutOfRange, block, extentID)
	}
	start = int(block * m.def.BlockSize)
	end = start + int(m.def.BlockSize)
	return start, end, nil
}

func (m *Memory) Read(_ context.Context, reqs []BlockRequest, _ uint64) ([]BlockResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	results := make([]BlockResult, 0, len(reqs))
	for _, req := range reqs {
		start, end, err := m.blockRange(req.ExtentID, req.Block)
		if err != nil {
			return nil, err
		}
		ext := m.extents[req.ExtentID]
		data := make([]byte, end-start)
		copy(data, ext.data[start:end])
		results = append(results, BlockResult{
			ExtentID: req.ExtentID,
			Block:    req.Block,
			Data:     data,
		})
	}
	return results, nil
}

func (m *Memory) Write(_ context.Context, writes []BlockWrite, _ uint64, onlyIfUnwritten bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range writes {
		start, end, err := m.blockRange(w.ExtentID, w.Block)
		if err != nil {
			return err
		}
		if len(w.Bytes) != end-start {
			return fmt.Errorf("%w: extent %d block %d", ErrLengthMismatch, w.ExtentID, w.Block)
		}
		ext := m.extents[w.ExtentID]
		if ext.closed {
			return fmt.Errorf("%w: extent %d", ErrExtentClosed, w.ExtentID)
		}
		if onlyIfUnwritten && ext.written.Contains(w.Block) {
			continue
		}
		copy(ext.data[start:end], w.Bytes)
		ext.written.Add(w.Block)
		ext.dirty = true
	}
	return nil
}

func (m *Memory) Flush(_ context.Context, flushNumber, genNumber uint64, _ []byte, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ext := range m.extents {
		if ext.closed {
			continue
		}
		ext.flush = flushNumber
		ext.gen = genNumber
		ext.dirty = false
	}
	return nil
}

func (m *Memory) FlushExtent(_ context.Context, extentID uint32, flushNumber, genNumber uint64, _ uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if int(extentID) >= len(m.extents) {
		return fmt.Errorf("%w: extent %d", ErrNoSuchExtent, extentID)
	}
	ext := m.extents[extentID]
	ext.flush = flushNumber
	ext.gen = genNumber
	ext.dirty = false
	return nil
}

func (m *Memory) CloseExtent(extentID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(extentID) >= len(m.extents) {
		return fmt.Errorf("%w: extent %d", ErrNoSuchExtent, extentID)
	}
	m.extents[extentID].closed = true
	return nil
}

func (m *Memory) ReopenExtent(extentID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(extentID) >= len(m.extents) {
		return fmt.Errorf("%w: extent %d", ErrNoSuchExtent, extentID)
	}
	m.extents[extentID].closed = false
	return nil
}

// ReopenAllExtents is called by promotion when a read-write session takes
// an empty registry: every extent that a prior owner may have closed on
// disconnect is made available again.
func (m *Memory) ReopenAllExtents() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ext := range m.extents {
		ext.closed = false
	}
	return nil
}

// RepairExtent resets an extent to a pristine state as if freshly copied
// from sourceAddr. The reference implementation has no peer to actually
// fetch from, so it simply zeroes the extent and clears its dirty state;
// a production engine would stream bytes from sourceAddr instead.
func (m *Memory) RepairExtent(_ context.Context, extentID uint32, sourceAddr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if int(extentID) >= len(m.extents) {
		return fmt.Errorf("%w: extent %d", ErrNoSuchExtent, extentID)
	}
	ext := m.extents[extentID]
	for i := range ext.data {
		ext.data[i] = 0
	}
	ext.written = mapset.NewSet[uint64]()
	ext.dirty = false
	_ = sourceAddr
	return nil
}

func (m *Memory) FlushNumbers() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.extents))
	for i, ext := range m.extents {
		out[i] = ext.flush
	}
	return out
}

func (m *Memory) GenNumbers() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.extents))
	for i, ext := range m.extents {
		out[i] = ext.gen
	}
	return out
}

func (m *Memory) Dirty() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]bool, len(m.extents))
	for i, ext := range m.extents {
		out[i] = ext.dirty
	}
	return out
}

// Import streams r into the region starting at block 0 of extent 0,
// continuing across extent boundaries, until r is exhausted. It returns
// the number of bytes written.
func (m *Memory) Import(_ context.Context, r io.Reader) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, ext := range m.extents {
		n, err := io.ReadFull(r, ext.data)
		if n > 0 {
			total += int64(n)
			ext.dirty = true
			for block := uint64(0); block < m.def.ExtentSize; block++ {
				start := block * m.def.BlockSize
				if start < uint64(n) {
					ext.written.Add(block)
				}
			}
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return total, nil
		}
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Export writes the first length bytes of the region to w, zero-padded to
// the next block boundary if length is not a block multiple.
func (m *Memory) Export(_ context.Context, w io.Writer, length int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	remaining := length
	for _, ext := range m.extents {
		if remaining <= 0 {
			break
		}
		n := int64(len(ext.data))
		if n > remaining {
			// Pad out to the block boundary containing `remaining`.
			blockSize := int64(m.def.BlockSize)
			padded := ((remaining + blockSize - 1) / blockSize) * blockSize
			if padded > n {
				padded = n
			}
			if _, err := w.Write(ext.data[:padded]); err != nil {
				return err
			}
			remaining -= padded
			break
		}
		if _, err := w.Write(ext.data); err != nil {
			return err
		}
		remaining -= n
	}
	return nil
}

var _ Region = (*Memory)(nil)
