// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package negotiate drives one connection's four-step handshake: version
// and identity check, promotion, region capability exchange, and flush
// horizon agreement. Styled after the teacher's message dispatch
// (plugin/evm/message/handler.go's per-type Handle methods), but
// implemented as a single type switch per step since the handshake has a
// small, fixed vocabulary per phase rather than an open set of request
// types.
package negotiate

import (
	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
)

// Config carries the node-wide settings the negotiator checks a greeting
// against. It deliberately does not depend on internal/config so this
// package stays a leaf; cmd/downstairs fills it in from the loaded
// configuration.
type Config struct {
	ReadOnly  bool
	Encrypted bool
}

// Result is returned by Run on successful completion of step 3.
type Result struct {
	Conn  protocol.UpstairsConnection
	Entry *session.ActiveUpstairs
}

// Negotiator drives a single connection through the four steps. It is not
// safe for concurrent use; the connection supervisor owns exactly one per
// connection and runs it to completion before starting the dispatcher and
// worker.
type Negotiator struct {
	cfg      Config
	registry *session.Registry
	region   region.Region
	fw       *protocol.FrameWriter
	log      *logging.Logger

	step  int
	conn  protocol.UpstairsConnection
	entry *session.ActiveUpstairs
}

// New constructs a Negotiator for one connection. fw is the connection's
// shared frame writer (also used later by the worker for acks).
func New(cfg Config, registry *session.Registry, r region.Region, fw *protocol.FrameWriter, log *logging.Logger) *Negotiator {
	return &Negotiator{cfg: cfg, registry: registry, region: r, fw: fw, log: log}
}

// Run consumes frames off the connection's shared pumped channel (see
// protocol.PumpFrames) until step 3 completes or an error occurs. The
// caller is responsible for imposing the wall-clock deadline (e.g. via
// net.Conn.SetReadDeadline before each read) since that is naturally
// expressed at the socket layer rather than duplicated here.
//
// Once a promotion has happened (step 1 onward), this loop also selects
// on the registry's eviction signal: a takeover that lands mid-negotiation
// must still end the connection with YouAreNoLongerActive rather than
// block forever on a read its peer no longer expects to answer.
func (n *Negotiator) Run(frames <-chan protocol.FrameOrError) (*Result, error) {
	for {
		var evict <-chan protocol.UpstairsConnection
		if n.entry != nil {
			evict = n.entry.Terminate()
		}

		select {
		case newOwner := <-evict:
			_ = n.fw.WriteFrame(protocol.YouAreNoLongerActiveFor(newOwner))
			return nil, ErrEvicted

		case fe := <-frames:
			if fe.Err != nil {
				return nil, fe.Err
			}
			f := fe.Frame

			if _, ok := f.(protocol.Ruok); ok {
				if err := n.fw.WriteFrame(protocol.Imok{}); err != nil {
					return nil, err
				}
				continue
			}

			done, err := n.step0to3(f)
			if err != nil {
				return nil, err
			}
			if done {
				return &Result{Conn: n.conn, Entry: n.entry}, nil
			}
		}
	}
}

func (n *Negotiator) step0to3(f protocol.Frame) (bool, error) {
	var err error
	var done bool
	switch n.step {
	case 0:
		err = n.handleHereIAm(f)
	case 1:
		err = n.handlePromote(f)
	case 2:
		err = n.handleRegionInfoPlease(f)
	case 3:
		done, err = n.handleStep3(f)
	default:
		err = ErrUnexpectedFrame
	}
	if err != nil && n.log != nil {
		n.log.Debug("negotiation step failed", "step", n.step, "err", err)
	}
	return done, err
}

func (n *Negotiator) handleHereIAm(f protocol.Frame) error {
	greeting, ok := f.(protocol.HereIAm)
	if !ok {
		return ErrUnexpectedFrame
	}
	if greeting.Version != uint32(protocol.Version) {
		return ErrUnsupportedVersion
	}
	if greeting.ReadOnly != n.cfg.ReadOnly {
		_ = n.fw.WriteFrame(protocol.ReadOnlyMismatch{Expected: n.cfg.ReadOnly})
		return ErrReadOnlyMismatch
	}
	if greeting.Encrypted != n.cfg.Encrypted {
		_ = n.fw.WriteFrame(protocol.EncryptedMismatch{Expected: n.cfg.Encrypted})
		return ErrEncryptedMismatch
	}

	n.conn = protocol.ConnectionFromHereIAm(greeting)
	n.step = 1
	return n.fw.WriteFrame(protocol.YesItsMe{Version: uint32(protocol.Version)})
}

func (n *Negotiator) handlePromote(f protocol.Frame) error {
	promote, ok := f.(protocol.PromoteToActive)
	if !ok {
		return ErrUnexpectedFrame
	}
	claimed := protocol.ConnectionFromPromote(promote)
	if claimed.UpstairsID != n.conn.UpstairsID || claimed.SessionID != n.conn.SessionID {
		_ = n.fw.WriteFrame(protocol.UuidMismatch{ExpectedID: n.conn.WireUpstairsID()})
		return ErrIdentityMismatch
	}
	n.conn.Gen = claimed.Gen

	entry, err := n.registry.Promote(n.conn)
	if err != nil {
		return err
	}
	n.entry = entry

	n.step = 2
	return n.fw.WriteFrame(protocol.YouAreNowActiveFor(n.conn))
}

func (n *Negotiator) handleRegionInfoPlease(f protocol.Frame) error {
	if _, ok := f.(protocol.RegionInfoPlease); !ok {
		return ErrUnexpectedFrame
	}
	def := n.region.Def()
	n.step = 3
	return n.fw.WriteFrame(protocol.RegionInfo{Def: protocol.RegionDef{
		UUID:        append([]byte(nil), def.UUID[:]...),
		BlockSize:   def.BlockSize,
		ExtentSize:  def.ExtentSize,
		ExtentCount: def.ExtentCount,
	}})
}

func (n *Negotiator) handleStep3(f protocol.Frame) (bool, error) {
	switch msg := f.(type) {
	case protocol.LastFlush:
		n.entry.Work.SetLastFlush(msg.LastFlushNumber)
		if err := n.fw.WriteFrame(protocol.LastFlushAck{LastFlushNumber: msg.LastFlushNumber}); err != nil {
			return false, err
		}
		return true, nil

	case protocol.ExtentVersionsPlease:
		if err := n.fw.WriteFrame(protocol.ExtentVersions{
			GenNumbers:   n.region.GenNumbers(),
			FlushNumbers: n.region.FlushNumbers(),
			DirtyBits:    n.region.Dirty(),
		}); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, ErrUnexpectedFrame
	}
}
