// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package conn is the per-connection supervisor: it owns the one frame
// pump a raw net.Conn gets, drives it first through negotiation and then
// hands the same channel to a dispatcher and worker running side by side,
// and tears everything down cleanly on peer close, eviction, or a
// negotiation that does not finish within the idle timeout. Grounded on the teacher's Network.Close/closeLock pattern in
// network/network.go, extended with an errgroup the way the teacher's own
// go.mod already pulls in golang.org/x/sync for.
package conn

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/luxfi/downstairs/internal/dispatch"
	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/negotiate"
	"github.com/luxfi/downstairs/internal/protocol"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
	"github.com/luxfi/downstairs/internal/telemetry"
	"github.com/luxfi/downstairs/internal/worker"
)

// Options carries everything Serve needs beyond the raw connection.
type Options struct {
	Negotiate   negotiate.Config
	Registry    *session.Registry
	Region      region.Region
	ReadOnly    bool
	IdleTimeout time.Duration
	QueueWake   int
	Lossy       worker.Lossy
	Log         *logging.Logger
	Metrics     *telemetry.Metrics
}

// ErrIdleTimeout is returned by Serve when a connection is closed because
// negotiation did not complete within the configured idle timeout.
var ErrIdleTimeout = errors.New("conn: idle timeout")

// Serve drives nc through negotiation and then steady-state dispatch until
// the peer disconnects, the session is evicted by a newer promotion, or
// ctx is canceled. The idle timeout bounds negotiation only; once the
// session is in steady state, a silent peer is not disconnected. Serve
// always closes nc before returning.
func Serve(ctx context.Context, nc net.Conn, opts Options) error {
	defer nc.Close()

	fr := protocol.NewFrameReader(nc)
	fw := protocol.NewFrameWriter(nc)
	frames := protocol.PumpFrames(fr)

	n := negotiate.New(opts.Negotiate, opts.Registry, opts.Region, fw, opts.Log)
	result, err := runNegotiation(ctx, n, frames, opts.IdleTimeout)
	if err != nil {
		return err
	}

	wake := make(chan uint64, opts.QueueWake)
	d := dispatch.New(result.Conn, opts.Registry, opts.Region, fw, opts.ReadOnly, wake, opts.Log)
	w := worker.New(result.Conn, opts.Registry, opts.Region, fw, wake, opts.Lossy, opts.Log, opts.Metrics)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error { return d.Run(gCtx, frames) })
	g.Go(func() error { return w.Run(gCtx) })
	g.Go(func() error { return watchEviction(gCtx, result.Entry, fw, cancel) })

	err = g.Wait()
	opts.Registry.Clear(result.Conn)
	if opts.Log != nil {
		opts.Log.Debug("connection supervisor exiting", "upstairs_id", result.Conn.UpstairsID, "err", err)
	}
	return err
}

// runNegotiation bounds the handshake by idleTimeout so a peer that opens
// a TCP connection and never speaks cannot hold a registry slot forever.
func runNegotiation(ctx context.Context, n *negotiate.Negotiator, frames <-chan protocol.FrameOrError, idleTimeout time.Duration) (*negotiate.Result, error) {
	type outcome struct {
		result *negotiate.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		r, err := n.Run(frames)
		done <- outcome{r, err}
	}()

	timer := time.NewTimer(idleTimeout)
	defer timer.Stop()

	select {
	case o := <-done:
		return o.result, o.err
	case <-timer.C:
		return nil, ErrIdleTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// watchEviction tells the peer it has been displaced as soon as entry's
// owner is replaced by a newer promotion, then cancels cancel so the
// dispatcher and worker goroutines unwind instead of continuing to serve a
// connection the registry no longer recognizes.
func watchEviction(ctx context.Context, entry *session.ActiveUpstairs, fw *protocol.FrameWriter, cancel context.CancelFunc) error {
	select {
	case <-ctx.Done():
		return nil
	case newOwner := <-entry.Terminate():
		_ = fw.WriteFrame(protocol.YouAreNoLongerActiveFor(newOwner))
		cancel()
		return nil
	}
}
