// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command downstairs runs a single block-storage downstairs node: it
// accepts upstairs connections on the configured listen address, arbitrates
// at most one active read-write (or several read-only) owners per region,
// and executes their jobs against a region. Structured the way
// cmd/evm-node/main.go wires its urfave/cli.App.
package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/luxfi/ids"

	"github.com/luxfi/downstairs/internal/config"
	"github.com/luxfi/downstairs/internal/conn"
	"github.com/luxfi/downstairs/internal/logging"
	"github.com/luxfi/downstairs/internal/negotiate"
	"github.com/luxfi/downstairs/internal/region"
	"github.com/luxfi/downstairs/internal/session"
	"github.com/luxfi/downstairs/internal/telemetry"
	"github.com/luxfi/downstairs/internal/worker"
)

const clientIdentifier = "downstairs"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "a single block-storage downstairs node",
	Version: "1.0.0",
	Flags:   config.Flags,
}

func init() {
	app.Action = run
	app.Before = func(ctx *cli.Context) error {
		return config.LoadFile(ctx)
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	cfg, err := config.FromContext(cctx)
	if err != nil {
		return err
	}

	log, err := logging.New(clientIdentifier, cfg.LogLevel, cfg.LogJSON, os.Stderr)
	if err != nil {
		return err
	}

	regionID, err := regionIdentity(cfg.RegionDir)
	if err != nil {
		return fmt.Errorf("downstairs: %w", err)
	}

	r := region.NewMemory(regionID, cfg.BlockSize, cfg.ExtentSize, cfg.ExtentCount)

	registerer := prometheus.NewRegistry()
	metrics, err := telemetry.New(registerer)
	if err != nil {
		return fmt.Errorf("downstairs: registering metrics: %w", err)
	}

	registry := session.New(r, cfg.ReadOnly, &log, metrics)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.MetricsAddress != "" {
		go serveMetrics(ctx, cfg.MetricsAddress, registerer, &log)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("downstairs: listen %s: %w", cfg.ListenAddress, err)
	}
	defer ln.Close()
	log.Info("downstairs listening", "address", cfg.ListenAddress, "read_only", cfg.ReadOnly)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	opts := conn.Options{
		Negotiate:   negotiate.Config{ReadOnly: cfg.ReadOnly, Encrypted: cfg.Encrypted},
		Registry:    registry,
		Region:      r,
		ReadOnly:    cfg.ReadOnly,
		IdleTimeout: cfg.IdleTimeout,
		QueueWake:   cfg.QueueWake,
		Lossy:       worker.Lossy{},
		Log:         &log,
		Metrics:     metrics,
	}

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("accept failed", "err", err)
			continue
		}
		go func() {
			if err := conn.Serve(ctx, nc, opts); err != nil {
				log.Debug("connection closed", "err", err)
			}
		}()
	}
}

// regionIdentity loads the region UUID persisted in dir/region-id, creating
// and writing a random one on first run. A production region engine would
// persist this alongside the extent files; the in-memory reference region
// never writes to dir, so a restart keeps the identity from this file but
// starts with empty region contents.
func regionIdentity(dir string) (ids.ID, error) {
	path := dir + "/region-id"
	if b, err := os.ReadFile(path); err == nil {
		return ids.FromString(string(b))
	}

	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return ids.ID{}, err
	}
	id, err := ids.ToID(raw[:])
	if err != nil {
		return ids.ID{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ids.ID{}, err
	}
	_ = os.WriteFile(path, []byte(id.String()), 0o644)
	return id, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Warn("metrics server stopped", "err", err)
	}
}
