// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config defines the flags this node's cmd/downstairs entry point
// accepts and the typed Config they parse into, following the flag/struct
// split the teacher uses for its own node flags in cmd/evm-node.
package config

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// Defaults mirror the values a freshly checked out region should run with
// if the operator passes nothing else.
const (
	DefaultListenAddress = "127.0.0.1:3810"
	DefaultRepairAddress = "127.0.0.1:3811"
	DefaultBlockSize     = 512
	DefaultExtentSize    = 100 // blocks per extent
	DefaultExtentCount   = 10
	DefaultQueueWake     = 200
	DefaultIdleTimeout   = 50 * time.Second
)

// Config is the fully parsed, validated configuration for one downstairs
// process.
type Config struct {
	ListenAddress string
	RepairAddress string
	RegionDir     string

	BlockSize   uint64
	ExtentSize  uint64
	ExtentCount uint32

	ReadOnly  bool
	Encrypted bool

	IdleTimeout time.Duration
	QueueWake   int

	LogLevel string
	LogJSON  bool

	MetricsAddress string
}

// Flags is the urfave/cli flag set cmd/downstairs registers; FromContext
// reads them back out once urfave/cli has parsed argv.
var Flags = []cli.Flag{
	&cli.StringFlag{Name: "config", Usage: "optional YAML/TOML/JSON file providing defaults for any flag below"},
	&cli.StringFlag{Name: "listen", Usage: "address the upstairs data connection listens on", Value: DefaultListenAddress, EnvVars: []string{"DOWNSTAIRS_LISTEN"}},
	&cli.StringFlag{Name: "repair-listen", Usage: "address the repair connection listens on", Value: DefaultRepairAddress, EnvVars: []string{"DOWNSTAIRS_REPAIR_LISTEN"}},
	&cli.StringFlag{Name: "data", Usage: "directory holding this region's extent files", Required: true, EnvVars: []string{"DOWNSTAIRS_DATA"}},

	&cli.Uint64Flag{Name: "block-size", Usage: "bytes per block", Value: DefaultBlockSize},
	&cli.Uint64Flag{Name: "extent-size", Usage: "blocks per extent", Value: DefaultExtentSize},
	&cli.UintFlag{Name: "extent-count", Usage: "number of extents in the region", Value: DefaultExtentCount},

	&cli.BoolFlag{Name: "read-only", Usage: "reject writes and admit more than one active upstairs"},
	&cli.BoolFlag{Name: "encrypted", Usage: "region was created with encryption-at-rest enabled"},

	&cli.DurationFlag{Name: "idle-timeout", Usage: "disconnect an upstairs that has not completed negotiation within this long", Value: DefaultIdleTimeout},
	&cli.IntFlag{Name: "queue-wake-capacity", Usage: "bound on the dispatcher-to-worker wake channel", Value: DefaultQueueWake},

	&cli.StringFlag{Name: "log-level", Usage: "trace, debug, info, warn, or error", Value: "info", EnvVars: []string{"DOWNSTAIRS_LOG_LEVEL"}},
	&cli.BoolFlag{Name: "log-json", Usage: "emit structured JSON logs instead of a colorized terminal format"},

	&cli.StringFlag{Name: "metrics-listen", Usage: "address the /metrics endpoint listens on; empty disables it"},
}

// FromContext builds a Config from a parsed cli.Context.
func FromContext(ctx *cli.Context) (Config, error) {
	cfg := Config{
		ListenAddress:  ctx.String("listen"),
		RepairAddress:  ctx.String("repair-listen"),
		RegionDir:      ctx.String("data"),
		BlockSize:      ctx.Uint64("block-size"),
		ExtentSize:     ctx.Uint64("extent-size"),
		ExtentCount:    uint32(ctx.Uint("extent-count")),
		ReadOnly:       ctx.Bool("read-only"),
		Encrypted:      ctx.Bool("encrypted"),
		IdleTimeout:    ctx.Duration("idle-timeout"),
		QueueWake:      ctx.Int("queue-wake-capacity"),
		LogLevel:       ctx.String("log-level"),
		LogJSON:        ctx.Bool("log-json"),
		MetricsAddress: ctx.String("metrics-listen"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that can never produce a usable region.
func (c Config) Validate() error {
	if c.RegionDir == "" {
		return fmt.Errorf("config: --data is required")
	}
	if c.BlockSize == 0 {
		return fmt.Errorf("config: block-size must be non-zero")
	}
	if c.ExtentSize == 0 {
		return fmt.Errorf("config: extent-size must be non-zero")
	}
	if c.ExtentCount == 0 {
		return fmt.Errorf("config: extent-count must be non-zero")
	}
	if c.QueueWake <= 0 {
		return fmt.Errorf("config: queue-wake-capacity must be positive")
	}
	return nil
}
