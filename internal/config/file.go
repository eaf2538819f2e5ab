// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"

	"github.com/spf13/viper"
	"github.com/urfave/cli/v2"
)

// LoadFile reads an optional YAML/TOML/JSON config file named by the
// --config flag and applies its values as defaults beneath whatever the
// command line or environment already set, the same precedence order
// urfave/cli gives flags over viper-backed defaults.
func LoadFile(ctx *cli.Context) error {
	path := ctx.String("config")
	if path == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("config: reading %s: %w", path, err)
	}

	for _, name := range []string{
		"listen", "repair-listen", "data", "block-size", "extent-size",
		"extent-count", "read-only", "encrypted", "idle-timeout",
		"queue-wake-capacity", "log-level", "log-json", "metrics-listen",
	} {
		if !v.IsSet(name) || ctx.IsSet(name) {
			continue
		}
		if err := ctx.Set(name, fmt.Sprintf("%v", v.Get(name))); err != nil {
			return fmt.Errorf("config: applying %s from %s: %w", name, path, err)
		}
	}
	return nil
}
