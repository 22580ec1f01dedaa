// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

// Package ygconfig loads the workspace-level tunables (store path, GC
// grace periods, poll interval, index branching factor) from cobra
// flags bound through viper, following the teacher's
// flags-then-viper.BindPFlag idiom.
package ygconfig

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replikativ/yggdrasil-go/pkg/gc"
	"github.com/replikativ/yggdrasil-go/pkg/index"
)

// DefaultPollInterval is the fallback for Watchable adapters whose Watch
// options don't specify one (spec §4.7 names no default; this mirrors
// the grace periods' own "recommended" framing).
const DefaultPollInterval = 30 * time.Second

// Config is a fully-resolved set of workspace tunables.
type Config struct {
	StorePath        string
	BranchingFactor  int
	GracePeriod      time.Duration
	FreedGracePeriod time.Duration
	PollInterval     time.Duration
}

// RegisterFlags declares every tunable as a flag on cmd and binds it
// into viper, so Load reads each flag's parsed value, or its default
// when unset. No environment variables or config files are consulted.
func RegisterFlags(cmd *cobra.Command) error {
	cmd.Flags().String("store-path", "", "path to the workspace's persistent key-value store (empty uses an in-memory store)")
	cmd.Flags().Int("branching-factor", index.DefaultBranchingFactor, "index B-tree branching factor")
	cmd.Flags().Duration("grace-period", gc.DefaultGracePeriod, "how long an unreachable snapshot survives before GC can sweep it")
	cmd.Flags().Duration("freed-grace-period", gc.DefaultFreedGracePeriod, "how long a freed index node survives before it is physically reclaimed")
	cmd.Flags().Duration("poll-interval", DefaultPollInterval, "default poll interval for Watchable adapters without native push support")

	for _, name := range []string{"store-path", "branching-factor", "grace-period", "freed-grace-period", "poll-interval"} {
		if err := viper.BindPFlag(name, cmd.Flags().Lookup(name)); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the resolved tunables back out of viper.
func Load() Config {
	return Config{
		StorePath:        viper.GetString("store-path"),
		BranchingFactor:  viper.GetInt("branching-factor"),
		GracePeriod:      viper.GetDuration("grace-period"),
		FreedGracePeriod: viper.GetDuration("freed-grace-period"),
		PollInterval:     viper.GetDuration("poll-interval"),
	}
}
