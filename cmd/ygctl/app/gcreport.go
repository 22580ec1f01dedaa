// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/replikativ/yggdrasil-go/pkg/gc"
	"github.com/replikativ/yggdrasil-go/pkg/ygconfig"
)

var gcReportCmd = &cobra.Command{
	Use:   "gc-report",
	Short: "Report GC candidates without sweeping (spec §4.8 gc_report)",
	Long: `gc-report runs steps 1-2 of gc_sweep (reachability collection and
candidate selection) against the registry at --store-path and prints the
result without deleting anything. Since ygctl holds no live backend
connections and no held refs, its reachable set is empty: every registry
entry older than the grace period is reported as a candidate, including
snapshots a live workspace's backends or held refs would keep — treat
this as an upper bound on what a live workspace would sweep, not an
authoritative sweep plan.`,
	RunE: gcReportCmdFunc,
}

func gcReportCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close(ctx)

	cfg := ygconfig.Load()
	report, err := ws.GCReport(ctx, gc.Options{
		GracePeriod:      cfg.GracePeriod,
		FreedGracePeriod: cfg.FreedGracePeriod,
		Now:              time.Now(),
	})
	if err != nil {
		return fmt.Errorf("gc_report failed: %w", err)
	}
	return printJSON(cmd, report)
}
