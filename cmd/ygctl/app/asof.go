// SPDX-FileCopyrightText: Copyright 2026 Yggdrasil Authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/replikativ/yggdrasil-go/pkg/entry"
	"github.com/replikativ/yggdrasil-go/pkg/workspace"
)

// worldLine flattens a WorldKey/Entry pair for JSON output; WorldKey
// itself can't be a JSON map key since it isn't a string type.
type worldLine struct {
	SystemID   string       `json:"system_id"`
	BranchName string       `json:"branch_name"`
	Entry      entry.Entry `json:"entry"`
}

func flattenWorld(world map[workspace.WorldKey]entry.Entry) []worldLine {
	lines := make([]worldLine, 0, len(world))
	for k, e := range world {
		lines = append(lines, worldLine{SystemID: k.SystemID, BranchName: string(k.BranchName), Entry: e})
	}
	return lines
}

var asOfTime string

var asOfCmd = &cobra.Command{
	Use:   "as-of",
	Short: "Print the cross-system world view (spec §4.6 as_of_world)",
	Long: `as-of prints, for every (system_id, branch_name) pair known to the
registry, the newest entry committed at or before the query point. With
no --time flag the query point is the workspace's current HLC (seeded
from the wall clock when ygctl opens the workspace); --time pins it to a specific
RFC3339 timestamp instead (as_of_time).`,
	RunE: asOfCmdFunc,
}

func init() {
	asOfCmd.Flags().StringVar(&asOfTime, "time", "", "RFC3339 timestamp to query as of (default: now)")
}

func asOfCmdFunc(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	ws, err := openWorkspace(ctx)
	if err != nil {
		return fmt.Errorf("failed to open workspace: %w", err)
	}
	defer ws.Close(ctx)

	if asOfTime == "" {
		world, err := ws.AsOfWorld(ctx, ws.CurrentHLC())
		if err != nil {
			return fmt.Errorf("as_of_world failed: %w", err)
		}
		return printJSON(cmd, flattenWorld(world))
	}

	t, err := time.Parse(time.RFC3339, asOfTime)
	if err != nil {
		return fmt.Errorf("invalid --time %q: %w", asOfTime, err)
	}
	world, err := ws.AsOfTime(ctx, uint64(t.UnixMilli()))
	if err != nil {
		return fmt.Errorf("as_of_time failed: %w", err)
	}
	return printJSON(cmd, flattenWorld(world))
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(out))
	return nil
}
