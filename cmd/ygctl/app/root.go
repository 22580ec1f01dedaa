// Package app provides the entry point for the ygctl command-line
// application: a thin, read-only inspection CLI over a workspace's
// snapshot registry (spec §4.4, §4.8). It opens no backend connections
// of its own — every command reads whatever a prior process already
// registered into the store at --store-path.
package app

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/replikativ/yggdrasil-go/pkg/ygconfig"
	"github.com/replikativ/yggdrasil-go/pkg/workspace"
)

var rootCmd = &cobra.Command{
	Use:               "ygctl",
	DisableAutoGenTag: true,
	Short:             "Inspect a yggdrasil coordination layer workspace",
	Long: `ygctl is a read-only inspection tool for a yggdrasil workspace's
snapshot registry. It answers as-of and gc-report queries against the
registry persisted at --store-path; it does not connect to any backend
and cannot mutate the workspace.`,
}

// NewRootCmd creates a new root command for the ygctl CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:               rootCmd.Use,
		DisableAutoGenTag: rootCmd.DisableAutoGenTag,
		Short:             rootCmd.Short,
		Long:              rootCmd.Long,
	}
	if err := ygconfig.RegisterFlags(root); err != nil {
		// RegisterFlags only fails if viper.BindPFlag is handed an unknown
		// flag name, which would be a programming error in this package,
		// not a runtime condition — panicking here matches cobra's own
		// convention of panicking on a malformed command tree at init time.
		panic(err)
	}
	// RegisterFlags declares the tunables as local flags; sharing them as
	// persistent flags lets every subcommand accept --store-path and friends.
	root.PersistentFlags().AddFlagSet(root.Flags())

	root.AddCommand(asOfCmd)
	root.AddCommand(gcReportCmd)

	return root
}

// openWorkspace opens the workspace backing --store-path with no
// registered systems; every command in this package is a pure registry
// read, so AddSystem/Manage are never called.
func openWorkspace(ctx context.Context) (*workspace.Workspace, error) {
	cfg := ygconfig.Load()
	return workspace.Create(ctx, workspace.Options{
		StorePath:       cfg.StorePath,
		BranchingFactor: cfg.BranchingFactor,
	})
}
