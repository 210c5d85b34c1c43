// Package cli implements the livret command line: the API server plus
// offline render, batch, migration and seeding commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gilkh/livret/internal/logging"
	"github.com/gilkh/livret/internal/version"
)

// Execute runs the command named by os.Args. Without a subcommand the API
// server is started.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:          "livret",
		Short:        "Render student report cards to PDF",
		Long:         `livret serves the report-card export API and renders template-driven carnets to PDF, one at a time or in ZIP batches.`,
		Version:      version.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				_ = os.Setenv("LOG_LEVEL", "debug")
				logging.Init()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), "")
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("%s\nbuilt: %s\n", version.String(), version.BuildTime))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd())
	root.AddCommand(newRenderCmd())
	root.AddCommand(newBatchCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newSeedCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newTokenCmd())
	root.AddCommand(newVersionCmd())

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeVersion(cmd.OutOrStdout(), version.Get())
		},
	}
}
