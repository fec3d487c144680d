package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "image-filter-server",
		Short: "Websocket server applying image filters",
		Long: `image-filter-server applies color filters and super-resolution upscaling
to images submitted over websockets, logs every request to a SQLite usage
log and serves a 30-day usage histogram.

Examples:
  image-filter-server initdb usage.db
  image-filter-server serve --db usage.db --port 8765
  image-filter-server serve --db usage.db --upscale-command "python3 upscale.py" --model-dir models`,
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newInitDBCmd(), newRecordsCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "image-filter-server %s\n", Version)
			fmt.Fprintf(out, "  Build time: %s\n", BuildTime)
			fmt.Fprintf(out, "  Git commit: %s\n", GitCommit)
		},
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
