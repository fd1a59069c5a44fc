package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// main wires the cobra commands. Business logic lives in internal packages.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tally",
		Short:         "Election results aggregation and anomaly detection",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRebuildCmd(), newServeCmd(), newTokenCmd())
	return root
}
