package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "censusctl",
		Short: "Inspect and normalize employee census files",
		Long: `censusctl runs the census inference pipeline locally: it detects a file's
format, finds its tables, maps columns to standard fields and walks through
the clarification questions needed to produce a normalized dataset.

Configuration is read from config.yaml in the working directory and from
environment variables, as for the server.`,
		SilenceUsage: true,
		Version:      version,
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "log pipeline stages to stderr")

	root.AddCommand(detectCmd())
	root.AddCommand(analyzeCmd())
	root.AddCommand(interviewCmd())
	root.AddCommand(batchCmd())
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
