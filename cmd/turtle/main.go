package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"turtle-internet/internal/server"
)

func main() {
	root := &cobra.Command{
		Use:           "turtle",
		Short:         "Turtle Internet game catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newCreateTablesCmd())
	root.AddCommand(newHashPasswordCmd())
	root.AddCommand(newBrowseCmd())
	root.AddCommand(newEmulateCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	slog.SetDefault(server.NewLogger(os.Stderr, false))
}
