package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"turtle-internet/internal/client"
	"turtle-internet/internal/emulator"
)

func newEmulateCmd() *cobra.Command {
	var (
		serverURL string
		blobDir   string
		shell     string
	)

	cmd := &cobra.Command{
		Use:   "emulate <game-id>",
		Short: "Run the emulator launch handshake for a game",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			api := client.New(serverURL, nil)
			g, err := api.GetGame(ctx, args[0])
			if err != nil {
				return err
			}
			if !g.IsEmulator {
				return fmt.Errorf("%s is not an emulator title", g.Name)
			}

			blobs, err := emulator.NewTempDirBlobs(blobDir)
			if err != nil {
				return err
			}
			defer blobs.Close()

			launcher := emulator.NewLauncher(emulator.NewWriterFrame(cmd.OutOrStdout()), api, blobs, shell)
			defer launcher.Close()

			launcher.Start(ctx, emulator.Target{GameURL: g.GameURL, System: g.System})
			select {
			case <-launcher.Done():
			case <-ctx.Done():
				return nil
			}
			if launcher.State() != emulator.Running {
				return fmt.Errorf("emulator for %s did not start", g.Name)
			}

			// Fire and forget, like the web catalog.
			go func() {
				if err := api.RecordPlay(ctx, g.ID); err != nil {
					slog.Warn("failed to report play", "game_id", g.ID, "error", err)
				}
			}()

			slog.Info("emulator running, interrupt to stop", "game", g.Name, "rom", launcher.Handle())
			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", defaultServer, "catalog server base URL")
	cmd.Flags().StringVar(&blobDir, "blob-dir", "", "directory for ROM blobs, temporary when empty")
	cmd.Flags().StringVar(&shell, "shell", emulator.DefaultShell, "emulator shell document")
	return cmd
}
