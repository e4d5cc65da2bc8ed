package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/cwbudde/frechetmean/internal/runner"
	"github.com/cwbudde/frechetmean/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
	serveOutDir  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP job server",
	Long: `Starts an HTTP server that accepts run configurations as JSON jobs,
executes them in the background and exposes their status, progress stream,
estimate and trace.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := server.NewServer(serveAddr, runner.New(serveDataDir, serveOutDir))

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.Start()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
			slog.Info("Received shutdown signal")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Directory containing one subdirectory per dataset")
	serveCmd.Flags().StringVar(&serveOutDir, "out-dir", "./results", "Base directory for stored runs")
	rootCmd.AddCommand(serveCmd)
}
