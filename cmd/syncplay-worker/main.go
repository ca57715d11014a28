// Command syncplay-worker runs the task queue, scheduler, and job runner
// without the HTTP surface — the "parallel worker processes" half of the
// deployment model described in §5. Multiple instances coordinate only
// through the Job Store and Quota Ledger, so any number can run against
// the same SurrealDB instance alongside syncplay-server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bobmcallan/syncplay/internal/app"
	"github.com/bobmcallan/syncplay/internal/common"
)

func main() {
	configPath := os.Getenv("SYNCPLAY_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.StartBackground(ctx); err != nil {
		a.Logger.Fatal().Err(err).Msg("Failed to start background workers")
	}

	a.Logger.Info().Msg("Worker ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("Shutdown signal received")
	cancel()
	a.Close()
	a.Logger.Info().Msg("Worker stopped")
}
