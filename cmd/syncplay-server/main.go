// Command syncplay-server runs the REST API and, unless
// SYNCPLAY_WORKER_DISABLED is set, the in-process task queue and
// scheduler that drive the job engine (§5: "may run as a single process
// ... or as parallel worker processes").
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bobmcallan/syncplay/internal/app"
	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/server"
)

func main() {
	configPath := os.Getenv("SYNCPLAY_CONFIG")

	a, err := app.NewApp(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.PrintBanner(a.Config, a.Logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	if os.Getenv("SYNCPLAY_WORKER_DISABLED") == "" {
		if err := a.StartBackground(bgCtx); err != nil {
			a.Logger.Fatal().Err(err).Msg("Failed to start background workers")
		}
	}

	srv := server.NewServer(a)

	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.Info().Err(err).Msg("HTTP server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	a.Logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	bgCancel()
	a.Close()
	a.Logger.Info().Msg("Server stopped")
}
