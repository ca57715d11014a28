package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bobmcallan/syncplay/internal/common"
	"github.com/bobmcallan/syncplay/internal/finalize"
	"github.com/bobmcallan/syncplay/internal/intake"
	"github.com/bobmcallan/syncplay/internal/interfaces"
	"github.com/bobmcallan/syncplay/internal/providers/fixture"
	"github.com/bobmcallan/syncplay/internal/queue"
	"github.com/bobmcallan/syncplay/internal/reaper"
	"github.com/bobmcallan/syncplay/internal/runner"
	"github.com/bobmcallan/syncplay/internal/storage/surrealdb"
	"golang.org/x/time/rate"
)

// App holds all initialized components and configuration. It is the
// shared core used by cmd/syncplay-server and cmd/syncplay-worker.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Queue       interfaces.TaskQueue
	Scheduler   interfaces.Scheduler
	SPProvider  interfaces.Provider
	YTProvider  interfaces.Provider
	Runner      *runner.Runner
	Intake      *intake.Intake
	Finalizer   *finalize.Finalizer
	Reaper      *reaper.Reaper
	StartupTime time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// seedCatalog is the fixed search corpus the fixture providers match
// against. A real deployment would replace this with data fetched
// through the OAuth-backed SP/YT SDK integrations §1 places outside the
// core; until that integration exists, this stands in as the only
// source of candidate tracks the Matching Pipeline has to search.
func seedCatalog() []fixture.Candidate {
	return []fixture.Candidate{
		{ID: "cat-1", Title: "Midnight City", Artist: "M83"},
		{ID: "cat-2", Title: "Take On Me", Artist: "a-ha"},
		{ID: "cat-3", Title: "Bohemian Rhapsody", Artist: "Queen"},
		{ID: "cat-4", Title: "Blinding Lights", Artist: "The Weeknd"},
		{ID: "cat-5", Title: "Heroes", Artist: "David Bowie"},
		{ID: "cat-6", Title: "Dreams", Artist: "Fleetwood Mac"},
		{ID: "cat-7", Title: "Harder, Better, Faster, Stronger", Artist: "Daft Punk"},
		{ID: "cat-8", Title: "Hey Ya!", Artist: "OutKast"},
		{ID: "cat-9", Title: "Losing My Religion", Artist: "R.E.M."},
		{ID: "cat-10", Title: "Paranoid Android", Artist: "Radiohead"},
	}
}

// NewApp initializes configuration, storage, the task queue, the fixture
// providers, and every component wired atop them. configPath may be
// empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()

	binDir := getBinaryDir()

	// Load configuration - check provided path, SYNCPLAY_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("SYNCPLAY_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "syncplay-service.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/syncplay-service.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storageManager, err := surrealdb.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	broker := queue.NewBroker(storageManager.DB(), logger, config.Queue.GetPollInterval(), config.Queue.GetVisibilityTTL())
	scheduler := queue.NewScheduler(broker, logger)

	catalog := seedCatalog()
	spProvider := fixture.NewProvider(fixture.VariantSP, catalog, rate.Limit(10))
	ytProvider := fixture.NewProvider(fixture.VariantYT, catalog, rate.Limit(10))

	jobRunner := runner.NewRunner(storageManager.Jobs(), storageManager.Quota(), spProvider, ytProvider, logger)
	jobRunner.Register(broker)

	jobIntake := intake.NewIntake(storageManager.Jobs(), storageManager.Quota(), broker, logger)
	jobFinalizer := finalize.NewFinalizer(storageManager.Jobs(), broker)

	jobReaper := reaper.NewReaper(storageManager.Jobs(), logger, config.Reaper.GetStaleAfter(), config.Reaper.GetGCAfter())
	if err := jobReaper.Register(broker, scheduler, config.Reaper.Schedule); err != nil {
		return nil, fmt.Errorf("failed to register reaper: %w", err)
	}

	a := &App{
		Config:      config,
		Logger:      logger,
		Storage:     storageManager,
		Queue:       broker,
		Scheduler:   scheduler,
		SPProvider:  spProvider,
		YTProvider:  ytProvider,
		Runner:      jobRunner,
		Intake:      jobIntake,
		Finalizer:   jobFinalizer,
		Reaper:      jobReaper,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("App initialized")

	return a, nil
}

// StartBackground begins polling the task queue and running the
// scheduler's periodic cleanup task. Call Close to stop both.
func (a *App) StartBackground(ctx context.Context) error {
	if err := a.Queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task queue: %w", err)
	}
	a.Scheduler.Start()
	return nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.Queue != nil {
		a.Queue.Stop()
	}
	if a.Storage != nil {
		a.Storage.Close()
		a.Storage = nil
	}
}
