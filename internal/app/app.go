// Package app wires the application components together and owns their
// lifecycle: storage, scrapers, AI, the queue, the worker pool, and the
// cron scheduler.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/ai"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/dedup"
	"github.com/ternarybob/venari/internal/health"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/pipeline"
	"github.com/ternarybob/venari/internal/queue"
	"github.com/ternarybob/venari/internal/rotation"
	"github.com/ternarybob/venari/internal/scheduler"
	"github.com/ternarybob/venari/internal/scrapers"
	badgerstore "github.com/ternarybob/venari/internal/storage/badger"
	"github.com/ternarybob/venari/internal/worker"
)

// App holds all application components
type App struct {
	Config  *common.ConfigWatcher
	Logger  arbor.ILogger
	Storage interfaces.StorageManager

	QueueManager *queue.Manager
	Engine       *pipeline.Engine
	Workers      *worker.Pool
	Scheduler    *scheduler.Service
}

// New initializes the application with all dependencies
func New(config *common.ConfigWatcher, logger arbor.ILogger) (*App, error) {
	cfg := config.Current()

	storage, err := badgerstore.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	fetcher := scrapers.NewHTTPFetcher(cfg.Scraper, logger)
	registry := scrapers.NewRegistry(fetcher, logger)
	aiService := ai.NewService(cfg.AI, logger)
	dedupService := dedup.NewService(storage.Queue(), storage.Matches(), logger)
	healthTracker := health.NewTracker(storage.Sources(), storage.ScrapeEvents(), logger)
	rotationScheduler := rotation.NewScheduler(storage.Sources(), storage.Companies(), storage.ScrapeEvents(), cfg.Rotation, logger)

	queueManager := queue.NewManager(storage.Queue(), config, logger)
	engine := pipeline.NewEngine(queueManager, storage, registry, fetcher, aiService, dedupService, healthTracker, config, logger)
	workers := worker.NewPool(queueManager, engine, config, logger)
	schedulerService := scheduler.NewService(queueManager, rotationScheduler, storage.Matches(), config, logger)

	return &App{
		Config:       config,
		Logger:       logger,
		Storage:      storage,
		QueueManager: queueManager,
		Engine:       engine,
		Workers:      workers,
		Scheduler:    schedulerService,
	}, nil
}

// Start launches the worker pool and, when enabled, the cron scheduler
func (a *App) Start() error {
	a.Workers.Start()

	if a.Config.Current().Scheduler.Enabled {
		if err := a.Scheduler.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	} else {
		a.Logger.Info().Msg("Scheduler disabled by configuration")
	}
	return nil
}

// Submit enqueues a root work item from an external request
func (a *App) Submit(ctx context.Context, itemType models.ItemType, url string) (*models.WorkItem, error) {
	return a.QueueManager.SubmitRoot(ctx, itemType, url)
}

// Drain triggers one scrape cycle and processes the queue until empty.
// Returns the process exit code.
func (a *App) Drain(ctx context.Context) (int, error) {
	if err := a.Scheduler.TriggerNow(ctx); err != nil {
		return 1, fmt.Errorf("failed to submit scrape cycle: %w", err)
	}
	return a.Workers.RunUntilDrained(ctx)
}

// Close shuts components down in reverse dependency order
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Workers.Stop()

	if err := a.Config.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close config watcher")
	}
	if err := a.Storage.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.Logger.Info().Msg("Application shut down")
	return nil
}
