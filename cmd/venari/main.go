package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/app"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

// configPaths allows multiple -config flags; later files override earlier ones
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles  configPaths
	drainMode    = flag.Bool("drain", false, "Submit one scrape cycle, process the queue until empty, then exit")
	submitURL    = flag.String("submit", "", "Submit a single root work item for this URL and exit")
	submitType   = flag.String("type", "JOB", "Work item type for -submit (JOB, COMPANY, SOURCE_DISCOVERY, SCRAPE)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("Venari version %s\n", common.GetVersion())
		os.Exit(0)
	}

	// Startup order: config, logger, banner, app
	if len(configFiles) == 0 {
		if _, err := os.Stat("venari.toml"); err == nil {
			configFiles = append(configFiles, "venari.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(config, logger)

	watchPath := ""
	if len(configFiles) > 0 {
		// Hot reload tracks the last file, the one with the final say
		watchPath = configFiles[len(configFiles)-1]
	}
	watcher := common.NewConfigWatcher(config, watchPath, logger)
	if err := watcher.Watch(); err != nil {
		logger.Warn().Err(err).Msg("Config hot reload unavailable")
	}

	application, err := app.New(watcher, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	os.Exit(run(application, logger))
}

func run(application *app.App, logger arbor.ILogger) int {
	defer func() {
		if err := application.Close(); err != nil {
			logger.Error().Err(err).Msg("Shutdown error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *submitURL != "" {
		item, err := application.Submit(ctx, models.ItemType(*submitType), *submitURL)
		if err != nil {
			logger.Error().Err(err).Str("url", *submitURL).Msg("Submission failed")
			return 1
		}
		logger.Info().
			Str("item_id", item.ID).
			Str("tracking_id", item.TrackingID).
			Msg("Work item submitted")
		if !*drainMode {
			return 0
		}
		// Submitted item only; drain without triggering a scrape cycle
		code, err := application.Workers.RunUntilDrained(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Drain run failed")
		}
		return code
	}

	if *drainMode {
		code, err := application.Drain(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("Drain run failed")
		}
		return code
	}

	if err := application.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start application")
		return 1
	}
	logger.Info().Msg("Venari running, Ctrl+C to stop")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received")
	return 0
}
