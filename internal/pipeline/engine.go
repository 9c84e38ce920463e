package pipeline

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/dedup"
	"github.com/ternarybob/venari/internal/filter"
	"github.com/ternarybob/venari/internal/health"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/queue"
)

// Engine runs pipeline stages against a claimed work item. One call to
// ExecuteStage advances the item by exactly one stage; the caller
// persists between stages so a crash loses at most the in-flight stage.
type Engine struct {
	queue    *queue.Manager
	storage  interfaces.StorageManager
	scrapers interfaces.ScraperRegistry
	fetcher  interfaces.Fetcher
	ai       interfaces.AIService
	dedup    *dedup.Service
	health   *health.Tracker
	config   *common.ConfigWatcher
	logger   arbor.ILogger
}

func NewEngine(
	queueManager *queue.Manager,
	storage interfaces.StorageManager,
	registry interfaces.ScraperRegistry,
	fetcher interfaces.Fetcher,
	aiService interfaces.AIService,
	dedupService *dedup.Service,
	healthTracker *health.Tracker,
	config *common.ConfigWatcher,
	logger arbor.ILogger,
) *Engine {
	return &Engine{
		queue:    queueManager,
		storage:  storage,
		scrapers: registry,
		fetcher:  fetcher,
		ai:       aiService,
		dedup:    dedupService,
		health:   healthTracker,
		config:   config,
		logger:   logger,
	}
}

// filterEngine builds the filter from the live config snapshot so a
// config reload takes effect on the next stage run.
func (e *Engine) filterEngine() *filter.Engine {
	return filter.NewEngine(e.config.Current().Filter)
}

// ExecuteStage selects and runs one stage. Stage handlers never
// propagate panics or raise past this boundary as anything other than
// an error; mapping errors to status is the caller's job.
func (e *Engine) ExecuteStage(ctx context.Context, item *models.WorkItem) error {
	stage, err := SelectStage(item.Type, item)
	if err != nil {
		return err
	}

	e.logger.Debug().
		Str("item_id", item.ID).
		Str("stage", string(stage)).
		Int("spawn_depth", item.SpawnDepth).
		Msg("Executing stage")

	switch stage {
	case StageJobScrape:
		return e.jobScrape(ctx, item)
	case StageJobFilter:
		return e.jobFilter(ctx, item)
	case StageJobAnalyze:
		return e.jobAnalyze(ctx, item)
	case StageJobSave:
		return e.jobSave(ctx, item)
	case StageCompanyFetch:
		return e.companyFetch(ctx, item)
	case StageCompanyExtract:
		return e.companyExtract(ctx, item)
	case StageCompanyAnalyze:
		return e.companyAnalyze(ctx, item)
	case StageCompanySave:
		return e.companySave(ctx, item)
	case StageSourceDetect:
		return e.sourceDetect(ctx, item)
	case StageSourceValidate:
		return e.sourceValidate(ctx, item)
	case StageSourceSave:
		return e.sourceSave(ctx, item)
	case StageScrapeRun:
		return e.scrapeRun(ctx, item)
	default:
		return fmt.Errorf("stage %q has no handler", stage)
	}
}

// spawnChild is the shared safe-spawn wrapper: a refusal is logged by
// the queue manager and absorbed here, the parent stage continues.
func (e *Engine) spawnChild(ctx context.Context, parent *models.WorkItem, targetURL string, targetType models.ItemType) (*models.WorkItem, error) {
	child, refusal, err := e.queue.Spawn(ctx, parent, targetURL, targetType)
	if err != nil {
		return nil, err
	}
	if refusal != "" {
		return nil, nil
	}
	return child, nil
}
