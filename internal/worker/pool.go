// Package worker runs the claim-execute-persist loop over the work
// queue. Each worker advances a claimed item one stage at a time,
// persisting after every stage, so a crash mid-item costs at most the
// stage that was in flight.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/pipeline"
	"github.com/ternarybob/venari/internal/queue"
)

// Pool manages a set of worker goroutines polling the queue
type Pool struct {
	queue  *queue.Manager
	engine *pipeline.Engine
	config *common.ConfigWatcher
	logger arbor.ILogger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPool(queueManager *queue.Manager, engine *pipeline.Engine, config *common.ConfigWatcher, logger arbor.ILogger) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		queue:  queueManager,
		engine: engine,
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the configured number of workers. Starts are staggered
// so a full queue does not produce a thundering herd of claims.
func (p *Pool) Start() {
	concurrency := p.config.Current().Queue.Concurrency
	p.logger.Info().
		Int("workers", concurrency).
		Msg("Starting worker pool")

	for i := 0; i < concurrency; i++ {
		p.wg.Add(1)
		go p.worker(i)
		time.Sleep(50 * time.Millisecond)
	}
}

// Stop drains the pool gracefully: workers finish their current item
func (p *Pool) Stop() {
	p.logger.Info().Msg("Stopping worker pool...")
	p.cancel()
	p.wg.Wait()
	p.logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) worker(workerID int) {
	defer p.wg.Done()

	p.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	ticker := time.NewTicker(p.config.Current().Queue.PollIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Debug().Int("worker_id", workerID).Msg("Worker stopping")
			return
		case <-ticker.C:
			p.drainAvailable(workerID)
		}
	}
}

// drainAvailable processes items until the queue is momentarily empty,
// then returns to the poll ticker
func (p *Pool) drainAvailable(workerID int) {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}
		if !p.processNext(workerID) {
			return
		}
	}
}

// processNext claims and fully processes one item. Returns false when
// the queue had nothing claimable.
func (p *Pool) processNext(workerID int) bool {
	item, err := p.queue.Claim(p.ctx)
	if err != nil {
		if !errors.Is(err, interfaces.ErrNoItem) && !errors.Is(err, context.Canceled) {
			p.logger.Error().Err(err).Int("worker_id", workerID).Msg("Claim failed")
		}
		return false
	}

	p.logger.Info().
		Int("worker_id", workerID).
		Str("item_id", item.ID).
		Str("type", string(item.Type)).
		Msg("Processing work item")

	p.runItem(item)
	return true
}

// runItem advances the item stage by stage until it reaches a terminal
// status or a stage fails. Each stage gets a fresh timeout for its item
// type, so a long scrape cannot starve the save that follows it.
func (p *Pool) runItem(item *models.WorkItem) {
	for !item.IsTerminal() {
		if err := p.runStage(item); err != nil {
			if failErr := p.queue.FailOrRetry(context.Background(), item, err); failErr != nil {
				p.logger.Error().Err(failErr).Str("item_id", item.ID).Msg("Failed to record stage failure")
			}
			return
		}
		// Persist after every stage so a resumed item skips completed work
		if err := p.queue.Complete(context.Background(), item); err != nil {
			p.logger.Error().Err(err).Str("item_id", item.ID).Msg("Failed to persist work item")
			return
		}
	}
}

func (p *Pool) runStage(item *models.WorkItem) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.stageTimeout(item.Type))
	defer cancel()
	return p.engine.ExecuteStage(ctx, item)
}

func (p *Pool) stageTimeout(itemType models.ItemType) time.Duration {
	timeouts := p.config.Current().Queue.Timeouts
	switch itemType {
	case models.ItemTypeScrape:
		return timeouts.ScrapeDuration()
	case models.ItemTypeCompany:
		return timeouts.CompanyDuration()
	default:
		return timeouts.JobDuration()
	}
}

// RunUntilDrained processes the queue until no PENDING or PROCESSING
// items remain, then returns an exit code: zero unless any item ended
// FAILED. SKIPPED and FILTERED are successful outcomes.
func (p *Pool) RunUntilDrained(ctx context.Context) (int, error) {
	p.Start()
	defer p.Stop()

	poll := p.config.Current().Queue.PollIntervalDuration()
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return 1, ctx.Err()
		case <-ticker.C:
		}

		counts, err := p.queue.StatusCounts(ctx)
		if err != nil {
			return 1, err
		}
		if counts[models.StatusPending]+counts[models.StatusProcessing] > 0 {
			continue
		}

		p.logger.Info().
			Int("success", counts[models.StatusSuccess]).
			Int("failed", counts[models.StatusFailed]).
			Int("skipped", counts[models.StatusSkipped]).
			Int("filtered", counts[models.StatusFiltered]).
			Msg("Queue drained")

		if counts[models.StatusFailed] > 0 {
			return 1, nil
		}
		return 0, nil
	}
}
