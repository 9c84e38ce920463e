// Package scheduler drives recurring scrape cycles on a cron schedule.
// A cycle submits SCRAPE roots for the rotation's next source batch,
// gated on daytime hours and the daily match target.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/queue"
	"github.com/ternarybob/venari/internal/rotation"
)

// Service owns the cron loop for scrape cycles
type Service struct {
	queue    *queue.Manager
	rotation *rotation.Scheduler
	matches  interfaces.MatchStorage
	config   *common.ConfigWatcher
	logger   arbor.ILogger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
	now     func() time.Time
}

func NewService(queueManager *queue.Manager, rotationScheduler *rotation.Scheduler, matches interfaces.MatchStorage, config *common.ConfigWatcher, logger arbor.ILogger) *Service {
	return &Service{
		queue:    queueManager,
		rotation: rotationScheduler,
		matches:  matches,
		config:   config,
		logger:   logger,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start registers the cycle on the configured cron expression
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	expr := s.config.Current().Scheduler.Cron
	if expr == "" {
		expr = "*/15 * * * *"
	}
	if _, err := s.cron.AddFunc(expr, s.runCycle); err != nil {
		return fmt.Errorf("failed to register scrape cycle: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("cron", expr).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for an in-flight cycle to finish
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// IsRunning reports whether the cron loop is active
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow runs one cycle immediately, outside the cron schedule and
// the daytime gate. Used by the drain mode and manual kicks.
func (s *Service) TriggerNow(ctx context.Context) error {
	return s.submitBatch(ctx)
}

func (s *Service) runCycle() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("panic", fmt.Sprintf("%v", r)).Msg("Panic recovered in scrape cycle")
		}
	}()

	ctx := context.Background()
	cfg := s.config.Current().Scheduler

	if !s.withinDaytime(cfg) {
		s.logger.Debug().Msg("Cycle skipped outside daytime hours")
		return
	}

	if cfg.TargetMatches > 0 {
		since := s.startOfDay(cfg)
		count, err := s.matches.CountSince(ctx, since)
		if err != nil {
			s.logger.Error().Err(err).Msg("Match count check failed, skipping cycle")
			return
		}
		if count >= cfg.TargetMatches {
			s.logger.Info().
				Int("matches", count).
				Int("target", cfg.TargetMatches).
				Msg("Daily match target reached, cycle skipped")
			return
		}
	}

	if err := s.submitBatch(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scrape cycle failed")
	}
}

// submitBatch asks the rotation for its next batch and submits one
// SCRAPE root per source
func (s *Service) submitBatch(ctx context.Context) error {
	batch, err := s.rotation.NextBatch(ctx, s.config.Current().Scheduler.MaxSources)
	if err != nil {
		return fmt.Errorf("rotation batch failed: %w", err)
	}
	if len(batch) == 0 {
		s.logger.Info().Msg("No sources eligible for this cycle")
		return nil
	}

	submitted := 0
	for _, source := range batch {
		if _, err := s.queue.SubmitRoot(ctx, models.ItemTypeScrape, source.URL); err != nil {
			s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to submit scrape item")
			continue
		}
		submitted++
	}

	s.logger.Info().
		Int("sources", len(batch)).
		Int("submitted", submitted).
		Msg("Scrape cycle submitted")
	return nil
}

// withinDaytime applies the configured local-time window
func (s *Service) withinDaytime(cfg common.SchedulerConfig) bool {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		s.logger.Warn().Err(err).Str("timezone", cfg.Timezone).Msg("Invalid timezone, using UTC")
		loc = time.UTC
	}
	hour := s.now().In(loc).Hour()
	return hour >= cfg.DaytimeHours.Start && hour < cfg.DaytimeHours.End
}

// startOfDay returns local midnight for the match-target window
func (s *Service) startOfDay(cfg common.SchedulerConfig) time.Time {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := s.now().In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
