// Package health maintains per-source reliability statistics and the
// per-company rolling scrape window that rotation fairness reads.
package health

import (
	"context"
	"math"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

const (
	emaOldWeight = 0.7
	emaNewWeight = 0.3
	// streakCap is where the failure-streak penalty saturates
	streakCap = 5
	// freshnessHalfLifeDays decays a stale source's score
	freshnessHalfLifeDays = 14.0
)

// ScrapeOutcome is what one completed scrape attempt reports back
type ScrapeOutcome struct {
	Success   bool
	JobsFound int
	Duration  time.Duration
	CompanyID string
}

// Tracker applies scrape outcomes to source health blocks. Writes are
// best-effort: a bookkeeping failure is logged, not surfaced, so a
// successful scrape is never failed by its own accounting.
type Tracker struct {
	sources interfaces.SourceStorage
	events  interfaces.ScrapeEventStorage
	logger  arbor.ILogger
	now     func() time.Time
}

func NewTracker(sources interfaces.SourceStorage, events interfaces.ScrapeEventStorage, logger arbor.ILogger) *Tracker {
	return &Tracker{
		sources: sources,
		events:  events,
		logger:  logger,
		now:     time.Now,
	}
}

// RecordScrape folds one outcome into the source's health block and
// records the company scrape event for the fairness window.
func (t *Tracker) RecordScrape(ctx context.Context, source *models.Source, outcome ScrapeOutcome) {
	now := t.now()
	health := source.Health

	health.LastScrapedAt = &now
	if outcome.Success {
		health.SuccessCount++
		health.ConsecutiveFailures = 0
		health.AvgJobsPerScrape = ema(health.AvgJobsPerScrape, float64(outcome.JobsFound), health.SuccessCount+health.FailureCount)
	} else {
		health.FailureCount++
		health.ConsecutiveFailures++
	}
	health.AvgDurationMS = ema(health.AvgDurationMS, float64(outcome.Duration.Milliseconds()), health.SuccessCount+health.FailureCount)
	health.HealthScore = ComputeHealthScore(health, now)

	source.Health = health

	if err := t.sources.UpdateHealth(ctx, source.ID, health); err != nil {
		t.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to persist source health")
	}

	if outcome.CompanyID != "" {
		if err := t.events.Record(ctx, outcome.CompanyID, source.ID, now); err != nil {
			t.logger.Warn().Err(err).Str("company_id", outcome.CompanyID).Msg("Failed to record scrape event")
		}
	}
}

// CompanyScrapeCount returns how many scrapes hit the company inside the
// fairness window ending now.
func (t *Tracker) CompanyScrapeCount(ctx context.Context, companyID string, window time.Duration) (int, error) {
	return t.events.CountSince(ctx, companyID, t.now().Add(-window))
}

// ComputeHealthScore is a pure function of the health block:
//
//	clip(0, 1, success_rate * (1 - min(streak, 5)/5) * exp(-days_since_scrape/14))
//
// A never-scraped source gets freshness 1.0 so new sources are not
// penalized before their first attempt.
func ComputeHealthScore(health models.SourceHealth, now time.Time) float64 {
	total := health.SuccessCount + health.FailureCount
	if total == 0 {
		return 1.0
	}
	successRate := float64(health.SuccessCount) / float64(total)

	streak := health.ConsecutiveFailures
	if streak > streakCap {
		streak = streakCap
	}
	streakPenalty := 1.0 - float64(streak)/float64(streakCap)

	freshness := 1.0
	if health.LastScrapedAt != nil {
		days := now.Sub(*health.LastScrapedAt).Hours() / 24.0
		if days > 0 {
			freshness = math.Exp(-days / freshnessHalfLifeDays)
		}
	}

	score := successRate * streakPenalty * freshness
	return math.Min(1.0, math.Max(0.0, score))
}

// ema returns the exponential moving average, seeding with the sample
// itself on the first observation.
func ema(old, sample float64, observations int) float64 {
	if observations <= 1 {
		return sample
	}
	return emaOldWeight*old + emaNewWeight*sample
}
