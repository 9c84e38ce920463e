// Package rotation ranks enabled sources for the next scrape cycle so
// healthy, high-tier, long-unscraped sources go first and no company is
// scraped disproportionately often.
package rotation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Scheduler produces ordered source batches for recurring scrapes
type Scheduler struct {
	sources   interfaces.SourceStorage
	companies interfaces.CompanyStorage
	events    interfaces.ScrapeEventStorage
	config    common.RotationConfig
	logger    arbor.ILogger
	now       func() time.Time
}

func NewScheduler(sources interfaces.SourceStorage, companies interfaces.CompanyStorage, events interfaces.ScrapeEventStorage, config common.RotationConfig, logger arbor.ILogger) *Scheduler {
	return &Scheduler{
		sources:   sources,
		companies: companies,
		events:    events,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// candidate carries the precomputed sort keys for one source
type candidate struct {
	source      *models.Source
	tierRank    int
	recentCount int
	lastScraped *time.Time
}

// NextBatch returns up to n enabled sources ordered by the rotation
// sort: health descending, company tier, least-recently-scraped first
// (never-scraped before everything), then 30-day company scrape count
// ascending as the fairness tie-breaker. Sources whose failure streak
// has reached the configured cutoff are excluded until re-enabled.
func (s *Scheduler) NextBatch(ctx context.Context, n int) ([]*models.Source, error) {
	if n <= 0 {
		return nil, nil
	}

	enabled, err := s.sources.ListEnabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled sources: %w", err)
	}

	window := time.Duration(s.config.FairnessWindowDays) * 24 * time.Hour
	since := s.now().Add(-window)

	tierCache := make(map[string]int)
	candidates := make([]candidate, 0, len(enabled))
	for _, source := range enabled {
		if source.Health.ConsecutiveFailures >= s.config.MaxConsecutiveFailures {
			s.logger.Debug().
				Str("source_id", source.ID).
				Int("streak", source.Health.ConsecutiveFailures).
				Msg("Source excluded from rotation by failure streak")
			continue
		}

		c := candidate{
			source:      source,
			tierRank:    models.TierRank(models.TierC),
			lastScraped: source.Health.LastScrapedAt,
		}
		if source.CompanyID != "" {
			rank, err := s.companyTierRank(ctx, source.CompanyID, tierCache)
			if err != nil {
				return nil, err
			}
			c.tierRank = rank

			count, err := s.events.CountSince(ctx, source.CompanyID, since)
			if err != nil {
				return nil, fmt.Errorf("failed to count company scrapes: %w", err)
			}
			c.recentCount = count
		}
		candidates = append(candidates, c)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.source.Health.HealthScore != b.source.Health.HealthScore {
			return a.source.Health.HealthScore > b.source.Health.HealthScore
		}
		if a.tierRank != b.tierRank {
			return a.tierRank < b.tierRank
		}
		if before, decided := lastScrapedBefore(a.lastScraped, b.lastScraped); decided {
			return before
		}
		return a.recentCount < b.recentCount
	})

	if n > len(candidates) {
		n = len(candidates)
	}
	batch := make([]*models.Source, n)
	for i := 0; i < n; i++ {
		batch[i] = candidates[i].source
	}
	return batch, nil
}

func (s *Scheduler) companyTierRank(ctx context.Context, companyID string, cache map[string]int) (int, error) {
	if rank, ok := cache[companyID]; ok {
		return rank, nil
	}
	company, err := s.companies.Get(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("failed to load company for rotation: %w", err)
	}
	rank := models.TierRank(models.TierC)
	if company != nil {
		rank = models.TierRank(company.Tier)
	}
	cache[companyID] = rank
	return rank, nil
}

// lastScrapedBefore orders never-scraped (nil) first, then older
// timestamps first. Returns decided=false when the key is a tie.
func lastScrapedBefore(a, b *time.Time) (before, decided bool) {
	switch {
	case a == nil && b == nil:
		return false, false
	case a == nil:
		return true, true
	case b == nil:
		return false, true
	case a.Equal(*b):
		return false, false
	default:
		return a.Before(*b), true
	}
}
