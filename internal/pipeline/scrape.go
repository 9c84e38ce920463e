package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/venari/internal/health"
	"github.com/ternarybob/venari/internal/models"
)

// ---------------------------------------------------------------------
// SCRAPE pipeline: single stage, fans out JOB children
// ---------------------------------------------------------------------

func (e *Engine) scrapeRun(ctx context.Context, item *models.WorkItem) error {
	source, err := e.storage.Sources().FindByURLHash(ctx, item.URLHash)
	if err != nil {
		return fmt.Errorf("source lookup failed: %w", err)
	}
	if source == nil {
		return fmt.Errorf("no source registered for %s", item.URL)
	}
	if !source.Enabled {
		item.MarkSkipped(fmt.Sprintf("source %s is disabled", source.URL))
		e.logger.Info().Str("item_id", item.ID).Str("source_id", source.ID).Msg("Skipping disabled source")
		return nil
	}

	scraper, ok := e.scrapers.For(source.Type)
	if !ok {
		return fmt.Errorf("no scraper registered for source type %s", source.Type)
	}

	started := time.Now()
	listings, err := scraper.ListJobs(ctx, source)
	elapsed := time.Since(started)
	if err != nil {
		e.health.RecordScrape(ctx, source, health.ScrapeOutcome{
			Success:   false,
			Duration:  elapsed,
			CompanyID: source.CompanyID,
		})
		return fmt.Errorf("scrape of %s failed: %w", source.URL, err)
	}

	urls := make([]string, 0, len(listings))
	for _, listing := range listings {
		urls = append(urls, listing.URL)
	}
	known, err := e.dedup.BatchExists(ctx, urls, models.ItemTypeJob)
	if err != nil {
		e.health.RecordScrape(ctx, source, health.ScrapeOutcome{
			Success:   false,
			JobsFound: len(listings),
			Duration:  elapsed,
			CompanyID: source.CompanyID,
		})
		return fmt.Errorf("dedup check failed: %w", err)
	}

	spawned := 0
	for _, listing := range listings {
		if known[listing.URL] {
			continue
		}
		child, err := e.spawnChild(ctx, item, listing.URL, models.ItemTypeJob)
		if err != nil {
			return fmt.Errorf("failed to spawn job item: %w", err)
		}
		if child != nil {
			spawned++
		}
	}

	e.health.RecordScrape(ctx, source, health.ScrapeOutcome{
		Success:   true,
		JobsFound: len(listings),
		Duration:  elapsed,
		CompanyID: source.CompanyID,
	})

	item.MarkSuccess(fmt.Sprintf("%d listings, %d new", len(listings), spawned))
	e.logger.Info().
		Str("item_id", item.ID).
		Str("source_id", source.ID).
		Int("listings", len(listings)).
		Int("spawned", spawned).
		Msg("Scrape completed")
	return nil
}
