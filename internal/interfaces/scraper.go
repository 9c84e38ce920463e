package interfaces

import (
	"context"

	"github.com/ternarybob/venari/internal/models"
)

// Fetcher retrieves raw bytes over HTTP with politeness limits applied.
// Returns body, content type, and an error classified transient or
// permanent via common.Transient.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, string, error)
}

// Scraper is a tagged capability for one source type: fetch a single
// posting into a JobRecord, or enumerate a board's current listings.
type Scraper interface {
	Type() models.SourceType
	FetchJob(ctx context.Context, url string) (*models.JobRecord, error)
	ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error)
}

// ScraperRegistry resolves scrapers by source type tag
type ScraperRegistry interface {
	For(sourceType models.SourceType) (Scraper, bool)
}
