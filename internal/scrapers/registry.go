package scrapers

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// Registry holds one scraper per source type
type Registry struct {
	scrapers map[models.SourceType]interfaces.Scraper
}

// NewRegistry wires the standard scrapers over a shared fetcher
func NewRegistry(fetcher interfaces.Fetcher, logger arbor.ILogger) *Registry {
	registry := &Registry{scrapers: make(map[models.SourceType]interfaces.Scraper)}
	for _, scraper := range []interfaces.Scraper{
		NewGreenhouseScraper(fetcher, logger),
		NewWorkdayScraper(fetcher, logger),
		NewRSSScraper(fetcher, logger),
		NewAPIScraper(fetcher, logger),
		NewHTMLScraper(fetcher, logger),
	} {
		registry.scrapers[scraper.Type()] = scraper
	}
	return registry
}

// For resolves the scraper for a source type
func (r *Registry) For(sourceType models.SourceType) (interfaces.Scraper, bool) {
	scraper, ok := r.scrapers[sourceType]
	return scraper, ok
}
