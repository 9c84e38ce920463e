package models

import (
	"fmt"
	"time"
)

// SourceType classifies how a source is scraped
type SourceType string

const (
	SourceTypeGreenhouse SourceType = "greenhouse"
	SourceTypeWorkday    SourceType = "workday"
	SourceTypeRSS        SourceType = "rss"
	SourceTypeAPI        SourceType = "api"
	SourceTypeHTML       SourceType = "html"
)

// Confidence expresses how sure detection was about a source's type
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// SelectorConfig holds CSS selectors for generic HTML sources
type SelectorConfig struct {
	List    string `json:"list,omitempty"`    // Selector for each listing element
	Title   string `json:"title,omitempty"`   // Selector for the title within a listing
	Link    string `json:"link,omitempty"`    // Selector for the job link within a listing
	Company string `json:"company,omitempty"` // Optional selector for a company hint
}

// SourceHealth summarizes a source's recent reliability. HealthScore is a
// pure function of the other fields, recomputed on every update.
type SourceHealth struct {
	LastScrapedAt       *time.Time `json:"last_scraped_at,omitempty"`
	SuccessCount        int        `json:"success_count"`
	FailureCount        int        `json:"failure_count"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	AvgJobsPerScrape    float64    `json:"avg_jobs_per_scrape"`
	AvgDurationMS       float64    `json:"avg_duration_ms"`
	HealthScore         float64    `json:"health_score"` // [0,1]
}

// Source is a scrapable locus (a company's job board, an RSS feed, an
// aggregator API) used by the rotation scheduler.
type Source struct {
	ID          string         `json:"id" badgerhold:"key"`
	CompanyID   string         `json:"company_id" badgerhold:"index"`
	CompanyName string         `json:"company_name"`
	Type        SourceType     `json:"type"`
	URL         string         `json:"url"`
	URLHash     string         `json:"url_hash" badgerhold:"index"`
	BoardToken  string         `json:"board_token,omitempty"` // Greenhouse/Workday board identifier
	Selectors   SelectorConfig `json:"selectors,omitempty"`

	Enabled                  bool       `json:"enabled" badgerhold:"index"`
	Confidence               Confidence `json:"confidence"`
	ManualValidationRequired bool       `json:"manual_validation_required,omitempty"`

	Health SourceHealth `json:"health"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Validate checks the source configuration
func (s *Source) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("source URL is required")
	}
	switch s.Type {
	case SourceTypeGreenhouse, SourceTypeWorkday, SourceTypeRSS, SourceTypeAPI, SourceTypeHTML:
	default:
		return fmt.Errorf("invalid source type: %s", s.Type)
	}
	switch s.Confidence {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
	default:
		return fmt.Errorf("invalid source confidence: %s", s.Confidence)
	}
	if s.Type == SourceTypeHTML && s.Enabled && s.Selectors.List == "" {
		return fmt.Errorf("enabled html source requires a list selector")
	}
	return nil
}
