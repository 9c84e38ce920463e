package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// APIScraper consumes generic JSON job endpoints: a top-level array of
// postings, or an object wrapping one under common keys.
type APIScraper struct {
	fetcher interfaces.Fetcher
	logger  arbor.ILogger
}

func NewAPIScraper(fetcher interfaces.Fetcher, logger arbor.ILogger) *APIScraper {
	return &APIScraper{fetcher: fetcher, logger: logger}
}

func (s *APIScraper) Type() models.SourceType {
	return models.SourceTypeAPI
}

// apiPosting covers the field names seen across generic job APIs
type apiPosting struct {
	URL         string `json:"url"`
	Link        string `json:"link"`
	AbsoluteURL string `json:"absolute_url"`
	Title       string `json:"title"`
	Name        string `json:"name"`
	Company     string `json:"company"`
	CompanyName string `json:"company_name"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

func (p *apiPosting) link() string {
	for _, candidate := range []string{p.URL, p.AbsoluteURL, p.Link} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

func (p *apiPosting) title() string {
	if p.Title != "" {
		return p.Title
	}
	return p.Name
}

func (p *apiPosting) company() string {
	if p.Company != "" {
		return p.Company
	}
	return p.CompanyName
}

// decodePostings accepts a bare array or an object wrapping one
func decodePostings(body []byte) ([]apiPosting, error) {
	var direct []apiPosting
	if err := json.Unmarshal(body, &direct); err == nil {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, fmt.Errorf("response is neither a posting array nor an object")
	}
	for _, key := range []string{"jobs", "results", "data", "items", "postings"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		var postings []apiPosting
		if err := json.Unmarshal(raw, &postings); err == nil {
			return postings, nil
		}
	}
	return nil, fmt.Errorf("response carries no recognizable posting array")
}

func (s *APIScraper) ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error) {
	body, _, err := s.fetcher.Get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	postings, err := decodePostings(body)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.URL, err)
	}

	var listings []models.Listing
	for _, posting := range postings {
		link := posting.link()
		if link == "" {
			continue
		}
		hint := posting.company()
		if hint == "" {
			hint = source.CompanyName
		}
		listings = append(listings, models.Listing{
			URL:         link,
			Title:       posting.title(),
			CompanyHint: hint,
		})
	}

	s.logger.Debug().
		Str("url", source.URL).
		Int("listings", len(listings)).
		Msg("Enumerated API source")
	return listings, nil
}

func (s *APIScraper) FetchJob(ctx context.Context, rawURL string) (*models.JobRecord, error) {
	body, contentType, err := s.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	// Posting pages linked from JSON APIs are usually HTML
	if !strings.Contains(contentType, "json") {
		title, text := extractPageText(body)
		if title == "" && text == "" {
			return nil, fmt.Errorf("page at %s yielded no content", rawURL)
		}
		return &models.JobRecord{
			URL:         rawURL,
			Title:       title,
			Description: text,
			Remote:      strings.Contains(strings.ToLower(text), "remote"),
			SourceType:  models.SourceTypeAPI,
		}, nil
	}

	var posting apiPosting
	if err := json.Unmarshal(body, &posting); err != nil {
		return nil, fmt.Errorf("failed to decode posting at %s: %w", rawURL, err)
	}
	if posting.title() == "" {
		return nil, fmt.Errorf("posting at %s carries no title", rawURL)
	}

	return &models.JobRecord{
		URL:         rawURL,
		Title:       posting.title(),
		CompanyName: posting.company(),
		Location:    posting.Location,
		Remote:      strings.Contains(strings.ToLower(posting.Location+" "+posting.Description), "remote"),
		Description: posting.Description,
		SourceType:  models.SourceTypeAPI,
	}, nil
}
