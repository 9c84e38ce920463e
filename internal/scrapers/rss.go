package scrapers

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// RSSScraper reads job feeds in RSS 2.0 or Atom form
type RSSScraper struct {
	fetcher interfaces.Fetcher
	logger  arbor.ILogger
}

func NewRSSScraper(fetcher interfaces.Fetcher, logger arbor.ILogger) *RSSScraper {
	return &RSSScraper{fetcher: fetcher, logger: logger}
}

func (s *RSSScraper) Type() models.SourceType {
	return models.SourceTypeRSS
}

type rssFeed struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom entries sit at the document root
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	Title string `xml:"title"`
	Link  struct {
		Href string `xml:"href,attr"`
	} `xml:"link"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
}

// ParseFeed decodes an RSS or Atom document into listings
func ParseFeed(body []byte, companyHint string) ([]models.Listing, error) {
	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var listings []models.Listing
	for _, item := range feed.Channel.Items {
		link := strings.TrimSpace(item.Link)
		if link == "" {
			continue
		}
		listings = append(listings, models.Listing{
			URL:         link,
			Title:       strings.TrimSpace(item.Title),
			CompanyHint: companyHint,
		})
	}
	for _, entry := range feed.Entries {
		link := strings.TrimSpace(entry.Link.Href)
		if link == "" {
			continue
		}
		listings = append(listings, models.Listing{
			URL:         link,
			Title:       strings.TrimSpace(entry.Title),
			CompanyHint: companyHint,
		})
	}

	if len(listings) == 0 {
		return nil, fmt.Errorf("feed contains no linked items")
	}
	return listings, nil
}

func (s *RSSScraper) ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error) {
	body, _, err := s.fetcher.Get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	listings, err := ParseFeed(body, source.CompanyName)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.URL, err)
	}

	s.logger.Debug().
		Str("url", source.URL).
		Int("listings", len(listings)).
		Msg("Enumerated RSS feed")
	return listings, nil
}

// FetchJob for feed items falls back to fetching the linked page as
// HTML; most feeds only carry a summary.
func (s *RSSScraper) FetchJob(ctx context.Context, rawURL string) (*models.JobRecord, error) {
	body, _, err := s.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title, text := extractPageText(body)
	if title == "" && text == "" {
		return nil, fmt.Errorf("feed item at %s yielded no content", rawURL)
	}

	record := &models.JobRecord{
		URL:         rawURL,
		Title:       title,
		Description: text,
		Remote:      strings.Contains(strings.ToLower(text), "remote"),
		SourceType:  models.SourceTypeRSS,
	}
	return record, nil
}
