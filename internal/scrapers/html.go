package scrapers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// HTMLScraper enumerates generic career pages using the per-source CSS
// selector configuration.
type HTMLScraper struct {
	fetcher interfaces.Fetcher
	logger  arbor.ILogger
}

func NewHTMLScraper(fetcher interfaces.Fetcher, logger arbor.ILogger) *HTMLScraper {
	return &HTMLScraper{fetcher: fetcher, logger: logger}
}

func (s *HTMLScraper) Type() models.SourceType {
	return models.SourceTypeHTML
}

// ParseListings applies the selector config to a fetched page. Relative
// links are resolved against the page URL.
func ParseListings(body []byte, pageURL string, selectors models.SelectorConfig) ([]models.Listing, error) {
	if selectors.List == "" {
		return nil, fmt.Errorf("html source requires a list selector")
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing page: %w", err)
	}

	var listings []models.Listing
	doc.Find(selectors.List).Each(func(_ int, el *goquery.Selection) {
		link := el
		if selectors.Link != "" {
			link = el.Find(selectors.Link).First()
		}
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil {
			return
		}

		title := strings.TrimSpace(el.Text())
		if selectors.Title != "" {
			title = strings.TrimSpace(el.Find(selectors.Title).First().Text())
		}

		var companyHint string
		if selectors.Company != "" {
			companyHint = strings.TrimSpace(el.Find(selectors.Company).First().Text())
		}

		listings = append(listings, models.Listing{
			URL:         resolved.String(),
			Title:       title,
			CompanyHint: companyHint,
		})
	})

	return listings, nil
}

func (s *HTMLScraper) ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error) {
	body, _, err := s.fetcher.Get(ctx, source.URL)
	if err != nil {
		return nil, err
	}

	listings, err := ParseListings(body, source.URL, source.Selectors)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", source.URL, err)
	}
	for i := range listings {
		if listings[i].CompanyHint == "" {
			listings[i].CompanyHint = source.CompanyName
		}
	}

	s.logger.Debug().
		Str("url", source.URL).
		Int("listings", len(listings)).
		Msg("Enumerated HTML source")
	return listings, nil
}

func (s *HTMLScraper) FetchJob(ctx context.Context, rawURL string) (*models.JobRecord, error) {
	body, _, err := s.fetcher.Get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	title, text := extractPageText(body)
	if title == "" && text == "" {
		return nil, fmt.Errorf("page at %s yielded no content", rawURL)
	}

	return &models.JobRecord{
		URL:         rawURL,
		Title:       title,
		Description: text,
		Remote:      strings.Contains(strings.ToLower(text), "remote"),
		SourceType:  models.SourceTypeHTML,
	}, nil
}

// extractPageText pulls a page title and body text with chrome removed
func extractPageText(body []byte) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		title = h1
	}

	doc.Find("script, style, nav, footer, header, noscript").Remove()
	text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	return title, text
}
