package scrapers

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// GreenhouseScraper reads Greenhouse boards through the public boards
// API; individual postings fall back to HTML when the API URL form is
// not recognizable.
type GreenhouseScraper struct {
	fetcher interfaces.Fetcher
	logger  arbor.ILogger
}

func NewGreenhouseScraper(fetcher interfaces.Fetcher, logger arbor.ILogger) *GreenhouseScraper {
	return &GreenhouseScraper{fetcher: fetcher, logger: logger}
}

func (s *GreenhouseScraper) Type() models.SourceType {
	return models.SourceTypeGreenhouse
}

// greenhouseJob is the boards API shape for one posting
type greenhouseJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	AbsoluteURL string `json:"absolute_url"`
	Content     string `json:"content"`
	UpdatedAt   string `json:"updated_at"`
	Location    struct {
		Name string `json:"name"`
	} `json:"location"`
}

type greenhouseJobList struct {
	Jobs []greenhouseJob `json:"jobs"`
}

// ParseBoardToken extracts the board token from a Greenhouse URL, e.g.
// https://boards.greenhouse.io/stripe/jobs/123 -> "stripe".
func ParseBoardToken(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid greenhouse URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if host != "boards.greenhouse.io" && host != "job-boards.greenhouse.io" && host != "boards-api.greenhouse.io" {
		return "", fmt.Errorf("not a greenhouse board URL: %s", rawURL)
	}

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	// API form: /v1/boards/<token>/...
	if len(segments) >= 3 && segments[0] == "v1" && segments[1] == "boards" {
		return segments[2], nil
	}
	if len(segments) == 0 || segments[0] == "" {
		return "", fmt.Errorf("greenhouse URL carries no board token: %s", rawURL)
	}
	return segments[0], nil
}

func (s *GreenhouseScraper) ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error) {
	token := source.BoardToken
	if token == "" {
		parsed, err := ParseBoardToken(source.URL)
		if err != nil {
			return nil, err
		}
		token = parsed
	}

	apiURL := fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs", token)
	body, _, err := s.fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var list greenhouseJobList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("failed to decode greenhouse board %s: %w", token, err)
	}

	listings := make([]models.Listing, 0, len(list.Jobs))
	for _, job := range list.Jobs {
		if job.AbsoluteURL == "" {
			continue
		}
		listings = append(listings, models.Listing{
			URL:         job.AbsoluteURL,
			Title:       job.Title,
			CompanyHint: source.CompanyName,
		})
	}

	s.logger.Debug().
		Str("board", token).
		Int("listings", len(listings)).
		Msg("Enumerated greenhouse board")
	return listings, nil
}

func (s *GreenhouseScraper) FetchJob(ctx context.Context, rawURL string) (*models.JobRecord, error) {
	token, jobID, err := parseJobURL(rawURL)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs/%s", token, jobID)
	body, _, err := s.fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var job greenhouseJob
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("failed to decode greenhouse job %s: %w", jobID, err)
	}

	record := &models.JobRecord{
		URL:         rawURL,
		Title:       job.Title,
		CompanyName: token,
		Location:    job.Location.Name,
		Remote:      strings.Contains(strings.ToLower(job.Location.Name), "remote"),
		Description: stripHTML(job.Content),
		SourceType:  models.SourceTypeGreenhouse,
	}
	if ts, err := time.Parse(time.RFC3339, job.UpdatedAt); err == nil {
		record.PostedAt = &ts
	}
	return record, nil
}

// parseJobURL splits a posting URL into (board token, job id), e.g.
// https://boards.greenhouse.io/stripe/jobs/123 -> ("stripe", "123").
func parseJobURL(rawURL string) (string, string, error) {
	token, err := ParseBoardToken(rawURL)
	if err != nil {
		return "", "", err
	}

	parsed, _ := url.Parse(rawURL)
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	for i, segment := range segments {
		if segment == "jobs" && i+1 < len(segments) {
			return token, segments[i+1], nil
		}
	}
	return "", "", fmt.Errorf("greenhouse URL carries no job id: %s", rawURL)
}

// stripHTML flattens job description markup to plain text. Greenhouse
// double-encodes entities in the boards API content field.
func stripHTML(content string) string {
	unescaped := html.UnescapeString(content)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(unescaped))
	if err != nil {
		return unescaped
	}
	return strings.TrimSpace(doc.Text())
}
