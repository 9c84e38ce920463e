package scrapers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// WorkdayScraper reads myworkdayjobs.com boards through the public
// cxs JSON endpoint.
type WorkdayScraper struct {
	fetcher interfaces.Fetcher
	logger  arbor.ILogger
}

func NewWorkdayScraper(fetcher interfaces.Fetcher, logger arbor.ILogger) *WorkdayScraper {
	return &WorkdayScraper{fetcher: fetcher, logger: logger}
}

func (s *WorkdayScraper) Type() models.SourceType {
	return models.SourceTypeWorkday
}

// workdayPosting is the cxs API shape for one listed posting
type workdayPosting struct {
	Title         string `json:"title"`
	ExternalPath  string `json:"externalPath"`
	LocationsText string `json:"locationsText"`
	PostedOn      string `json:"postedOn"`
}

type workdayJobList struct {
	JobPostings []workdayPosting `json:"jobPostings"`
	Total       int              `json:"total"`
}

// workdayBoard describes the pieces of a workday URL needed to build
// API endpoints: https://<tenant>.<dc>.myworkdayjobs.com/<site>/...
type workdayBoard struct {
	Tenant string
	Host   string
	Site   string
}

// ParseWorkdayBoard extracts tenant, host, and site from a board URL
func ParseWorkdayBoard(rawURL string) (workdayBoard, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return workdayBoard{}, fmt.Errorf("invalid workday URL: %w", err)
	}
	host := strings.ToLower(parsed.Hostname())
	if !strings.HasSuffix(host, ".myworkdayjobs.com") {
		return workdayBoard{}, fmt.Errorf("not a workday board URL: %s", rawURL)
	}
	tenant := strings.SplitN(host, ".", 2)[0]

	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return workdayBoard{}, fmt.Errorf("workday URL carries no site path: %s", rawURL)
	}
	site := segments[0]
	// Localized boards insert a locale segment, e.g. /en-US/<site>
	if len(segments) > 1 && len(site) == 5 && site[2] == '-' {
		site = segments[1]
	}

	return workdayBoard{Tenant: tenant, Host: host, Site: site}, nil
}

func (s *WorkdayScraper) ListJobs(ctx context.Context, source *models.Source) ([]models.Listing, error) {
	board, err := ParseWorkdayBoard(source.URL)
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("https://%s/wday/cxs/%s/%s/jobs", board.Host, board.Tenant, board.Site)
	body, _, err := s.fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var list workdayJobList
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&list); err != nil {
		return nil, fmt.Errorf("failed to decode workday board %s: %w", board.Tenant, err)
	}

	listings := make([]models.Listing, 0, len(list.JobPostings))
	for _, posting := range list.JobPostings {
		if posting.ExternalPath == "" {
			continue
		}
		listings = append(listings, models.Listing{
			URL:         fmt.Sprintf("https://%s/%s%s", board.Host, board.Site, posting.ExternalPath),
			Title:       posting.Title,
			CompanyHint: source.CompanyName,
		})
	}

	s.logger.Debug().
		Str("tenant", board.Tenant).
		Int("listings", len(listings)).
		Msg("Enumerated workday board")
	return listings, nil
}

// workdayJobDetail is the cxs API shape for one posting page
type workdayJobDetail struct {
	JobPostingInfo struct {
		Title          string `json:"title"`
		JobDescription string `json:"jobDescription"`
		Location       string `json:"location"`
		StartDate      string `json:"startDate"`
		TimeType       string `json:"timeType"`
	} `json:"jobPostingInfo"`
}

func (s *WorkdayScraper) FetchJob(ctx context.Context, rawURL string) (*models.JobRecord, error) {
	board, err := ParseWorkdayBoard(rawURL)
	if err != nil {
		return nil, err
	}

	parsed, _ := url.Parse(rawURL)
	path := strings.TrimPrefix(parsed.Path, "/"+board.Site)
	apiURL := fmt.Sprintf("https://%s/wday/cxs/%s/%s%s", board.Host, board.Tenant, board.Site, path)

	body, _, err := s.fetcher.Get(ctx, apiURL)
	if err != nil {
		return nil, err
	}

	var detail workdayJobDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, fmt.Errorf("failed to decode workday job: %w", err)
	}
	info := detail.JobPostingInfo
	if info.Title == "" {
		return nil, fmt.Errorf("workday job at %s has no posting info", rawURL)
	}

	record := &models.JobRecord{
		URL:         rawURL,
		Title:       info.Title,
		CompanyName: board.Tenant,
		Location:    info.Location,
		Remote:      strings.Contains(strings.ToLower(info.Location), "remote"),
		Description: stripHTML(info.JobDescription),
		SourceType:  models.SourceTypeWorkday,
	}
	if ts, err := time.Parse("2006-01-02", info.StartDate); err == nil {
		record.PostedAt = &ts
	}
	return record, nil
}
