package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
)

// ---------------------------------------------------------------------
// COMPANY pipeline: fetch -> extract -> analyze -> save
// ---------------------------------------------------------------------

// companyCandidatePaths are tried in order against the company website
var companyCandidatePaths = []string{"/about", "/about-us", "/company", "/careers", ""}

// rawPages holds fetched page HTML keyed by candidate path
type rawPages map[string]string

func (e *Engine) companyFetch(ctx context.Context, item *models.WorkItem) error {
	base := strings.TrimRight(item.URL, "/")
	budget := e.config.Current().Scraper.CompanyFetchBudgetDuration()

	pages := make(rawPages)
	for _, path := range companyCandidatePaths {
		candidate := base + path

		pageCtx, cancel := context.WithTimeout(ctx, budget)
		body, _, err := e.fetcher.Get(pageCtx, candidate)
		cancel()
		if err != nil {
			e.logger.Debug().Err(err).Str("url", candidate).Msg("Company page candidate failed")
			continue
		}
		if len(body) > 0 {
			pages[path] = string(body)
		}
	}

	if len(pages) == 0 {
		return fmt.Errorf("no company page reachable under %s", base)
	}

	if err := item.SetState(models.StateRawPages, pages); err != nil {
		return err
	}
	e.logger.Info().
		Str("item_id", item.ID).
		Int("pages", len(pages)).
		Msg("Company pages fetched")
	return nil
}

// extracted is the cleaned-text output of the extract stage
type extracted struct {
	Text  string `json:"text"`
	Title string `json:"title"`
}

func (e *Engine) companyExtract(ctx context.Context, item *models.WorkItem) error {
	var pages rawPages
	if ok, err := item.GetState(models.StateRawPages, &pages); err != nil || !ok {
		return fmt.Errorf("extract stage requires raw pages: %w", err)
	}

	maxText := e.config.Current().Scraper.MaxTextSize
	converter := md.NewConverter("", true, nil)

	var title string
	var parts []string
	remaining := maxText
	for _, path := range companyCandidatePaths {
		html, ok := pages[path]
		if !ok || remaining <= 0 {
			continue
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			continue
		}
		if title == "" {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
		doc.Find("script, style, nav, footer, header, noscript, iframe, svg").Remove()

		bodyHTML, err := doc.Find("body").Html()
		if err != nil || bodyHTML == "" {
			continue
		}
		text, err := converter.ConvertString(bodyHTML)
		if err != nil {
			// Converter failure on one page degrades to plain text
			text = strings.Join(strings.Fields(doc.Find("body").Text()), " ")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if len(text) > remaining {
			text = text[:remaining]
		}
		parts = append(parts, text)
		remaining -= len(text)
	}

	if len(parts) == 0 {
		return fmt.Errorf("company pages yielded no text")
	}

	if err := item.SetState(models.StateExtracted, extracted{
		Text:  strings.Join(parts, "\n\n"),
		Title: title,
	}); err != nil {
		return err
	}
	e.logger.Debug().
		Str("item_id", item.ID).
		Msg("Company text extracted")
	return nil
}

// companyAnalysis is the analyze-stage output persisted in pipeline state
type companyAnalysis struct {
	Name         string   `json:"name"`
	About        string   `json:"about"`
	Culture      string   `json:"culture"`
	Mission      string   `json:"mission"`
	Size         int      `json:"size"`
	Industry     string   `json:"industry"`
	Founded      int      `json:"founded"`
	HQLocation   string   `json:"hq_location"`
	TechStack    []string `json:"tech_stack"`
	JobBoardHint string   `json:"job_board_hint"`
	Heuristic    bool     `json:"heuristic"` // AI unavailable, pattern-matched instead
}

func (e *Engine) companyAnalyze(ctx context.Context, item *models.WorkItem) error {
	var content extracted
	if ok, err := item.GetState(models.StateExtracted, &content); err != nil || !ok {
		return fmt.Errorf("analyze stage requires extracted text: %w", err)
	}
	var pages rawPages
	if ok, err := item.GetState(models.StateRawPages, &pages); err != nil || !ok {
		return fmt.Errorf("analyze stage requires raw pages: %w", err)
	}

	analysis, err := e.analyzeCompanyWithAI(ctx, item.URL, &content)
	if err != nil {
		e.logger.Warn().Err(err).Str("item_id", item.ID).Msg("AI company analysis failed, using heuristics")
		analysis = heuristicCompanyAnalysis(&content)
	}

	// Board hints hide in raw markup more often than in cleaned text
	if analysis.JobBoardHint == "" {
		for _, html := range pages {
			if hint := findJobBoardURL(html); hint != "" {
				analysis.JobBoardHint = hint
				break
			}
		}
	}

	if err := item.SetState(models.StateAnalysis, analysis); err != nil {
		return err
	}
	e.logger.Info().
		Str("item_id", item.ID).
		Str("name", analysis.Name).
		Bool("heuristic", analysis.Heuristic).
		Msg("Company analyzed")
	return nil
}

func (e *Engine) analyzeCompanyWithAI(ctx context.Context, website string, content *extracted) (*companyAnalysis, error) {
	prompt := fmt.Sprintf(
		"Extract structured company facts from this website text.\n\nWebsite: %s\nPage title: %s\n\nText:\n%s\n\n"+
			"Report about/culture/mission text, inferred employee count, industry, founding year, HQ location, "+
			"detected technology stack, and any job board URL mentioned (greenhouse, workday, careers feed).",
		website, content.Title, truncate(content.Text, 10000))

	schema := map[string]interface{}{
		"type":     "object",
		"required": []string{"name", "about"},
		"properties": map[string]interface{}{
			"name":           map[string]interface{}{"type": "string"},
			"about":          map[string]interface{}{"type": "string"},
			"culture":        map[string]interface{}{"type": "string"},
			"mission":        map[string]interface{}{"type": "string"},
			"size":           map[string]interface{}{"type": "integer"},
			"industry":       map[string]interface{}{"type": "string"},
			"founded":        map[string]interface{}{"type": "integer"},
			"hq_location":    map[string]interface{}{"type": "string"},
			"tech_stack":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"job_board_hint": map[string]interface{}{"type": "string"},
		},
	}

	raw, err := e.ai.Analyze(ctx, prompt, interfaces.TierMedium, schema)
	if err != nil {
		return nil, err
	}
	var analysis companyAnalysis
	if err := json.Unmarshal(raw, &analysis); err != nil {
		return nil, fmt.Errorf("failed to decode company analysis: %w", err)
	}
	return &analysis, nil
}

var (
	employeeCountRe = regexp.MustCompile(`(?i)([\d,]{2,6})\+?\s+employees`)
	foundedRe       = regexp.MustCompile(`(?i)founded\s+in\s+((?:19|20)\d{2})`)
	jobBoardRe      = regexp.MustCompile(`https?://[^\s"'<>)]*(?:boards\.greenhouse\.io|job-boards\.greenhouse\.io|myworkdayjobs\.com)[^\s"'<>)]*`)
	knownTech       = []string{"go", "golang", "python", "rust", "typescript", "react", "kubernetes", "postgres", "postgresql", "aws", "gcp", "terraform", "kafka"}
)

// heuristicCompanyAnalysis is the AI-unavailable fallback: pattern
// matching over the cleaned text.
func heuristicCompanyAnalysis(content *extracted) *companyAnalysis {
	text := content.Text
	lowered := strings.ToLower(text)

	analysis := &companyAnalysis{
		Name:      content.Title,
		About:     truncate(text, 2000),
		Heuristic: true,
	}

	if m := employeeCountRe.FindStringSubmatch(text); len(m) > 1 {
		if size, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
			analysis.Size = size
		}
	}
	if m := foundedRe.FindStringSubmatch(text); len(m) > 1 {
		if year, err := strconv.Atoi(m[1]); err == nil {
			analysis.Founded = year
		}
	}
	if m := jobBoardRe.FindString(text); m != "" {
		analysis.JobBoardHint = m
	}
	for _, tech := range knownTech {
		if strings.Contains(lowered, tech) {
			analysis.TechStack = append(analysis.TechStack, tech)
		}
	}
	return analysis
}

// findJobBoardURL scans page markup for a known job-board link
func findJobBoardURL(html string) string {
	return jobBoardRe.FindString(html)
}

func (e *Engine) companySave(ctx context.Context, item *models.WorkItem) error {
	var analysis companyAnalysis
	if ok, err := item.GetState(models.StateAnalysis, &analysis); err != nil || !ok {
		return fmt.Errorf("save stage requires analysis: %w", err)
	}

	name := analysis.Name
	if name == "" {
		name = item.URL
	}

	score := e.companyPriorityScore(&analysis)
	company := &models.Company{
		Name:           name,
		NormalizedName: models.NormalizeCompanyName(name),
		Website:        item.URL,
		About:          analysis.About,
		Culture:        analysis.Culture,
		Mission:        analysis.Mission,
		TechStack:      analysis.TechStack,
		Size:           analysis.Size,
		Industry:       analysis.Industry,
		Founded:        analysis.Founded,
		HQLocation:     analysis.HQLocation,
		JobBoardHint:   analysis.JobBoardHint,
		Tier:           models.TierForScore(score),
		PriorityScore:  score,
	}
	if err := e.storage.Companies().Upsert(ctx, company); err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}

	if err := item.SetState(models.StateSavedRef, map[string]string{"company_id": company.ID}); err != nil {
		return err
	}

	// A detected board with no enabled source gets a discovery item
	if analysis.JobBoardHint != "" {
		spawn, err := e.shouldSpawnSourceDiscovery(ctx, analysis.JobBoardHint)
		if err != nil {
			return err
		}
		if spawn {
			if _, err := e.spawnChild(ctx, item, analysis.JobBoardHint, models.ItemTypeSourceDiscovery); err != nil {
				return err
			}
		}
	}

	item.MarkSuccess(fmt.Sprintf("company %s saved at tier %s", company.Name, company.Tier))
	e.logger.Info().
		Str("item_id", item.ID).
		Str("company_id", company.ID).
		Str("tier", string(company.Tier)).
		Int("score", score).
		Msg("Company saved")
	return nil
}

// companyPriorityScore bands a company: base, HQ-in-region bonus, and
// tech-stack alignment against the ranked skill list, capped at 100.
func (e *Engine) companyPriorityScore(analysis *companyAnalysis) int {
	cfg := e.config.Current().Filter

	score := 30
	for _, region := range cfg.AllowedRegions {
		if region != "" && strings.Contains(strings.ToLower(analysis.HQLocation), strings.ToLower(region)) {
			score += 20
			break
		}
	}

	for _, tech := range analysis.TechStack {
		if rank, ok := cfg.TechRanks[strings.ToLower(tech)]; ok {
			score += rank * 10
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

func (e *Engine) shouldSpawnSourceDiscovery(ctx context.Context, boardURL string) (bool, error) {
	hash, err := common.URLHash(boardURL)
	if err != nil {
		return false, nil
	}
	existing, err := e.storage.Sources().FindByURLHash(ctx, hash)
	if err != nil {
		return false, fmt.Errorf("source lookup failed: %w", err)
	}
	return existing == nil || !existing.Enabled, nil
}
