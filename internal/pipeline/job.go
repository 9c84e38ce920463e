package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ternarybob/venari/internal/interfaces"
	"github.com/ternarybob/venari/internal/models"
	"github.com/ternarybob/venari/internal/scrapers"
)

// ---------------------------------------------------------------------
// JOB pipeline: scrape -> filter -> analyze -> save
// ---------------------------------------------------------------------

func (e *Engine) jobScrape(ctx context.Context, item *models.WorkItem) error {
	scraper := e.scraperForURL(item.URL)
	record, err := scraper.FetchJob(ctx, item.URL)
	if err != nil {
		return fmt.Errorf("job scrape failed: %w", err)
	}
	if record.URL == "" {
		record.URL = item.URL
	}

	if err := item.SetState(models.StateJobData, record); err != nil {
		return err
	}
	e.logger.Info().
		Str("item_id", item.ID).
		Str("title", record.Title).
		Str("company", record.CompanyName).
		Msg("Job scraped")
	return nil
}

// scraperForURL picks the extractor for a posting URL; unrecognized
// hosts fall back to the generic HTML scraper.
func (e *Engine) scraperForURL(rawURL string) interfaces.Scraper {
	sourceType := models.SourceTypeHTML
	if detection, ok := scrapers.DetectByURL(rawURL); ok {
		sourceType = detection.Type
	}
	scraper, ok := e.scrapers.For(sourceType)
	if !ok {
		scraper, _ = e.scrapers.For(models.SourceTypeHTML)
	}
	return scraper
}

func (e *Engine) jobFilter(ctx context.Context, item *models.WorkItem) error {
	var record models.JobRecord
	if ok, err := item.GetState(models.StateJobData, &record); err != nil || !ok {
		return fmt.Errorf("filter stage requires job data: %w", err)
	}

	result := e.filterEngine().Evaluate(&record)
	if err := item.SetState(models.StateFilterResult, result); err != nil {
		return err
	}

	if !result.Passed {
		item.MarkFiltered(result.Reason)
		e.logger.Info().
			Str("item_id", item.ID).
			Int("strikes", result.Strikes).
			Bool("hard_reject", result.HardReject).
			Str("reason", result.Reason).
			Msg("Job filtered")
		return nil
	}

	e.logger.Debug().
		Str("item_id", item.ID).
		Int("strikes", result.Strikes).
		Msg("Job passed filter")
	return nil
}

// classification is the cheap-tier output enriching the scraped record
type classification struct {
	Seniority string   `json:"seniority"`
	RoleType  string   `json:"role_type"`
	Skills    []string `json:"skills"`
}

// scoring is the medium/expensive-tier output
type scoring struct {
	Score         int      `json:"score"`
	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
	Summary       string   `json:"summary"`
	Highlights    []string `json:"highlights"`
	Keywords      []string `json:"keywords"`
}

func (e *Engine) jobAnalyze(ctx context.Context, item *models.WorkItem) error {
	var record models.JobRecord
	if ok, err := item.GetState(models.StateJobData, &record); err != nil || !ok {
		return fmt.Errorf("analyze stage requires job data: %w", err)
	}
	var filterResult models.FilterResult
	if ok, err := item.GetState(models.StateFilterResult, &filterResult); err != nil || !ok {
		return fmt.Errorf("analyze stage requires filter result: %w", err)
	}

	cfg := e.config.Current()

	// Cheap tier: classification fills gaps the extractor left
	if record.Seniority == "" || record.RoleType == "" || len(record.Skills) == 0 {
		classified, err := e.classifyJob(ctx, &record)
		if err != nil {
			e.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Classification failed, scoring raw record")
		} else {
			if record.Seniority == "" {
				record.Seniority = classified.Seniority
			}
			if record.RoleType == "" {
				record.RoleType = classified.RoleType
			}
			if len(record.Skills) == 0 {
				record.Skills = classified.Skills
			}
		}
	}

	companyContext := e.companyContext(ctx, record.CompanyName)

	// Medium tier: scoring against the user profile
	scored, err := e.scoreJob(ctx, &record, companyContext, interfaces.TierMedium)
	if err != nil {
		return fmt.Errorf("job scoring failed: %w", err)
	}

	minScore := cfg.AI.Thresholds.MinMatchScore
	band := cfg.AI.Thresholds.RescoreBand

	result := models.MatchResult{
		Score:            scored.Score,
		PreliminaryScore: scored.Score,
		Strikes:          filterResult.Strikes,
		MatchedSkills:    scored.MatchedSkills,
		MissingSkills:    scored.MissingSkills,
		ResumeIntake: models.ResumeIntake{
			Summary:    scored.Summary,
			Highlights: scored.Highlights,
			Keywords:   scored.Keywords,
		},
		AnalyzedAt: time.Now(),
	}

	// Expensive tier only when the preliminary score sits inside the
	// rescore band around the threshold
	delta := scored.Score - minScore
	if delta < 0 {
		delta = -delta
	}
	if delta <= band {
		rescored, err := e.scoreJob(ctx, &record, companyContext, interfaces.TierExpensive)
		if err != nil {
			e.logger.Warn().Err(err).Str("item_id", item.ID).Msg("Rescore failed, keeping preliminary score")
		} else {
			result.Score = rescored.Score
			result.Rescored = true
			if len(rescored.MatchedSkills) > 0 {
				result.MatchedSkills = rescored.MatchedSkills
				result.MissingSkills = rescored.MissingSkills
			}
		}
	}

	if err := item.SetState(models.StateMatchResult, result); err != nil {
		return err
	}

	if result.Score < minScore {
		item.MarkSkipped(fmt.Sprintf("score %d below minimum %d", result.Score, minScore))
		e.logger.Info().
			Str("item_id", item.ID).
			Int("score", result.Score).
			Msg("Job skipped on low score")
		return nil
	}

	e.logger.Info().
		Str("item_id", item.ID).
		Int("score", result.Score).
		Bool("rescored", result.Rescored).
		Msg("Job analyzed")
	return nil
}

func (e *Engine) classifyJob(ctx context.Context, record *models.JobRecord) (*classification, error) {
	prompt := fmt.Sprintf(
		"Classify this job posting.\n\nTitle: %s\nCompany: %s\nLocation: %s\n\nDescription:\n%s",
		record.Title, record.CompanyName, record.Location, truncate(record.Description, 6000))

	schema := map[string]interface{}{
		"type":     "object",
		"required": []string{"seniority", "role_type", "skills"},
		"properties": map[string]interface{}{
			"seniority": map[string]interface{}{"type": "string", "enum": []string{"junior", "mid", "senior", "staff", "principal"}},
			"role_type": map[string]interface{}{"type": "string", "enum": []string{"permanent", "contract"}},
			"skills":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	}

	raw, err := e.ai.Analyze(ctx, prompt, interfaces.TierCheap, schema)
	if err != nil {
		return nil, err
	}
	var result classification
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode classification: %w", err)
	}
	return &result, nil
}

func (e *Engine) scoreJob(ctx context.Context, record *models.JobRecord, companyContext string, tier interfaces.Tier) (*scoring, error) {
	prompt := fmt.Sprintf(
		"Score how well this job matches the candidate profile, 0-100.\n\n"+
			"Candidate profile:\n%s\n\nJob:\nTitle: %s\nCompany: %s\nLocation: %s\nRemote: %t\nSeniority: %s\n\nDescription:\n%s\n\nCompany context:\n%s\n\n"+
			"Also produce matched and missing skills and a short resume-tailoring block (summary, highlights, keywords).",
		e.profileText(), record.Title, record.CompanyName, record.Location, record.Remote,
		record.Seniority, truncate(record.Description, 6000), companyContext)

	schema := map[string]interface{}{
		"type":     "object",
		"required": []string{"score", "matched_skills", "missing_skills"},
		"properties": map[string]interface{}{
			"score":          map[string]interface{}{"type": "integer", "minimum": float64(0), "maximum": float64(100)},
			"matched_skills": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"missing_skills": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"summary":        map[string]interface{}{"type": "string"},
			"highlights":     map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"keywords":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	}

	raw, err := e.ai.Analyze(ctx, prompt, tier, schema)
	if err != nil {
		return nil, err
	}
	var result scoring
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to decode scoring: %w", err)
	}
	return &result, nil
}

// profileText renders the configured preferences as prompt context
func (e *Engine) profileText() string {
	cfg := e.config.Current().Filter

	skills := make([]string, 0, len(cfg.TechRanks))
	for skill := range cfg.TechRanks {
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool {
		if cfg.TechRanks[skills[i]] != cfg.TechRanks[skills[j]] {
			return cfg.TechRanks[skills[i]] > cfg.TechRanks[skills[j]]
		}
		return skills[i] < skills[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "Target seniority: %s\n", cfg.TargetSeniority)
	fmt.Fprintf(&b, "Target role type: %s\n", cfg.TargetRoleType)
	fmt.Fprintf(&b, "Ranked skills (highest priority first): %s\n", strings.Join(skills, ", "))
	if len(cfg.AllowedRegions) > 0 {
		fmt.Fprintf(&b, "Acceptable locations: remote, or %s\n", strings.Join(cfg.AllowedRegions, ", "))
	}
	return b.String()
}

// companyContext renders what is already known about the company
func (e *Engine) companyContext(ctx context.Context, companyName string) string {
	if companyName == "" {
		return "(none)"
	}
	company, err := e.storage.Companies().GetByNormalizedName(ctx, models.NormalizeCompanyName(companyName))
	if err != nil || company == nil {
		return "(none)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Tier %s (score %d).", company.Tier, company.PriorityScore)
	if company.About != "" {
		fmt.Fprintf(&b, " About: %s", truncate(company.About, 1000))
	}
	if len(company.TechStack) > 0 {
		fmt.Fprintf(&b, " Tech stack: %s.", strings.Join(company.TechStack, ", "))
	}
	return b.String()
}

func (e *Engine) jobSave(ctx context.Context, item *models.WorkItem) error {
	var record models.JobRecord
	if ok, err := item.GetState(models.StateJobData, &record); err != nil || !ok {
		return fmt.Errorf("save stage requires job data: %w", err)
	}
	var result models.MatchResult
	if ok, err := item.GetState(models.StateMatchResult, &result); err != nil || !ok {
		return fmt.Errorf("save stage requires match result: %w", err)
	}

	// Company may complete before or after this save; an unknown company
	// gets a provisional empty ref and a spawned COMPANY item.
	companyRef := ""
	normalized := models.NormalizeCompanyName(record.CompanyName)
	if normalized != "" {
		company, err := e.storage.Companies().GetByNormalizedName(ctx, normalized)
		if err != nil {
			return fmt.Errorf("company lookup failed: %w", err)
		}
		if company != nil {
			companyRef = company.ID
		}
	}

	now := time.Now()
	match := &models.JobMatch{
		URL:           record.URL,
		URLHash:       item.URLHash,
		Title:         record.Title,
		CompanyName:   record.CompanyName,
		CompanyRef:    companyRef,
		Location:      record.Location,
		Remote:        record.Remote,
		Score:         result.Score,
		StrikeCount:   result.Strikes,
		MatchedSkills: result.MatchedSkills,
		MissingSkills: result.MissingSkills,
		ResumeIntake:  result.ResumeIntake,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.storage.Matches().Save(ctx, match); err != nil {
		return fmt.Errorf("failed to save job match: %w", err)
	}

	if err := item.SetState(models.StateSavedRef, map[string]string{"match_id": match.ID, "company_ref": companyRef}); err != nil {
		return err
	}

	if companyRef == "" && record.CompanyName != "" {
		if target := companySpawnTarget(&record); target != "" {
			if _, err := e.spawnChild(ctx, item, target, models.ItemTypeCompany); err != nil {
				return err
			}
		}
	}

	item.MarkSuccess(fmt.Sprintf("job match saved with score %d", result.Score))
	e.logger.Info().
		Str("item_id", item.ID).
		Str("match_id", match.ID).
		Int("score", result.Score).
		Msg("Job match saved")
	return nil
}

// companySpawnTarget picks the URL a COMPANY item should investigate.
// A posting on a hosted board (greenhouse, workday) has no usable site
// root: fetching the board host would profile the board, not the
// company, so without an explicit website there is nothing to spawn.
func companySpawnTarget(record *models.JobRecord) string {
	if record.CompanyWebsite != "" {
		return record.CompanyWebsite
	}
	if _, hosted := scrapers.DetectByURL(record.URL); hosted {
		return ""
	}
	return siteRoot(record.URL)
}

// siteRoot reduces a URL to its scheme://host root
func siteRoot(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
