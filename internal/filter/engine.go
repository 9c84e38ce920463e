// Package filter implements the two-tier strike filter that gates job
// records before any AI spend. Tier 1 rules reject outright; tier 2
// rules accumulate weighted strikes against a threshold.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/models"
)

const (
	weightLocation  = 3
	weightSeniority = 2
	weightSize      = 1
	weightRoleType  = 2
)

// Engine evaluates job records against the configured rules. Evaluation
// is pure: the same record and config always produce the same result,
// and no external service is consulted.
type Engine struct {
	config common.FilterConfig
}

func NewEngine(config common.FilterConfig) *Engine {
	return &Engine{config: config}
}

// Evaluate runs tier-1 hard rules then tier-2 strike accumulation.
// The result always carries the full rule trace for diagnostics.
func (e *Engine) Evaluate(record *models.JobRecord) models.FilterResult {
	result := models.FilterResult{
		Threshold: e.config.StrikeThreshold,
	}

	if hit, ok := e.hardReject(record); ok {
		result.HardReject = true
		result.Trace = append(result.Trace, hit)
		result.Reason = hit.Detail
		return result
	}

	result.Trace = append(result.Trace, e.strikeHits(record)...)
	for _, hit := range result.Trace {
		result.Strikes += hit.Weight
	}

	if result.Strikes >= e.config.StrikeThreshold {
		result.Reason = fmt.Sprintf("%d strikes at threshold %d", result.Strikes, e.config.StrikeThreshold)
		return result
	}

	result.Passed = true
	return result
}

// ---------------------------------------------------------------------
// Tier 1
// ---------------------------------------------------------------------

func (e *Engine) hardReject(record *models.JobRecord) (models.RuleHit, bool) {
	normalized := models.NormalizeCompanyName(record.CompanyName)
	for _, stopped := range e.config.StopList {
		if normalized == models.NormalizeCompanyName(stopped) {
			return models.RuleHit{
				Rule:     "stop_list",
				Category: "hard",
				Detail:   fmt.Sprintf("company %q is on the stop list", record.CompanyName),
			}, true
		}
	}

	haystack := strings.ToLower(record.Title + " " + record.Description)
	for _, token := range e.config.BlockTokens {
		if token == "" {
			continue
		}
		if strings.Contains(haystack, strings.ToLower(token)) {
			return models.RuleHit{
				Rule:     "block_token",
				Category: "hard",
				Detail:   fmt.Sprintf("blocked token %q in title or description", token),
			}, true
		}
	}

	if e.config.HardLocation && !e.locationAcceptable(record) {
		return models.RuleHit{
			Rule:     "location_required",
			Category: "hard",
			Detail:   fmt.Sprintf("location %q fails the required location clause", record.Location),
		}, true
	}

	return models.RuleHit{}, false
}

// ---------------------------------------------------------------------
// Tier 2
// ---------------------------------------------------------------------

func (e *Engine) strikeHits(record *models.JobRecord) []models.RuleHit {
	var hits []models.RuleHit

	if !e.locationAcceptable(record) {
		hits = append(hits, models.RuleHit{
			Rule:     "location_mismatch",
			Category: "location",
			Weight:   weightLocation,
			Detail:   fmt.Sprintf("not remote and %q is not an allowed region", record.Location),
		})
	}

	if e.config.TargetSeniority != "" && record.Seniority != "" &&
		!strings.EqualFold(record.Seniority, e.config.TargetSeniority) {
		hits = append(hits, models.RuleHit{
			Rule:     "seniority_mismatch",
			Category: "seniority",
			Weight:   weightSeniority,
			Detail:   fmt.Sprintf("seniority %q, target %q", record.Seniority, e.config.TargetSeniority),
		})
	}

	hits = append(hits, e.missingSkillHits(record)...)

	if record.CompanySize > 0 {
		if (e.config.CompanySizeMin > 0 && record.CompanySize < e.config.CompanySizeMin) ||
			(e.config.CompanySizeMax > 0 && record.CompanySize > e.config.CompanySizeMax) {
			hits = append(hits, models.RuleHit{
				Rule:     "company_size",
				Category: "company_size",
				Weight:   weightSize,
				Detail:   fmt.Sprintf("company size %d outside preferred band", record.CompanySize),
			})
		}
	}

	if e.config.TargetRoleType != "" && record.RoleType != "" &&
		!strings.EqualFold(record.RoleType, e.config.TargetRoleType) {
		hits = append(hits, models.RuleHit{
			Rule:     "role_type_mismatch",
			Category: "role_type",
			Weight:   weightRoleType,
			Detail:   fmt.Sprintf("role type %q, target %q", record.RoleType, e.config.TargetRoleType),
		})
	}

	return hits
}

// missingSkillHits strikes once per missing ranked skill, weight clamped
// to 1-3 from the configured rank.
func (e *Engine) missingSkillHits(record *models.JobRecord) []models.RuleHit {
	if len(e.config.TechRanks) == 0 {
		return nil
	}

	present := make(map[string]bool, len(record.Skills))
	for _, skill := range record.Skills {
		present[strings.ToLower(strings.TrimSpace(skill))] = true
	}
	description := strings.ToLower(record.Description)

	skills := make([]string, 0, len(e.config.TechRanks))
	for skill := range e.config.TechRanks {
		skills = append(skills, skill)
	}
	sort.Strings(skills)

	var hits []models.RuleHit
	for _, skill := range skills {
		rank := e.config.TechRanks[skill]
		lower := strings.ToLower(skill)
		if present[lower] || strings.Contains(description, lower) {
			continue
		}
		weight := rank
		if weight < 1 {
			weight = 1
		}
		if weight > 3 {
			weight = 3
		}
		hits = append(hits, models.RuleHit{
			Rule:     "missing_skill",
			Category: "technology",
			Weight:   weight,
			Detail:   fmt.Sprintf("ranked skill %q not present", skill),
		})
	}
	return hits
}

func (e *Engine) locationAcceptable(record *models.JobRecord) bool {
	if record.Remote {
		return true
	}
	if len(e.config.AllowedRegions) == 0 {
		return false
	}
	location := strings.ToLower(record.Location)
	for _, region := range e.config.AllowedRegions {
		if region != "" && strings.Contains(location, strings.ToLower(region)) {
			return true
		}
	}
	return false
}
