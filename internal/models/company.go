package models

import (
	"regexp"
	"strings"
	"time"
)

// Tier is a coarse company priority band derived from PriorityScore
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

// Company is the upserted company document, keyed by normalized name
type Company struct {
	ID             string `json:"id" badgerhold:"key"`
	Name           string `json:"name"`
	NormalizedName string `json:"normalized_name" badgerhold:"index"`
	Website        string `json:"website,omitempty"`

	About   string `json:"about,omitempty"`
	Culture string `json:"culture,omitempty"`
	Mission string `json:"mission,omitempty"`

	TechStack  []string `json:"tech_stack,omitempty"`
	Size       int      `json:"size,omitempty"` // Inferred headcount, 0 when unknown
	Industry   string   `json:"industry,omitempty"`
	Founded    int      `json:"founded,omitempty"`
	HQLocation string   `json:"hq_location,omitempty"`

	JobBoardHint string `json:"job_board_hint,omitempty"` // Candidate board URL for source discovery

	Tier          Tier `json:"tier"`
	PriorityScore int  `json:"priority_score"` // 0-100+, capped at 100 before banding

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var companySuffixes = regexp.MustCompile(`\b(inc|llc|ltd|corp|corporation|co|gmbh|plc)\.?$`)
var nonAlnum = regexp.MustCompile(`[^a-z0-9 ]+`)

// NormalizeCompanyName canonicalizes a company name for dedup: lowercase,
// punctuation stripped, trailing legal suffixes removed, whitespace
// collapsed. Suffixes stack ("Acme Corp, Inc."), so stripping repeats
// until the name stops changing.
func NormalizeCompanyName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = nonAlnum.ReplaceAllString(n, " ")
	n = strings.Join(strings.Fields(n), " ")
	for {
		stripped := strings.TrimSpace(companySuffixes.ReplaceAllString(n, ""))
		if stripped == n {
			return n
		}
		n = stripped
	}
}

// TierForScore bands a priority score: S>=90, A 70-89, B 50-69, C 30-49, D<30
func TierForScore(score int) Tier {
	switch {
	case score >= 90:
		return TierS
	case score >= 70:
		return TierA
	case score >= 50:
		return TierB
	case score >= 30:
		return TierC
	default:
		return TierD
	}
}

// TierRank orders tiers for rotation: smaller is better
func TierRank(t Tier) int {
	switch t {
	case TierS:
		return 0
	case TierA:
		return 1
	case TierB:
		return 2
	case TierC:
		return 3
	default:
		return 4
	}
}
