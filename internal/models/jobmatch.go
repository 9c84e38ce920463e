package models

import (
	"time"
)

// JobRecord is the normalized output of scraping a single job posting
type JobRecord struct {
	URL            string     `json:"url"`
	Title          string     `json:"title"`
	CompanyName    string     `json:"company_name"`
	CompanyWebsite string     `json:"company_website,omitempty"`
	CompanySize    int        `json:"company_size,omitempty"` // 0 when unknown
	Location       string     `json:"location,omitempty"`
	Remote         bool       `json:"remote"`
	Seniority      string     `json:"seniority,omitempty"` // e.g. "junior", "mid", "senior", "staff"
	RoleType       string     `json:"role_type,omitempty"` // "permanent" or "contract"
	Description    string     `json:"description,omitempty"`
	Skills         []string   `json:"skills,omitempty"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	SourceType     SourceType `json:"source_type,omitempty"`
}

// Listing is a single entry enumerated from a source's job board
type Listing struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	CompanyHint string `json:"company_hint,omitempty"`
}

// RuleHit records one triggered filter rule for diagnostics
type RuleHit struct {
	Rule     string `json:"rule"`
	Category string `json:"category"` // "hard", "location", "seniority", "technology", "company_size", "role_type"
	Weight   int    `json:"weight"`
	Detail   string `json:"detail,omitempty"`
}

// FilterResult is the two-tier filter decision plus its rule trace
type FilterResult struct {
	Passed     bool      `json:"passed"`
	HardReject bool      `json:"hard_reject"`
	Strikes    int       `json:"strikes"`
	Threshold  int       `json:"threshold"`
	Trace      []RuleHit `json:"trace,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// ResumeIntake is the resume-tailoring block produced during analysis
type ResumeIntake struct {
	Summary    string   `json:"summary,omitempty"`
	Highlights []string `json:"highlights,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
}

// MatchResult is the AI analysis output attached to a job item
type MatchResult struct {
	Score            int          `json:"score"` // 0-100
	PreliminaryScore int          `json:"preliminary_score"`
	Rescored         bool         `json:"rescored"` // Expensive-tier rescore was applied
	Strikes          int          `json:"strikes"`  // Carried from the filter audit
	MatchedSkills    []string     `json:"matched_skills,omitempty"`
	MissingSkills    []string     `json:"missing_skills,omitempty"`
	ResumeIntake     ResumeIntake `json:"resume_intake,omitempty"`
	CompanyRef       string       `json:"company_ref,omitempty"` // Company ID, possibly provisional
	AnalyzedAt       time.Time    `json:"analyzed_at"`
}

// JobMatch is the terminal output persisted to the job-matches collection
type JobMatch struct {
	ID          string `json:"id" badgerhold:"key"`
	URL         string `json:"url"`
	URLHash     string `json:"url_hash" badgerhold:"index"`
	Title       string `json:"title"`
	CompanyName string `json:"company_name"`
	CompanyRef  string `json:"company_ref,omitempty" badgerhold:"index"` // May be provisional when the company item has not completed yet
	Location    string `json:"location,omitempty"`
	Remote      bool   `json:"remote"`

	Score         int          `json:"score"`
	StrikeCount   int          `json:"strike_count"`
	MatchedSkills []string     `json:"matched_skills,omitempty"`
	MissingSkills []string     `json:"missing_skills,omitempty"`
	ResumeIntake  ResumeIntake `json:"resume_intake,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScrapeEvent records one completed scrape against a company, used by
// the rotation fairness window
type ScrapeEvent struct {
	ID        string    `json:"id" badgerhold:"key"`
	CompanyID string    `json:"company_id" badgerhold:"index"`
	SourceID  string    `json:"source_id"`
	At        time.Time `json:"at"`
}
