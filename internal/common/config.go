package common

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	Queue       QueueConfig     `toml:"queue"`
	Filter      FilterConfig    `toml:"filter"`
	Rotation    RotationConfig  `toml:"rotation"`
	AI          AIConfig        `toml:"ai"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Scraper     ScraperConfig   `toml:"scraper"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	InMemory       bool   `toml:"in_memory"`        // Run without a data directory (tests)
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// QueueConfig controls the work queue and worker loop behavior
type QueueConfig struct {
	MaxRetries        int            `toml:"max_retries" validate:"gte=0"`
	StaleClaimSeconds int            `toml:"stale_claim_seconds" validate:"gt=0"` // PROCESSING items older than this are reclaimable
	PollInterval      string         `toml:"poll_interval"`                       // e.g. "1s" - how often workers poll for items
	Concurrency       int            `toml:"concurrency" validate:"gte=1"`        // Number of concurrent worker loops
	MaxSpawnDepth     int            `toml:"max_spawn_depth" validate:"gte=1"`    // Lineage depth cap for spawned items
	Timeouts          TimeoutsConfig `toml:"timeouts"`
}

// TimeoutsConfig holds per-item-type stage timeouts as duration strings
type TimeoutsConfig struct {
	Job     string `toml:"job"`
	Scrape  string `toml:"scrape"`
	Company string `toml:"company"`
}

// FilterConfig drives the two-tier strike filter
type FilterConfig struct {
	StrikeThreshold int            `toml:"strike_threshold" validate:"gte=1"`
	StopList        []string       `toml:"stop_list"`       // Company names rejected outright
	BlockTokens     []string       `toml:"block_tokens"`    // Title/description tokens rejected outright
	HardLocation    bool           `toml:"hard_location"`   // Treat a failed location clause as a tier-1 reject
	AllowedRegions  []string       `toml:"allowed_regions"` // Acceptable non-remote locations (substring match)
	TechRanks       map[string]int `toml:"tech_ranks"`      // Ranked skills; missing skill strikes weight = rank (1-3)
	TargetSeniority string         `toml:"target_seniority"`
	TargetRoleType  string         `toml:"target_role_type"` // "permanent" or "contract"
	CompanySizeMin  int            `toml:"company_size_min"`
	CompanySizeMax  int            `toml:"company_size_max"`
}

// RotationConfig controls source rotation and exclusion
type RotationConfig struct {
	MaxConsecutiveFailures int `toml:"max_consecutive_failures" validate:"gte=1"`
	FairnessWindowDays     int `toml:"fairness_window_days" validate:"gte=1"`
}

// AIConfig contains provider, tier, and threshold settings for analysis calls
type AIConfig struct {
	DefaultProvider string             `toml:"default_provider" validate:"oneof=claude gemini"`
	RateLimit       string             `toml:"rate_limit"` // Minimum interval between AI calls, e.g. "1s"
	Thresholds      AIThresholdsConfig `toml:"thresholds"`
	Tiers           AITiersConfig      `toml:"tiers"`
	Claude          ClaudeConfig       `toml:"claude"`
	Gemini          GeminiConfig       `toml:"gemini"`
}

type AIThresholdsConfig struct {
	MinMatchScore int `toml:"min_match_score" validate:"gte=0,lte=100"`
	RescoreBand   int `toml:"rescore_band" validate:"gte=0,lte=50"` // Rescore with the expensive tier within +/- band of the threshold
}

// AITiersConfig maps cost tiers to model names
type AITiersConfig struct {
	Cheap     string `toml:"cheap"`
	Medium    string `toml:"medium"`
	Expensive string `toml:"expensive"`
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	MaxTokens int    `toml:"max_tokens"`
	Timeout   string `toml:"timeout"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey  string `toml:"api_key"`
	Timeout string `toml:"timeout"`
}

// SchedulerConfig controls the cron-driven scrape cycles
type SchedulerConfig struct {
	Enabled       bool               `toml:"enabled"`
	Cron          string             `toml:"cron"` // Cycle schedule (default every 15 minutes)
	DaytimeHours  DaytimeHoursConfig `toml:"daytime_hours"`
	Timezone      string             `toml:"timezone"`
	TargetMatches int                `toml:"target_matches" validate:"gte=0"`
	MaxSources    int                `toml:"max_sources" validate:"gte=1"`
}

type DaytimeHoursConfig struct {
	Start int `toml:"start" validate:"gte=0,lte=23"`
	End   int `toml:"end" validate:"gte=0,lte=24"`
}

// ScraperConfig controls the HTTP fetcher shared by all scrapers
type ScraperConfig struct {
	UserAgent          string  `toml:"user_agent"`
	RequestTimeout     string  `toml:"request_timeout"`
	PerHostRPS         float64 `toml:"per_host_rps" validate:"gt=0"` // Token-bucket rate per host
	MaxBodySize        int     `toml:"max_body_size" validate:"gt=0"`
	CompanyFetchBudget string  `toml:"company_fetch_budget"` // Time budget per candidate page
	MaxTextSize        int     `toml:"max_text_size" validate:"gt=0"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability;
// only user-facing settings need to appear in venari.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Queue: QueueConfig{
			MaxRetries:        3,
			StaleClaimSeconds: 600,
			PollInterval:      "1s",
			Concurrency:       4,
			MaxSpawnDepth:     10,
			Timeouts: TimeoutsConfig{
				Job:     "5m",
				Scrape:  "10m",
				Company: "3m",
			},
		},
		Filter: FilterConfig{
			StrikeThreshold: 5,
			TechRanks:       map[string]int{},
		},
		Rotation: RotationConfig{
			MaxConsecutiveFailures: 5,
			FairnessWindowDays:     30,
		},
		AI: AIConfig{
			DefaultProvider: "claude",
			RateLimit:       "1s",
			Thresholds: AIThresholdsConfig{
				MinMatchScore: 80,
				RescoreBand:   10,
			},
			Tiers: AITiersConfig{
				Cheap:     "claude-haiku-3-5-20241022",
				Medium:    "claude-sonnet-4-20250514",
				Expensive: "claude-opus-4-20250514",
			},
			Claude: ClaudeConfig{
				MaxTokens: 8192,
				Timeout:   "5m",
			},
			Gemini: GeminiConfig{
				Timeout: "5m",
			},
		},
		Scheduler: SchedulerConfig{
			Enabled: false,
			Cron:    "*/15 * * * *",
			DaytimeHours: DaytimeHoursConfig{
				Start: 7,
				End:   22,
			},
			Timezone:      "America/Los_Angeles",
			TargetMatches: 25,
			MaxSources:    10,
		},
		Scraper: ScraperConfig{
			UserAgent:          "venari/" + Version,
			RequestTimeout:     "30s",
			PerHostRPS:         1.0,
			MaxBodySize:        4 * 1024 * 1024,
			CompanyFetchBudget: "20s",
			MaxTextSize:        48 * 1024,
		},
	}
}

// LoadFromFiles loads configuration from defaults, then each file in order
// (later files override earlier ones), then environment variables.
// Unknown keys in any file are rejected.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := decodeStrict(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// decodeStrict decodes TOML into the config, rejecting unrecognized keys
func decodeStrict(data []byte, config *Config) error {
	decoder := toml.NewDecoder(strings.NewReader(string(data)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		var strict *toml.StrictMissingError
		if ok := asStrictError(err, &strict); ok {
			return fmt.Errorf("unknown configuration keys: %s", strict.String())
		}
		return err
	}
	return nil
}

func asStrictError(err error, target **toml.StrictMissingError) bool {
	if e, ok := err.(*toml.StrictMissingError); ok {
		*target = e
		return true
	}
	return false
}

// applyEnvOverrides applies VENARI_* environment variables over the loaded config
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("VENARI_CLAUDE_API_KEY"); v != "" {
		config.AI.Claude.APIKey = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.AI.Claude.APIKey == "" {
		config.AI.Claude.APIKey = v
	}
	if v := os.Getenv("VENARI_GEMINI_API_KEY"); v != "" {
		config.AI.Gemini.APIKey = v
	}
	if v := os.Getenv("VENARI_DATA_DIR"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("VENARI_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
}

// Validate checks structural constraints and duration strings
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"queue.poll_interval":          c.Queue.PollInterval,
		"queue.timeouts.job":           c.Queue.Timeouts.Job,
		"queue.timeouts.scrape":        c.Queue.Timeouts.Scrape,
		"queue.timeouts.company":       c.Queue.Timeouts.Company,
		"ai.rate_limit":                c.AI.RateLimit,
		"ai.claude.timeout":            c.AI.Claude.Timeout,
		"ai.gemini.timeout":            c.AI.Gemini.Timeout,
		"scraper.request_timeout":      c.Scraper.RequestTimeout,
		"scraper.company_fetch_budget": c.Scraper.CompanyFetchBudget,
	}
	for key, value := range durations {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid duration for %s: %q", key, value)
		}
	}

	if c.Scheduler.DaytimeHours.End <= c.Scheduler.DaytimeHours.Start {
		return fmt.Errorf("scheduler.daytime_hours.end must be after start")
	}
	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		return fmt.Errorf("invalid scheduler.timezone %q: %w", c.Scheduler.Timezone, err)
	}
	return nil
}

// Duration helpers: configs keep duration strings (matching the TOML),
// callers get parsed values with the documented defaults as fallback.

func (c *QueueConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, time.Second)
}

func (c *QueueConfig) StaleClaimDuration() time.Duration {
	return time.Duration(c.StaleClaimSeconds) * time.Second
}

func (c *TimeoutsConfig) JobDuration() time.Duration {
	return parseDurationOr(c.Job, 5*time.Minute)
}

func (c *TimeoutsConfig) ScrapeDuration() time.Duration {
	return parseDurationOr(c.Scrape, 10*time.Minute)
}

func (c *TimeoutsConfig) CompanyDuration() time.Duration {
	return parseDurationOr(c.Company, 3*time.Minute)
}

func (c *ScraperConfig) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

func (c *ScraperConfig) CompanyFetchBudgetDuration() time.Duration {
	return parseDurationOr(c.CompanyFetchBudget, 20*time.Second)
}

func (c *AIConfig) RateLimitDuration() time.Duration {
	return parseDurationOr(c.RateLimit, time.Second)
}

func (c *ClaudeConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 5*time.Minute)
}

func (c *GeminiConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(c.Timeout, 5*time.Minute)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
