package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "venari.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultConfigValidates(t *testing.T) {
	config := NewDefaultConfig()
	require.NoError(t, config.Validate())

	assert.Equal(t, 5, config.Filter.StrikeThreshold)
	assert.Equal(t, 80, config.AI.Thresholds.MinMatchScore)
	assert.Equal(t, 10, config.AI.Thresholds.RescoreBand)
	assert.Equal(t, 10, config.Queue.MaxSpawnDepth)
	assert.Equal(t, 5, config.Rotation.MaxConsecutiveFailures)
	assert.Equal(t, 30, config.Rotation.FairnessWindowDays)
}

func TestLoadFromFilesOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[filter]
strike_threshold = 3
stop_list = ["Acme Corp"]
target_seniority = "senior"

[ai.thresholds]
min_match_score = 70
`)

	config, err := LoadFromFiles(path)
	require.NoError(t, err)
	assert.Equal(t, 3, config.Filter.StrikeThreshold)
	assert.Equal(t, []string{"Acme Corp"}, config.Filter.StopList)
	assert.Equal(t, 70, config.AI.Thresholds.MinMatchScore)
	// Untouched sections keep defaults
	assert.Equal(t, 10, config.AI.Thresholds.RescoreBand)
	assert.Equal(t, 4, config.Queue.Concurrency)
}

func TestLoadFromFilesLaterFileWins(t *testing.T) {
	first := writeConfig(t, `
[scheduler]
target_matches = 10
`)
	second := writeConfig(t, `
[scheduler]
target_matches = 50
`)

	config, err := LoadFromFiles(first, second)
	require.NoError(t, err)
	assert.Equal(t, 50, config.Scheduler.TargetMatches)
}

func TestLoadFromFilesRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[filter]
strike_treshold = 3
`)

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown configuration keys")
}

func TestLoadFromFilesRejectsBadDuration(t *testing.T) {
	path := writeConfig(t, `
[queue]
poll_interval = "soon"
`)

	_, err := LoadFromFiles(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "poll_interval")
}

func TestLoadFromFilesRejectsInvertedDaytimeHours(t *testing.T) {
	path := writeConfig(t, `
[scheduler.daytime_hours]
start = 22
end = 7
`)

	_, err := LoadFromFiles(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VENARI_CLAUDE_API_KEY", "sk-test")
	t.Setenv("VENARI_DATA_DIR", "/tmp/venari-test")
	t.Setenv("VENARI_LOG_LEVEL", "debug")

	config, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", config.AI.Claude.APIKey)
	assert.Equal(t, "/tmp/venari-test", config.Storage.Badger.Path)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestDurationHelpers(t *testing.T) {
	config := NewDefaultConfig()
	assert.Equal(t, time.Second, config.Queue.PollIntervalDuration())
	assert.Equal(t, 10*time.Minute, config.Queue.StaleClaimDuration())
	assert.Equal(t, 5*time.Minute, config.Queue.Timeouts.JobDuration())
	assert.Equal(t, 20*time.Second, config.Scraper.CompanyFetchBudgetDuration())

	// Malformed strings fall back rather than failing at call sites
	bad := QueueConfig{PollInterval: "often"}
	assert.Equal(t, time.Second, bad.PollIntervalDuration())
}
