package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
)

func TestExtractJSONPlain(t *testing.T) {
	result, err := ExtractJSON(`{"score": 85}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 85}`, string(result))
}

func TestExtractJSONCodeFence(t *testing.T) {
	input := "```json\n{\"score\": 85, \"skills\": [\"go\"]}\n```"
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 85, "skills": ["go"]}`, string(result))
}

func TestExtractJSONBareFence(t *testing.T) {
	input := "```\n[1, 2, 3]\n```"
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.JSONEq(t, `[1, 2, 3]`, string(result))
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	input := "Here is the analysis you asked for:\n{\"score\": 42}\nLet me know if you need anything else."
	result, err := ExtractJSON(input)
	require.NoError(t, err)
	assert.JSONEq(t, `{"score": 42}`, string(result))
}

func TestExtractJSONRejectsNonJSON(t *testing.T) {
	_, err := ExtractJSON("I could not produce a result.")
	assert.Error(t, err)
}

func testAIConfig() common.AIConfig {
	return common.NewDefaultConfig().AI
}

func TestDetectProviderByModelName(t *testing.T) {
	service := NewService(testAIConfig(), arbor.NewLogger())

	assert.Equal(t, ProviderClaude, service.DetectProvider("claude-sonnet-4-20250514"))
	assert.Equal(t, ProviderClaude, service.DetectProvider("anthropic/claude-haiku-3-5"))
	assert.Equal(t, ProviderGemini, service.DetectProvider("gemini-2.5-flash"))
	assert.Equal(t, ProviderGemini, service.DetectProvider("google/gemini-2.5-pro"))
	// Unknown model falls back to the configured default
	assert.Equal(t, ProviderClaude, service.DetectProvider("mystery-model"))
}

func TestIsRateLimitError(t *testing.T) {
	assert.False(t, IsRateLimitError(nil))
	assert.False(t, IsRateLimitError(&delayError{msg: "connection refused"}))
	assert.True(t, IsRateLimitError(&delayError{msg: "429 Too Many Requests"}))
	assert.True(t, IsRateLimitError(&delayError{msg: "RESOURCE_EXHAUSTED: quota exceeded"}))
}

func TestExtractRetryDelay(t *testing.T) {
	err := &delayError{msg: "Error 429, Message: quota exceeded. Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"}
	delay := ExtractRetryDelay(err)
	assert.InDelta(t, 45.387, delay.Seconds(), 0.001)

	assert.Equal(t, time.Duration(0), ExtractRetryDelay(&delayError{msg: "plain failure"}))
}

func TestCalculateBackoffCapped(t *testing.T) {
	config := NewDefaultRetryConfig()

	first := config.CalculateBackoff(0, 0)
	assert.Equal(t, config.InitialBackoff, first)

	// Deep attempts saturate at MaxBackoff
	deep := config.CalculateBackoff(10, 0)
	assert.Equal(t, config.MaxBackoff, deep)

	// API-provided delay wins over the default base
	apiBased := config.CalculateBackoff(0, 30*time.Second)
	assert.Equal(t, 35*time.Second, apiBased)
}

type delayError struct{ msg string }

func (e *delayError) Error() string { return e.msg }
