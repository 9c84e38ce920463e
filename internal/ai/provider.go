// Package ai routes analysis calls to Claude or Gemini by cost tier.
// The tier-to-model mapping lives in config; the provider is detected
// from the model name, so tiers can mix providers freely.
package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venari/internal/common"
	"github.com/ternarybob/venari/internal/interfaces"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// ProviderType identifies the backing AI provider
type ProviderType string

const (
	ProviderClaude ProviderType = "claude"
	ProviderGemini ProviderType = "gemini"
)

// Service implements interfaces.AIService over both providers with a
// shared token-bucket rate limit and per-call retry.
type Service struct {
	config  common.AIConfig
	logger  arbor.ILogger
	limiter *rate.Limiter
	retry   *RetryConfig

	mu           sync.Mutex
	claudeClient anthropic.Client
	claudeReady  bool
	geminiClient *genai.Client
}

// NewService creates the AI service. Clients are created lazily on
// first use so a drain run with no analyzable items needs no API keys.
func NewService(config common.AIConfig, logger arbor.ILogger) *Service {
	interval := config.RateLimitDuration()
	return &Service{
		config:  config,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		retry:   NewDefaultRetryConfig(),
	}
}

// DetectProvider determines the provider from a model string, falling
// back to the configured default.
func (s *Service) DetectProvider(model string) ProviderType {
	model = strings.ToLower(model)

	if strings.HasPrefix(model, "claude/") || strings.HasPrefix(model, "anthropic/") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini/") || strings.HasPrefix(model, "google/") {
		return ProviderGemini
	}
	if strings.HasPrefix(model, "claude-") {
		return ProviderClaude
	}
	if strings.HasPrefix(model, "gemini-") {
		return ProviderGemini
	}

	return ProviderType(s.config.DefaultProvider)
}

// ModelForTier maps a cost tier to its configured model name
func (s *Service) ModelForTier(tier interfaces.Tier) string {
	switch tier {
	case interfaces.TierCheap:
		return s.config.Tiers.Cheap
	case interfaces.TierExpensive:
		return s.config.Tiers.Expensive
	default:
		return s.config.Tiers.Medium
	}
}

// Analyze runs one structured-output call at the given tier
func (s *Service) Analyze(ctx context.Context, prompt string, tier interfaces.Tier, schema map[string]interface{}) (json.RawMessage, error) {
	// An interrupted wait is retryable; the limiter may also fail with
	// its own deadline error that does not wrap ctx.Err()
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, common.Transient(fmt.Errorf("rate limit wait interrupted: %w", err))
	}

	model := s.ModelForTier(tier)
	if model == "" {
		return nil, fmt.Errorf("no model configured for tier %q", tier)
	}
	provider := s.DetectProvider(model)

	start := time.Now()
	s.logger.Debug().
		Str("provider", string(provider)).
		Str("model", model).
		Str("tier", string(tier)).
		Int("prompt_length", len(prompt)).
		Msg("Starting AI analysis call")

	var text string
	var err error
	switch provider {
	case ProviderGemini:
		text, err = s.generateWithGemini(ctx, model, prompt, schema)
	default:
		text, err = s.generateWithClaude(ctx, model, prompt, schema)
	}
	if err != nil {
		return nil, err
	}

	result, err := ExtractJSON(text)
	if err != nil {
		return nil, fmt.Errorf("%s returned non-JSON output: %w", provider, err)
	}

	s.logger.Debug().
		Str("model", model).
		Int("response_length", len(result)).
		Dur("duration", time.Since(start)).
		Msg("AI analysis call completed")
	return result, nil
}

// withRetry runs call with rate-limit-aware exponential backoff
func (s *Service) withRetry(ctx context.Context, label string, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.retry.MaxRetries; attempt++ {
		lastErr = call()
		if lastErr == nil {
			return nil
		}
		if attempt == s.retry.MaxRetries {
			break
		}

		var backoff time.Duration
		if IsRateLimitError(lastErr) {
			backoff = s.retry.CalculateBackoff(attempt, ExtractRetryDelay(lastErr))
		} else {
			backoff = time.Duration(attempt+1) * 2 * time.Second
		}

		s.logger.Warn().
			Str("provider", label).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Err(lastErr).
			Msg("Retrying AI API call")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return common.Transient(fmt.Errorf("%s API call failed after %d retries: %w", label, s.retry.MaxRetries, lastErr))
}
