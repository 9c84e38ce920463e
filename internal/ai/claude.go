package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const claudeJSONInstruction = "Respond with a single JSON document only. No prose, no markdown fences."

// getClaudeClient returns the Claude client, creating it on first use
func (s *Service) getClaudeClient() (anthropic.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claudeReady {
		return s.claudeClient, nil
	}

	apiKey := s.config.Claude.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return anthropic.Client{}, fmt.Errorf("Anthropic API key is required (set ANTHROPIC_API_KEY, VENARI_CLAUDE_API_KEY, or ai.claude.api_key in config)")
	}

	s.claudeClient = anthropic.NewClient(
		option.WithAPIKey(apiKey),
	)
	s.claudeReady = true
	return s.claudeClient, nil
}

// generateWithClaude runs one completion against the Claude API. Claude
// has no server-side response schema, so the schema is embedded in the
// system instruction and the output re-validated by the caller.
func (s *Service) generateWithClaude(ctx context.Context, model, prompt string, schema map[string]interface{}) (string, error) {
	client, err := s.getClaudeClient()
	if err != nil {
		return "", err
	}

	system := claudeJSONInstruction
	if len(schema) > 0 {
		schemaJSON, err := json.Marshal(schema)
		if err != nil {
			return "", fmt.Errorf("failed to marshal output schema: %w", err)
		}
		system = fmt.Sprintf("%s The document must conform to this JSON schema:\n%s", claudeJSONInstruction, schemaJSON)
	}

	maxTokens := s.config.Claude.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, s.config.Claude.TimeoutDuration())
	defer cancel()

	var resp *anthropic.Message
	err = s.withRetry(timeoutCtx, "claude", func() error {
		var apiErr error
		resp, apiErr = client.Messages.New(timeoutCtx, params)
		return apiErr
	})
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response from Claude API")
	}
	return text.String(), nil
}
