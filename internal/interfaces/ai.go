package interfaces

import (
	"context"
	"encoding/json"
)

// Tier is an AI cost class. The tier-to-model mapping lives in config.
type Tier string

const (
	TierCheap     Tier = "cheap"
	TierMedium    Tier = "medium"
	TierExpensive Tier = "expensive"
)

// AIService generates structured JSON for a prompt at a cost tier.
// When schema is non-nil the provider is asked for schema-conforming
// output; the result is always validated as JSON before return.
type AIService interface {
	Analyze(ctx context.Context, prompt string, tier Tier, schema map[string]interface{}) (json.RawMessage, error)
}
