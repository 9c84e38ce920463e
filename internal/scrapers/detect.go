package scrapers

import (
	"bytes"
	"net/url"
	"strings"

	"github.com/ternarybob/venari/internal/models"
)

// Detection classifies a candidate source URL
type Detection struct {
	Type       models.SourceType
	Confidence models.Confidence
	BoardToken string
}

// DetectByURL classifies a source from its URL alone. Greenhouse and
// workday have strict URL patterns and classify with high confidence;
// everything else needs a content probe.
func DetectByURL(rawURL string) (Detection, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Detection{}, false
	}
	host := strings.ToLower(parsed.Hostname())

	if strings.HasSuffix(host, "greenhouse.io") {
		token, err := ParseBoardToken(rawURL)
		if err != nil {
			return Detection{}, false
		}
		return Detection{
			Type:       models.SourceTypeGreenhouse,
			Confidence: models.ConfidenceHigh,
			BoardToken: token,
		}, true
	}

	if strings.HasSuffix(host, ".myworkdayjobs.com") {
		if _, err := ParseWorkdayBoard(rawURL); err != nil {
			return Detection{}, false
		}
		return Detection{
			Type:       models.SourceTypeWorkday,
			Confidence: models.ConfidenceHigh,
		}, true
	}

	return Detection{}, false
}

// DetectByContent classifies a probed response body. Feeds and JSON
// APIs detect with high confidence; anything else is generic HTML at
// low confidence.
func DetectByContent(contentType string, body []byte) Detection {
	lowered := strings.ToLower(contentType)
	trimmed := bytes.TrimSpace(body)

	switch {
	case strings.Contains(lowered, "xml") || strings.Contains(lowered, "rss") || strings.Contains(lowered, "atom"):
		return Detection{Type: models.SourceTypeRSS, Confidence: models.ConfidenceHigh}
	case bytes.HasPrefix(trimmed, []byte("<?xml")) || bytes.HasPrefix(trimmed, []byte("<rss")) || bytes.HasPrefix(trimmed, []byte("<feed")):
		return Detection{Type: models.SourceTypeRSS, Confidence: models.ConfidenceHigh}
	case strings.Contains(lowered, "json"):
		return Detection{Type: models.SourceTypeAPI, Confidence: models.ConfidenceHigh}
	case bytes.HasPrefix(trimmed, []byte("[")) || bytes.HasPrefix(trimmed, []byte("{")):
		return Detection{Type: models.SourceTypeAPI, Confidence: models.ConfidenceMedium}
	default:
		return Detection{Type: models.SourceTypeHTML, Confidence: models.ConfidenceLow}
	}
}
