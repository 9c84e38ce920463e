package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Tracking parameters stripped during normalization. Anything prefixed
// "utm_" is also dropped.
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"ref":    true,
	"source": true,
}

// NormalizeURL canonicalizes a URL for deduplication:
// lowercase scheme and host, default ports stripped, trailing slash
// removed from the path, fragment dropped, tracking params dropped,
// remaining query parameters sorted alphabetically.
// Normalization is idempotent: NormalizeURL(NormalizeURL(u)) == NormalizeURL(u).
func NormalizeURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("failed to parse URL %q: %w", raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URL %q is missing scheme or host", raw)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host := strings.ToLower(parsed.Host)

	// Strip default ports
	if scheme == "http" {
		host = strings.TrimSuffix(host, ":80")
	} else if scheme == "https" {
		host = strings.TrimSuffix(host, ":443")
	}

	path := parsed.EscapedPath()
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}

	query := ""
	if parsed.RawQuery != "" {
		values, err := url.ParseQuery(parsed.RawQuery)
		if err != nil {
			return "", fmt.Errorf("failed to parse query of %q: %w", raw, err)
		}

		keys := make([]string, 0, len(values))
		for key := range values {
			if strings.HasPrefix(key, "utm_") || trackingParams[key] {
				continue
			}
			keys = append(keys, key)
		}
		sort.Strings(keys)

		var parts []string
		for _, key := range keys {
			vals := values[key]
			sort.Strings(vals)
			for _, v := range vals {
				parts = append(parts, url.QueryEscape(key)+"="+url.QueryEscape(v))
			}
		}
		query = strings.Join(parts, "&")
	}

	normalized := scheme + "://" + host + path
	if query != "" {
		normalized += "?" + query
	}
	return normalized, nil
}

// URLHash returns the hex-encoded sha256 of the normalized URL.
// Persisted alongside stored records for O(1) equality lookups.
func URLHash(raw string) (string, error) {
	normalized, err := NormalizeURL(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// MustURLHash is URLHash for inputs already known to be normalized
func MustURLHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
