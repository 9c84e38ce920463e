package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Boards.Example.COM/Jobs", "https://boards.example.com/Jobs"},
		{"strips default https port", "https://example.com:443/jobs", "https://example.com/jobs"},
		{"strips default http port", "http://example.com:80/jobs", "http://example.com/jobs"},
		{"keeps custom port", "https://example.com:8443/jobs", "https://example.com:8443/jobs"},
		{"strips trailing slash", "https://example.com/jobs/", "https://example.com/jobs"},
		{"drops bare root path", "https://example.com/", "https://example.com"},
		{"drops fragment", "https://example.com/jobs#apply", "https://example.com/jobs"},
		{"drops utm params", "https://example.com/jobs?utm_source=x&utm_medium=y", "https://example.com/jobs"},
		{"drops tracking params", "https://example.com/jobs?gclid=abc&fbclid=def&ref=hn", "https://example.com/jobs"},
		{"sorts surviving params", "https://example.com/jobs?b=2&a=1", "https://example.com/jobs?a=1&b=2"},
		{"mixed tracking and real", "https://example.com/jobs?id=7&utm_campaign=z", "https://example.com/jobs?id=7"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeURL(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeURLIdempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM:443/Jobs/?b=2&a=1&utm_source=x#top",
		"http://example.com/careers/",
		"https://example.com/jobs?id=7",
	}
	for _, in := range inputs {
		once, err := NormalizeURL(in)
		require.NoError(t, err)
		twice, err := NormalizeURL(once)
		require.NoError(t, err)
		assert.Equal(t, once, twice, in)
	}
}

func TestNormalizeURLRejectsRelative(t *testing.T) {
	_, err := NormalizeURL("/jobs/123")
	assert.Error(t, err)

	_, err = NormalizeURL("not a url at all ://")
	assert.Error(t, err)
}

func TestURLHashEquatesNormalForms(t *testing.T) {
	a, err := URLHash("https://Example.com/jobs/?utm_source=x")
	require.NoError(t, err)
	b, err := URLHash("https://example.com/jobs")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := URLHash("https://example.com/other")
	require.NoError(t, err)
	assert.NotEqual(t, a, c)

	// MustURLHash matches URLHash for already-normalized input
	assert.Equal(t, b, MustURLHash("https://example.com/jobs"))
}
