package parse

import (
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noname397/football-analysis/pkg/utils"
)

func TestStripCommentMarkers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "CommentedTable",
			input:    `<div id="all_stats"><!--<table id="stats_standard_9"></table>--></div>`,
			expected: `<div id="all_stats"><table id="stats_standard_9"></table></div>`,
		},
		{
			name:     "NoMarkers",
			input:    "<p>plain</p>",
			expected: "<p>plain</p>",
		},
		{
			name:     "OnlyOpen",
			input:    "a<!--b",
			expected: "ab",
		},
		{
			name:     "SplicedMarker",
			input:    "<!<!---->--x",
			expected: "x",
		},
		{
			name:     "Empty",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripCommentMarkers(tt.input)
			assert.Equal(t, tt.expected, got)
			assert.NotContains(t, got, "<!--")
			assert.NotContains(t, got, "-->")
		})
	}
}

func TestStripCommentMarkers_Idempotent(t *testing.T) {
	inputs := []string{
		"<!-- a --> <!-- b -->",
		"<!<!---->-->",
		strings.Repeat("<!--x-->", 50),
		"-->--><!--",
	}
	for _, in := range inputs {
		once := StripCommentMarkers(in)
		assert.Equal(t, once, StripCommentMarkers(once), "input %q", in)
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"HTTPS://FBref.COM/en/comps/9/", "https://fbref.com/en/comps/9"},
		{"https://fbref.com:443/en/players/abc/Saka", "https://fbref.com/en/players/abc/Saka"},
		{"http://fbref.com:8080/x", "http://fbref.com:8080/x"},
		{"https://fbref.com", "https://fbref.com/"},
		{"https://fbref.com/en/squads/x/Arsenal-Stats?foo=1#stats", "https://fbref.com/en/squads/x/Arsenal-Stats"},
	}
	for _, tt := range tests {
		parsed, err := url.Parse(tt.input)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, NormalizeURL(parsed), "input %q", tt.input)
	}
	assert.Equal(t, "", NormalizeURL(nil))
}

func TestNormalizeURL_DoesNotModifyInput(t *testing.T) {
	parsed, _ := url.Parse("HTTP://FBREF.COM:80/path/?q=test#section")
	before := *parsed
	_ = NormalizeURL(parsed)
	assert.Equal(t, before, *parsed)
}

func TestParseAndNormalize(t *testing.T) {
	key, parsed, err := ParseAndNormalize("https://fbref.com/en/comps/9/")
	require.NoError(t, err)
	assert.Equal(t, "https://fbref.com/en/comps/9", key)
	assert.NotNil(t, parsed)

	_, parsed, err = ParseAndNormalize("fbref.com/en")
	assert.Error(t, err)
	assert.Nil(t, parsed)
}

func TestAbsolutize(t *testing.T) {
	tests := []struct {
		origin   string
		href     string
		expected string
	}{
		{"https://fbref.com", "/en/comps/9/Premier-League-Stats", "https://fbref.com/en/comps/9/Premier-League-Stats"},
		{"https://fbref.com/", "/en/comps/12/La-Liga-Stats", "https://fbref.com/en/comps/12/La-Liga-Stats"},
		{"https://fbref.com", "https://other.example/en/x", "https://other.example/en/x"},
		{"http://127.0.0.1:8080", "/en/players/abc/Saka", "http://127.0.0.1:8080/en/players/abc/Saka"},
	}
	for _, tt := range tests {
		got, err := Absolutize(tt.origin, tt.href)
		require.NoError(t, err)
		assert.Equal(t, tt.expected, got)
	}
}

func TestAbsolutize_Errors(t *testing.T) {
	_, err := Absolutize("https://fbref.com", "  ")
	assert.True(t, errors.Is(err, utils.ErrParsing))

	_, err = Absolutize("not-a-url", "/en/comps/9/")
	assert.True(t, errors.Is(err, utils.ErrParsing))
	assert.Equal(t, "Content_ParsingURL", utils.CategorizeError(err))
}

func TestPathHasPrefix(t *testing.T) {
	assert.True(t, PathHasPrefix("https://fbref.com/en/comps/9/Premier-League-Stats", "/en/comps/9/"))
	assert.False(t, PathHasPrefix("https://fbref.com/en/comps/90/Other", "/en/comps/9/"))
	assert.False(t, PathHasPrefix("://bad", "/en"))
}
