package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewCrawlTarget(t *testing.T) {
	target, err := NewCrawlTarget("https://fbref.com/en/squads/abc/Arsenal-Stats", PageKindTeam)
	require.NoError(t, err)
	assert.Equal(t, "https://fbref.com/en/squads/abc/Arsenal-Stats", target.URL())
	assert.Equal(t, PageKindTeam, target.Kind())
	assert.Equal(t, "fbref.com", target.Host())
}

func TestNewCrawlTarget_Rejects(t *testing.T) {
	tests := []struct {
		name string
		url  string
		kind PageKind
	}{
		{"relative", "/en/comps/9/", PageKindLeague},
		{"ftp", "ftp://fbref.com/x", PageKindLeague},
		{"unknown kind", "https://fbref.com/", PageKind("fixture")},
		{"garbage", "http://[::1", PageKindSeason},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCrawlTarget(tt.url, tt.kind)
			assert.Error(t, err)
		})
	}
}

func TestLinkSet(t *testing.T) {
	s := NewLinkSet("/b", "/a", "/b")
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("/a"))
	assert.False(t, s.Add("/a"), "duplicate add should report false")
	assert.True(t, s.Add("/c"))
	assert.Equal(t, []string{"/a", "/b", "/c"}, s.Sorted())
}

func TestStatRecord_Key(t *testing.T) {
	p := "99"
	empty := ""
	withPct := StatRecord{Title: "Goals", Per90: "0.50", Percentile: &p}
	noPct := StatRecord{Title: "Goals", Per90: "0.50"}
	emptyPct := StatRecord{Title: "Goals", Per90: "0.50", Percentile: &empty}

	assert.NotEqual(t, withPct.Key(), noPct.Key())
	assert.NotEqual(t, noPct.Key(), emptyPct.Key(), "absent and empty percentile are distinct")

	same := "99"
	assert.Equal(t, withPct.Key(), StatRecord{Title: "Goals", Per90: "0.50", Percentile: &same}.Key())
}

func TestPageDBEntry_OmitEmpty(t *testing.T) {
	entry := PageDBEntry{
		Status:      PageStatusPending,
		Kind:        PageKindPlayer,
		LastAttempt: time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "error_type")
	assert.NotContains(t, raw, "content_hash")
	assert.Contains(t, raw, `"kind":"player"`)
}

func TestCrawlReport_Summary(t *testing.T) {
	report := &CrawlReport{
		Seasons: []SeasonResult{{SeasonURL: "https://fbref.com/en/comps/9/2023-2024/"}},
		Teams: []TeamResult{
			{TeamName: "Arsenal", Players: []PlayerResult{{PlayerName: "Saka"}, {PlayerName: "Rice"}}},
			{TeamName: "Spurs"},
		},
		Failures: []LeafFailure{{Level: PageKindTeam, URL: "https://fbref.com/en/squads/x/", Category: "HTTP_503"}},
	}
	assert.Equal(t, 2, report.PlayerCount())
	assert.Equal(t, "2 teams / 2 players extracted, 1 seasons resolved, 1 leaves failed", report.Summary())

	report.Cancelled = true
	report.PublishFailures = []PublishFailure{{ObjectPath: "bronze/fbref/x"}}
	assert.Contains(t, report.Summary(), "1 publish failures")
	assert.Contains(t, report.Summary(), "(cancelled)")
}

func TestCrawlReport_YAMLPercentile(t *testing.T) {
	p := "87"
	report := CrawlReport{
		RunID: "run-1",
		Teams: []TeamResult{{
			TeamName: "Arsenal",
			Players: []PlayerResult{{
				PlayerName: "Saka",
				Stats: []StatRecord{
					{Title: "Goals", Per90: "0.45", Percentile: &p},
					{Title: "Assists", Per90: "0.30"},
				},
			}},
		}},
	}

	data, err := yaml.Marshal(report)
	require.NoError(t, err)

	var got CrawlReport
	require.NoError(t, yaml.Unmarshal(data, &got))
	stats := got.Teams[0].Players[0].Stats
	require.Len(t, stats, 2)
	require.NotNil(t, stats[0].Percentile)
	assert.Equal(t, "87", *stats[0].Percentile)
	assert.Nil(t, stats[1].Percentile)
}
