package models

import (
	"fmt"
	"time"
)

// StatRecord is one row of a player's per-90 table
type StatRecord struct {
	Title      string  `json:"title" yaml:"title"`
	Per90      string  `json:"per90" yaml:"per90"`
	Percentile *string `json:"percentile,omitempty" yaml:"percentile,omitempty"` // nil when the row shows no percentile
}

// StatKey is the dedupe identity of a StatRecord
type StatKey struct {
	Title, Per90, Percentile string
	HasPercentile            bool
}

func (r StatRecord) Key() StatKey {
	k := StatKey{Title: r.Title, Per90: r.Per90}
	if r.Percentile != nil {
		k.Percentile = *r.Percentile
		k.HasPercentile = true
	}
	return k
}

type PlayerResult struct {
	PlayerName      string       `json:"player_name" yaml:"player_name"`
	URL             string       `json:"url" yaml:"url"`
	RecentWindowURL string       `json:"recent_window_url,omitempty" yaml:"recent_window_url,omitempty"`
	Stats           []StatRecord `json:"stats" yaml:"stats"`
}

type TeamResult struct {
	TeamName string         `json:"team_name" yaml:"team_name"`
	URL      string         `json:"url" yaml:"url"`
	Players  []PlayerResult `json:"players" yaml:"players"`
}

// SeasonResult is what the season/player branch learns about one season window
type SeasonResult struct {
	SeasonURL  string   `json:"season_url" yaml:"season_url"`
	StatsURL   string   `json:"stats_url,omitempty" yaml:"stats_url,omitempty"`
	PlayerURLs []string `json:"player_urls,omitempty" yaml:"player_urls,omitempty"`
}

// LeafFailure records a skipped team, player or season page
type LeafFailure struct {
	Level    PageKind `json:"level" yaml:"level"`
	URL      string   `json:"url" yaml:"url"`
	Category string   `json:"category" yaml:"category"`
	Reason   string   `json:"reason" yaml:"reason"`
}

// PublishFailure records an object that could not be handed to the object store
type PublishFailure struct {
	ObjectPath string `json:"object_path" yaml:"object_path"`
	Category   string `json:"category" yaml:"category"`
	Reason     string `json:"reason" yaml:"reason"`
}

// CrawlReport is the root output of one crawl run
type CrawlReport struct {
	RunID             string           `json:"run_id" yaml:"run_id"`
	StartedAt         time.Time        `json:"started_at" yaml:"started_at"`
	FinishedAt        time.Time        `json:"finished_at" yaml:"finished_at"`
	LeagueURL         string           `json:"league_url" yaml:"league_url"`
	TierOneLeagues    []string         `json:"tier_one_leagues" yaml:"tier_one_leagues"`
	Seasons           []SeasonResult   `json:"seasons" yaml:"seasons"`
	Teams             []TeamResult     `json:"teams" yaml:"teams"`
	PagesFetched      int64            `json:"pages_fetched" yaml:"pages_fetched"`
	LinksDeduplicated int64            `json:"links_deduplicated" yaml:"links_deduplicated"`
	FailuresByLevel   map[PageKind]int `json:"failures_by_level" yaml:"failures_by_level"`
	Failures          []LeafFailure    `json:"failures" yaml:"failures"`
	PublishFailures   []PublishFailure `json:"publish_failures,omitempty" yaml:"publish_failures,omitempty"`
	Cancelled         bool             `json:"cancelled" yaml:"cancelled"`
}

// PlayerCount returns the number of players extracted across all teams
func (r *CrawlReport) PlayerCount() int {
	n := 0
	for _, t := range r.Teams {
		n += len(t.Players)
	}
	return n
}

// Summary separates extracted data from failed leaves so callers can judge partial results
func (r *CrawlReport) Summary() string {
	s := fmt.Sprintf("%d teams / %d players extracted, %d seasons resolved, %d leaves failed",
		len(r.Teams), r.PlayerCount(), len(r.Seasons), len(r.Failures))
	if len(r.PublishFailures) > 0 {
		s += fmt.Sprintf(", %d publish failures", len(r.PublishFailures))
	}
	if r.Cancelled {
		s += " (cancelled)"
	}
	return s
}
