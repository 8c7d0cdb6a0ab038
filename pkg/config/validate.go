package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

const (
	DefaultCompetitionsURL      = "https://fbref.com/en/comps/"
	DefaultSiteOrigin           = "https://fbref.com"
	DefaultLeagueID             = "9"
	DefaultPlayerStatsContainer = "#content"
	DefaultPlayerPathPattern    = `^/en/players/[a-zA-Z0-9]+/[\w\-]+$`
	DefaultUserAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	DefaultPublishPrefix        = "bronze/fbref"
	DefaultFixturesAPIURL       = "https://api.football-data.org/v4"
	DefaultFixturesCompetition  = "2021"
	DefaultFixturesObjectName   = "epl"
	DefaultFixturesPrefix       = "bronze/football_api"
	DefaultFixturesWindowDays   = 7
	DefaultMinFetchInterval     = 5 * time.Second
	DefaultMaxRetries           = 3
)

// Validate checks AppConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Site roots
	if c.CompetitionsURL == "" {
		c.CompetitionsURL = DefaultCompetitionsURL
	}
	if err := requireAbsolute("competitions_url", c.CompetitionsURL); err != nil {
		return warnings, err
	}
	if c.SiteOrigin == "" {
		u, _ := url.Parse(c.CompetitionsURL)
		c.SiteOrigin = u.Scheme + "://" + u.Host
		warnings = append(warnings, fmt.Sprintf("site_origin is empty, deriving '%s' from competitions_url", c.SiteOrigin))
	}
	if err := requireAbsolute("site_origin", c.SiteOrigin); err != nil {
		return warnings, err
	}
	c.SiteOrigin = strings.TrimRight(c.SiteOrigin, "/")

	// LeagueID
	if c.LeagueID == "" {
		warnings = append(warnings, fmt.Sprintf("league_id is empty, defaulting to %s", DefaultLeagueID))
		c.LeagueID = DefaultLeagueID
	}
	if _, convErr := strconv.Atoi(c.LeagueID); convErr != nil {
		return warnings, fmt.Errorf("%w: league_id '%s' must be numeric", utils.ErrConfigValidation, c.LeagueID)
	}

	// NumSeasons
	if c.NumSeasons <= 0 {
		warnings = append(warnings, "num_seasons should be > 0, defaulting to 1")
		c.NumSeasons = 1
	}

	// MaxPlayersPerTeam
	if c.MaxPlayersPerTeam < 0 {
		warnings = append(warnings, "max_players_per_team cannot be negative, setting to 0 (unlimited)")
		c.MaxPlayersPerTeam = 0
	}

	// Politeness
	if c.MinFetchInterval < 0 {
		return warnings, fmt.Errorf("%w: min_fetch_interval cannot be negative", utils.ErrConfigValidation)
	}
	if c.MinFetchInterval == 0 {
		warnings = append(warnings, fmt.Sprintf("min_fetch_interval is not set, defaulting to %v", DefaultMinFetchInterval))
		c.MinFetchInterval = DefaultMinFetchInterval
	}
	if c.JitterFraction < 0 || c.JitterFraction > 1 {
		warnings = append(warnings, "jitter_fraction must be within [0,1], setting to 0")
		c.JitterFraction = 0
	}
	if c.MaxRequestsPerHost <= 0 {
		c.MaxRequestsPerHost = 1
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}

	// Page handling
	if c.PlayerStatsContainer == "" {
		c.PlayerStatsContainer = DefaultPlayerStatsContainer
	}
	if c.PlayerPathPattern == "" {
		c.PlayerPathPattern = DefaultPlayerPathPattern
	}
	re, err := utils.CompilePattern("player_path_pattern", c.PlayerPathPattern)
	if err != nil {
		return warnings, err
	}
	c.playerPathRe = re

	if c.NormalizeKinds == nil {
		c.NormalizeKinds = []models.PageKind{models.PageKindSeason}
	}
	for _, kinds := range [][]models.PageKind{c.RenderedKinds, c.NormalizeKinds} {
		for _, k := range kinds {
			if !k.IsValid() {
				return warnings, fmt.Errorf("%w: unknown page kind '%s'", utils.ErrConfigValidation, k)
			}
		}
	}

	// MaxRetries (nil = default, explicit 0 disables retries)
	if c.MaxRetries != nil && *c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		zero := 0
		c.MaxRetries = &zero
	}

	// Retry delays (only if retries enabled)
	if GetEffectiveMaxRetries(*c) > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 2 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}
	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	c.validateHTTPClientSettings()
	c.validateBrowser()

	pubWarnings, err := c.validatePublish()
	warnings = append(warnings, pubWarnings...)
	if err != nil {
		return warnings, err
	}

	fixWarnings, err := c.validateFixtures()
	warnings = append(warnings, fixWarnings...)
	if err != nil {
		return warnings, err
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 100
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

func (c *AppConfig) validateBrowser() {
	b := &c.Browser
	if b.SettleInterval <= 0 {
		b.SettleInterval = 5 * time.Second
	}
	if b.NavigationTimeout <= 0 {
		b.NavigationTimeout = 60 * time.Second
	}
}

func (c *AppConfig) validatePublish() (warnings []string, err error) {
	p := &c.Publish
	if p.Prefix == "" {
		p.Prefix = DefaultPublishPrefix
	}
	p.Prefix = strings.Trim(p.Prefix, "/")
	if !p.Enabled {
		return nil, nil
	}
	switch p.Backend {
	case "":
		warnings = append(warnings, "publish.backend is empty, defaulting to 'filesystem'")
		p.Backend = BackendFilesystem
	case BackendBadger, BackendFilesystem:
	default:
		return warnings, fmt.Errorf("%w: publish.backend '%s' must be '%s' or '%s'",
			utils.ErrConfigValidation, p.Backend, BackendBadger, BackendFilesystem)
	}
	if p.OutputDir == "" {
		warnings = append(warnings, "publish.output_dir is empty, defaulting to './fbref_objects'")
		p.OutputDir = "./fbref_objects"
	}
	return warnings, nil
}

func (c *AppConfig) validateFixtures() (warnings []string, err error) {
	f := &c.Fixtures
	if f.APIURL == "" {
		f.APIURL = DefaultFixturesAPIURL
	}
	if err := requireAbsolute("fixtures.api_url", f.APIURL); err != nil {
		return warnings, err
	}
	f.APIURL = strings.TrimRight(f.APIURL, "/")
	if f.Competition == "" {
		f.Competition = DefaultFixturesCompetition
	}
	if f.WindowDays < 0 {
		warnings = append(warnings, fmt.Sprintf("fixtures.window_days cannot be negative, defaulting to %d", DefaultFixturesWindowDays))
		f.WindowDays = DefaultFixturesWindowDays
	}
	if f.WindowDays == 0 {
		f.WindowDays = DefaultFixturesWindowDays
	}
	if f.ObjectName == "" {
		f.ObjectName = DefaultFixturesObjectName
	}
	if f.Prefix == "" {
		f.Prefix = DefaultFixturesPrefix
	}
	f.Prefix = strings.Trim(f.Prefix, "/")
	if f.Timeout <= 0 {
		f.Timeout = 30 * time.Second
	}
	return warnings, nil
}

func requireAbsolute(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: %s '%s' must be an absolute http(s) URL", utils.ErrConfigValidation, field, raw)
	}
	return nil
}
