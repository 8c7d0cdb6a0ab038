package config

import (
	"regexp"
	"time"

	"github.com/Noname397/football-analysis/pkg/models"
)

// AppConfig holds the configuration of one crawl run
type AppConfig struct {
	CompetitionsURL      string            `yaml:"competitions_url"`
	SiteOrigin           string            `yaml:"site_origin"`
	LeagueID             string            `yaml:"league_id"` // fbref competition id, e.g. "9" for the Premier League
	NumSeasons           int               `yaml:"num_seasons"`
	MaxPlayersPerTeam    int               `yaml:"max_players_per_team,omitempty"` // 0 = unlimited
	MinFetchInterval     time.Duration     `yaml:"min_fetch_interval"`
	JitterFraction       float64           `yaml:"jitter_fraction,omitempty"` // Additive only, never shortens the interval
	ConcurrentBranches   *bool             `yaml:"concurrent_branches,omitempty"`
	FetchRecentWindow    bool              `yaml:"fetch_recent_window,omitempty"`
	PlayerStatsContainer string            `yaml:"player_stats_container,omitempty"`
	PlayerPathPattern    string            `yaml:"player_path_pattern,omitempty"`
	RenderedKinds        []models.PageKind `yaml:"rendered_kinds,omitempty"`
	NormalizeKinds       []models.PageKind `yaml:"normalize_kinds,omitempty"`
	UserAgent            string            `yaml:"user_agent,omitempty"`
	RespectRobots        bool              `yaml:"respect_robots,omitempty"`
	MaxRequestsPerHost   int               `yaml:"max_requests_per_host,omitempty"`
	MaxRetries           *int              `yaml:"max_retries,omitempty"` // nil = 3, 0 disables retries
	InitialRetryDelay    time.Duration     `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay        time.Duration     `yaml:"max_retry_delay,omitempty"`
	GlobalCrawlTimeout   time.Duration     `yaml:"global_crawl_timeout,omitempty"`
	StateDir             string            `yaml:"state_dir,omitempty"` // Empty keeps the visit ledger in memory
	HTTPClientSettings   HTTPClientConfig  `yaml:"http_client_settings,omitempty"`
	Browser              BrowserConfig     `yaml:"browser,omitempty"`
	Publish              PublishConfig     `yaml:"publish,omitempty"`
	Fixtures             FixturesConfig    `yaml:"fixtures,omitempty"`

	playerPathRe *regexp.Regexp
}

// HTTPClientConfig holds settings for the direct-mode HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
	CloudflareBypass      *bool         `yaml:"cloudflare_bypass,omitempty"`       // Wrap the transport with browser-like TLS + headers (default true)
}

// BrowserConfig holds settings for rendered (headless Chrome) fetching
type BrowserConfig struct {
	Headless          *bool         `yaml:"headless,omitempty"`
	SettleInterval    time.Duration `yaml:"settle_interval,omitempty"` // Wait after body is ready so scripts can populate tables
	NavigationTimeout time.Duration `yaml:"navigation_timeout,omitempty"`
	ExecPath          string        `yaml:"exec_path,omitempty"`
}

// PublishConfig controls where raw pages and reports are written
type PublishConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Backend   string `yaml:"backend,omitempty"` // "badger" or "filesystem"
	OutputDir string `yaml:"output_dir,omitempty"`
	Prefix    string `yaml:"prefix,omitempty"`
}

// FixturesConfig controls the football-data.org fixtures ingest
type FixturesConfig struct {
	APIURL      string        `yaml:"api_url,omitempty"`
	Competition string        `yaml:"competition,omitempty"` // football-data.org competition id, "2021" is the Premier League
	APIToken    string        `yaml:"api_token,omitempty"`   // Empty reads FOOTBALL_API_KEY
	WindowDays  int           `yaml:"window_days,omitempty"`
	ObjectName  string        `yaml:"object_name,omitempty"` // Stem of <name>_fixtures_from_<from>_to_<to>.json
	Prefix      string        `yaml:"prefix,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

const (
	BackendBadger     = "badger"
	BackendFilesystem = "filesystem"
)

// GetEffectiveConcurrentBranches reports whether the season and team branches run in parallel
func GetEffectiveConcurrentBranches(c AppConfig) bool {
	if c.ConcurrentBranches != nil {
		return *c.ConcurrentBranches
	}
	return true
}

// GetEffectiveMaxRetries returns the retry count of the direct fetcher
func GetEffectiveMaxRetries(c AppConfig) int {
	if c.MaxRetries != nil {
		return *c.MaxRetries
	}
	return DefaultMaxRetries
}

// GetEffectiveHeadless defaults to a headless browser
func GetEffectiveHeadless(b BrowserConfig) bool {
	if b.Headless != nil {
		return *b.Headless
	}
	return true
}

// GetEffectiveCloudflareBypass defaults to wrapping the transport
func GetEffectiveCloudflareBypass(h HTTPClientConfig) bool {
	if h.CloudflareBypass != nil {
		return *h.CloudflareBypass
	}
	return true
}

// IsRendered reports whether pages of kind are fetched through the browser
func (c *AppConfig) IsRendered(kind models.PageKind) bool {
	return containsKind(c.RenderedKinds, kind)
}

// ShouldNormalize reports whether comment markers are stripped from pages of kind
func (c *AppConfig) ShouldNormalize(kind models.PageKind) bool {
	return containsKind(c.NormalizeKinds, kind)
}

// PlayerPathRegexp returns the compiled player_path_pattern (set by Validate)
func (c *AppConfig) PlayerPathRegexp() *regexp.Regexp {
	if c.playerPathRe == nil {
		c.playerPathRe = regexp.MustCompile(DefaultPlayerPathPattern)
	}
	return c.playerPathRe
}

// LeaguePathPrefix is the path every URL of the configured league starts with
func (c *AppConfig) LeaguePathPrefix() string {
	return "/en/comps/" + c.LeagueID + "/"
}

func containsKind(kinds []models.PageKind, kind models.PageKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
