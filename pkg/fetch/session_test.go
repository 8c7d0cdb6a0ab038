package fetch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// recordingFetcher serves canned pages and records calls
type recordingFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
	modes []Mode
}

func (f *recordingFetcher) Fetch(ctx context.Context, url string, opts Options) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	f.modes = append(f.modes, opts.Mode)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	page, ok := f.pages[url]
	if !ok {
		return "", statusError(url, 404, nil)
	}
	return page, nil
}

func (f *recordingFetcher) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func sessionConfig(t *testing.T, mutate func(*config.AppConfig)) *config.AppConfig {
	t.Helper()
	cfg := &config.AppConfig{MinFetchInterval: 3 * time.Second}
	if mutate != nil {
		mutate(cfg)
	}
	_, err := cfg.Validate()
	require.NoError(t, err)
	return cfg
}

func target(t *testing.T, url string, kind models.PageKind) models.CrawlTarget {
	t.Helper()
	tgt, err := models.NewCrawlTarget(url, kind)
	require.NoError(t, err)
	return tgt
}

const commentedSeason = `<div id="all_results"><!--<table id="results2024-202591_overall"></table>--></div>`

func TestSession_NormalizesOnlyConfiguredKinds(t *testing.T) {
	f := &recordingFetcher{pages: map[string]string{
		"https://fbref.com/en/comps/9/2024-2025/": commentedSeason,
		"https://fbref.com/en/players/abc/Saka":   commentedSeason,
	}}
	cfg := sessionConfig(t, nil)
	s := NewSession("test", cfg, SessionDeps{Fetcher: f}, testLogger())

	season, err := s.Fetch(context.Background(), target(t, "https://fbref.com/en/comps/9/2024-2025/", models.PageKindSeason))
	require.NoError(t, err)
	assert.NotContains(t, season.HTML, "<!--")
	assert.Equal(t, models.PageKindSeason, season.Target.Kind())

	player, err := s.Fetch(context.Background(), target(t, "https://fbref.com/en/players/abc/Saka", models.PageKindPlayer))
	require.NoError(t, err)
	assert.Contains(t, player.HTML, "<!--")
	assert.Equal(t, int64(2), s.PagesFetched())
}

func TestSession_ModeByKind(t *testing.T) {
	f := &recordingFetcher{pages: map[string]string{
		"https://fbref.com/en/squads/x/Arsenal-Stats": "team",
		"https://fbref.com/en/players/abc/Saka":       "player",
	}}
	cfg := sessionConfig(t, func(c *config.AppConfig) {
		c.RenderedKinds = []models.PageKind{models.PageKindPlayer}
	})
	s := NewSession("test", cfg, SessionDeps{Fetcher: f}, testLogger())

	_, err := s.Fetch(context.Background(), target(t, "https://fbref.com/en/squads/x/Arsenal-Stats", models.PageKindTeam))
	require.NoError(t, err)
	_, err = s.Fetch(context.Background(), target(t, "https://fbref.com/en/players/abc/Saka", models.PageKindPlayer))
	require.NoError(t, err)

	assert.Equal(t, []Mode{ModeDirect, ModeRendered}, f.modes)
}

func TestSession_CancelledBeforeFetch(t *testing.T) {
	f := &recordingFetcher{pages: map[string]string{"https://fbref.com/en/comps/": "x"}}
	s := NewSession("test", sessionConfig(t, nil), SessionDeps{Fetcher: f}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Fetch(ctx, target(t, "https://fbref.com/en/comps/", models.PageKindCompetitions))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.calls)
	assert.Equal(t, int64(0), s.PagesFetched())
}

func TestSession_SpacesRequestsPerHost(t *testing.T) {
	clock := newFakeClock()
	f := &recordingFetcher{pages: map[string]string{
		"https://fbref.com/en/players/a/A": "a",
		"https://fbref.com/en/players/b/B": "b",
		"https://fbref.com/en/players/c/C": "c",
	}}
	cfg := sessionConfig(t, nil)
	deps := SessionDeps{
		Fetcher: f,
		Limiter: NewRateLimiter(clock, 0, testLogger()),
		Permits: NewHostSemaphorePool(1, testLogger()),
	}
	s := NewSession("test", cfg, deps, testLogger())

	for _, u := range []string{"https://fbref.com/en/players/a/A", "https://fbref.com/en/players/b/B", "https://fbref.com/en/players/c/C"} {
		_, err := s.Fetch(context.Background(), target(t, u, models.PageKindPlayer))
		require.NoError(t, err)
	}
	// First request is immediate, the next two wait the full interval on the frozen clock
	assert.Equal(t, []time.Duration{3 * time.Second, 3 * time.Second}, clock.Sleeps())
}

func TestSession_SharedCacheFetchesLeagueOnce(t *testing.T) {
	var hits atomic.Int32
	gate := make(chan struct{})
	f := PageFetcherFunc(func(ctx context.Context, url string, opts Options) (string, error) {
		hits.Add(1)
		<-gate
		return "<table></table>", nil
	})
	cfg := sessionConfig(t, func(c *config.AppConfig) { c.MinFetchInterval = time.Millisecond })
	cache := NewPageCache()
	a := NewSession("season-branch", cfg, SessionDeps{Fetcher: f, Cache: cache}, testLogger())
	b := NewSession("team-branch", cfg, SessionDeps{Fetcher: f, Cache: cache}, testLogger())
	league := target(t, "https://fbref.com/en/comps/9/history/Premier-League-Seasons", models.PageKindLeague)

	var wg sync.WaitGroup
	results := make([]string, 2)
	for i, s := range []*Session{a, b} {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			doc, err := s.Fetch(context.Background(), league)
			if err == nil {
				results[i] = doc.HTML
			}
		}(i, s)
	}
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, []string{"<table></table>", "<table></table>"}, results)
	assert.Equal(t, int64(1), a.PagesFetched()+b.PagesFetched())

	// Later reads are served from the cache
	_, err := a.Fetch(context.Background(), league)
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, cache.Len())
}

func TestSession_TeamPagesNotCached(t *testing.T) {
	f := &recordingFetcher{pages: map[string]string{"https://fbref.com/en/squads/x/Arsenal-Stats": "team"}}
	cfg := sessionConfig(t, func(c *config.AppConfig) { c.MinFetchInterval = time.Millisecond })
	s := NewSession("test", cfg, SessionDeps{Fetcher: f, Cache: NewPageCache()}, testLogger())
	tgt := target(t, "https://fbref.com/en/squads/x/Arsenal-Stats", models.PageKindTeam)

	for i := 0; i < 2; i++ {
		_, err := s.Fetch(context.Background(), tgt)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, f.callCount(tgt.URL()))
}

func TestSession_FetchErrorPropagates(t *testing.T) {
	f := &recordingFetcher{errs: map[string]error{
		"https://fbref.com/en/squads/bad/": statusError("https://fbref.com/en/squads/bad/", 503, nil),
	}}
	s := NewSession("test", sessionConfig(t, nil), SessionDeps{Fetcher: f}, testLogger())

	_, err := s.Fetch(context.Background(), target(t, "https://fbref.com/en/squads/bad/", models.PageKindTeam))
	assert.Equal(t, "HTTP_503", utils.CategorizeError(err))
	assert.Equal(t, int64(1), s.PagesFetched())
}

func TestSession_RobotsGuard(t *testing.T) {
	f := &recordingFetcher{pages: map[string]string{
		"https://fbref.com/robots.txt":          "User-agent: *\nDisallow: /en/private/\n",
		"https://fbref.com/en/comps/":           "ok",
		"https://fbref.com/en/private/page/":    "secret",
		"https://other.example/en/comps/9/":     "ok",
		"https://other.example/en/private/x/y/": "ok",
	}}
	cfg := sessionConfig(t, func(c *config.AppConfig) { c.MinFetchInterval = time.Millisecond })
	s := NewSession("test", cfg, SessionDeps{Fetcher: f, Robots: NewRobotsGuard(cfg.UserAgent, testLogger())}, testLogger())

	_, err := s.Fetch(context.Background(), target(t, "https://fbref.com/en/comps/", models.PageKindCompetitions))
	require.NoError(t, err)

	_, err = s.Fetch(context.Background(), target(t, "https://fbref.com/en/private/page/", models.PageKindTeam))
	assert.True(t, errors.Is(err, utils.ErrRobotsDisallowed))
	assert.Equal(t, "Policy_Robots", utils.CategorizeError(err))

	// robots.txt is fetched once per host; a missing file (404) allows everything
	assert.Equal(t, 1, f.callCount("https://fbref.com/robots.txt"))
	_, err = s.Fetch(context.Background(), target(t, "https://other.example/en/private/x/y/", models.PageKindTeam))
	require.NoError(t, err)
	assert.Equal(t, 0, f.callCount("https://fbref.com/en/private/page/"))
}

func TestPageCache_FailedLoadNotCached(t *testing.T) {
	cache := NewPageCache()
	calls := 0
	load := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "page", nil
	}

	_, loaded, err := cache.Get(context.Background(), "k", load)
	assert.Error(t, err)
	assert.True(t, loaded)

	page, loaded, err := cache.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "page", page)

	page, loaded, err = cache.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.True(t, strings.EqualFold(page, "page"))
	assert.Equal(t, 2, calls)
}
