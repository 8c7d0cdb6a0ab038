package fetch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/parse"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// SessionDeps are the run-scoped collaborators a Session uses.
// Limiter and Permits are shared across sessions so per-host politeness holds for the whole run.
type SessionDeps struct {
	Fetcher PageFetcher
	Limiter *RateLimiter
	Permits *HostSemaphorePool
	Robots  *RobotsGuard // nil disables robots checks
	Cache   *PageCache   // nil disables sharing of league and season pages
}

// Session is the explicit fetch context of one crawl branch. It checks for
// cancellation before every fetch, spaces requests per host, picks the fetch
// mode for the page kind and normalizes the HTML when the kind calls for it.
type Session struct {
	name         string
	cfg          *config.AppConfig
	deps         SessionDeps
	pagesFetched atomic.Int64
	log          *logrus.Entry
}

func NewSession(name string, cfg *config.AppConfig, deps SessionDeps, log *logrus.Entry) *Session {
	return &Session{
		name: name,
		cfg:  cfg,
		deps: deps,
		log:  log.WithField("session", name),
	}
}

// Fetch returns the document for target
func (s *Session) Fetch(ctx context.Context, target models.CrawlTarget) (models.PageDocument, error) {
	if err := ctx.Err(); err != nil {
		return models.PageDocument{}, err
	}

	var html string
	var err error
	if s.deps.Cache != nil && sharedKind(target.Kind()) {
		html, _, err = s.deps.Cache.Get(ctx, target.String(), func(ctx context.Context) (string, error) {
			return s.load(ctx, target)
		})
	} else {
		html, err = s.load(ctx, target)
	}
	if err != nil {
		return models.PageDocument{}, err
	}
	return models.PageDocument{Target: target, HTML: html}, nil
}

// PagesFetched counts network fetches made by this session
func (s *Session) PagesFetched() int64 { return s.pagesFetched.Load() }

func (s *Session) load(ctx context.Context, target models.CrawlTarget) (string, error) {
	if s.deps.Robots != nil {
		allowed := s.deps.Robots.Allowed(ctx, target.URL(), func(ctx context.Context, robotsURL string) (string, error) {
			return s.network(ctx, target.Host(), robotsURL, ModeDirect)
		})
		if !allowed {
			return "", utils.WrapErrorf(utils.ErrRobotsDisallowed, "%s", target.URL())
		}
	}

	mode := ModeDirect
	if s.cfg.IsRendered(target.Kind()) {
		mode = ModeRendered
	}
	html, err := s.network(ctx, target.Host(), target.URL(), mode)
	if err != nil {
		return "", err
	}
	if s.cfg.ShouldNormalize(target.Kind()) {
		html = parse.StripCommentMarkers(html)
	}
	return html, nil
}

// network performs one politeness-controlled fetch: permit, interval, request, timestamp.
func (s *Session) network(ctx context.Context, host, url string, mode Mode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.deps.Permits != nil {
		if err := s.deps.Permits.Acquire(ctx, host); err != nil {
			return "", err
		}
		defer s.deps.Permits.Release(host)
	}
	if s.deps.Limiter != nil {
		if err := s.deps.Limiter.ApplyDelay(ctx, host, s.cfg.MinFetchInterval); err != nil {
			return "", err
		}
		defer s.deps.Limiter.UpdateLastRequestTime(host)
	}

	start := time.Now()
	html, err := s.deps.Fetcher.Fetch(ctx, url, Options{Mode: mode})
	s.pagesFetched.Add(1)

	fetchLog := s.log.WithFields(logrus.Fields{"url": url, "mode": mode, "duration": time.Since(start)})
	if err != nil {
		fetchLog.WithField("error_type", utils.CategorizeError(err)).Debug("Fetch failed")
		return "", err
	}
	fetchLog.Debug("Fetched page")
	return html, nil
}

// League and season pages are read by both branches
func sharedKind(kind models.PageKind) bool {
	return kind == models.PageKindLeague || kind == models.PageKindSeason
}
