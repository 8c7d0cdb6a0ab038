package fetch

import (
	"context"
	"errors"
	"net/url"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// RobotsSource retrieves a robots.txt body. Sessions pass their own rate-limited fetch.
type RobotsSource func(ctx context.Context, robotsURL string) (string, error)

// RobotsGuard fetches robots.txt once per host and answers allow/deny questions
type RobotsGuard struct {
	userAgent string
	cache     map[string]*robotstxt.RobotsData // host -> parsed data, nil when unavailable
	cacheMu   sync.Mutex
	group     singleflight.Group
	log       *logrus.Entry
}

func NewRobotsGuard(userAgent string, log *logrus.Entry) *RobotsGuard {
	return &RobotsGuard{
		userAgent: userAgent,
		cache:     make(map[string]*robotstxt.RobotsData),
		log:       log,
	}
}

// Allowed reports whether targetURL may be fetched. Robots files that cannot be
// retrieved or parsed allow everything; a 4xx robots file also allows everything.
func (g *RobotsGuard) Allowed(ctx context.Context, targetURL string, source RobotsSource) bool {
	u, err := url.Parse(targetURL)
	if err != nil {
		return true
	}
	data := g.data(ctx, u, source)
	if data == nil {
		return true
	}
	return data.TestAgent(u.RequestURI(), g.userAgent)
}

func (g *RobotsGuard) data(ctx context.Context, u *url.URL, source RobotsSource) *robotstxt.RobotsData {
	host := u.Hostname()
	g.cacheMu.Lock()
	data, found := g.cache[host]
	g.cacheMu.Unlock()
	if found {
		return data
	}

	v, _, _ := g.group.Do(host, func() (interface{}, error) {
		robotsURL := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}).String()
		robotsLog := g.log.WithField("robots_url", robotsURL)
		robotsLog.Info("Fetching robots.txt...")

		body, err := source(ctx, robotsURL)
		var parsed *robotstxt.RobotsData
		var fe *FetchError
		switch {
		case err == nil:
			parsed, err = robotstxt.FromStatusAndBytes(200, []byte(body))
		case errors.As(err, &fe) && fe.Kind == KindHTTPStatus && fe.Status < 500:
			parsed, err = robotstxt.FromStatusAndBytes(fe.Status, nil)
		}
		if err != nil {
			robotsLog.Warnf("robots.txt unavailable, allowing all: %v", err)
			parsed = nil
			if ctx.Err() != nil {
				// Do not remember a failure caused by cancellation
				return nil, err
			}
		}

		g.cacheMu.Lock()
		g.cache[host] = parsed
		g.cacheMu.Unlock()
		return parsed, nil
	})
	data, _ = v.(*robotstxt.RobotsData)
	return data
}
