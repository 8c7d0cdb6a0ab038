package fixtures

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/fetch"
	"github.com/Noname397/football-analysis/pkg/publish"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// Dataset is the object dataset the raw API responses are published under
const Dataset = "fixtures"

const dateLayout = "2006-01-02"

// Window is a range of match days, both ends included
type Window struct {
	From time.Time
	To   time.Time
}

// NewWindow starts at the UTC day of now and spans days more days
func NewWindow(now time.Time, days int) Window {
	y, m, d := now.UTC().Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return Window{From: from, To: from.AddDate(0, 0, days)}
}

func (w Window) String() string {
	return w.From.Format(dateLayout) + ".." + w.To.Format(dateLayout)
}

// Match is the part of a football-data.org match the ingest logs and counts
type Match struct {
	ID       int    `json:"id"`
	UTCDate  string `json:"utcDate"`
	Status   string `json:"status"`
	Matchday int    `json:"matchday"`
	HomeTeam struct {
		Name string `json:"name"`
	} `json:"homeTeam"`
	AwayTeam struct {
		Name string `json:"name"`
	} `json:"awayTeam"`
}

type matchesResponse struct {
	Matches []Match `json:"matches"`
}

// Client calls the football-data.org v4 API
type Client struct {
	client *resty.Client
	log    *logrus.Entry
}

// NewClient builds a resty client authenticated with the X-Auth-Token header.
// Network errors, 5xx and 429 responses are retried with the crawl's retry settings.
func NewClient(httpClient *http.Client, app *config.AppConfig, token string, log *logrus.Entry) *Client {
	client := resty.NewWithClient(httpClient).
		SetBaseURL(app.Fixtures.APIURL).
		SetTimeout(app.Fixtures.Timeout).
		SetHeader("X-Auth-Token", token).
		SetHeader("Accept", "application/json").
		SetRetryCount(config.GetEffectiveMaxRetries(*app)).
		SetRetryWaitTime(app.InitialRetryDelay).
		SetRetryMaxWaitTime(app.MaxRetryDelay).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil || r == nil {
				return true
			}
			return r.StatusCode() >= 500 || r.StatusCode() == http.StatusTooManyRequests
		})
	return &Client{client: client, log: log.WithField("component", "fixtures-client")}
}

// Matches returns the raw JSON listing the competition's matches in the window
// and the matches decoded from it
func (c *Client) Matches(ctx context.Context, competition string, w Window) ([]byte, []Match, error) {
	req := c.client.R().
		SetContext(ctx).
		SetPathParam("competition", competition).
		SetQueryParams(map[string]string{
			"dateFrom": w.From.Format(dateLayout),
			"dateTo":   w.To.Format(dateLayout),
		})
	resp, err := req.Get("/competitions/{competition}/matches")
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		return nil, nil, &fetch.FetchError{Kind: fetch.KindNetwork, URL: c.client.BaseURL, Err: err}
	}

	reqLog := c.log.WithFields(logrus.Fields{"url": resp.Request.URL, "status_code": resp.StatusCode(), "attempts": resp.Request.Attempt})
	if resp.IsError() || resp.StatusCode() >= 300 {
		reqLog.Warn("Fixtures request failed")
		return nil, nil, &fetch.FetchError{Kind: fetch.KindHTTPStatus, Status: resp.StatusCode(), URL: resp.Request.URL}
	}

	body := resp.Body()
	var decoded matchesResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, nil, utils.WrapErrorf(utils.ErrParsing, "decode fixtures response: %v", err)
	}
	reqLog.WithField("matches", len(decoded.Matches)).Debug("Fixtures fetched")
	return body, decoded.Matches, nil
}

// Result describes one ingest
type Result struct {
	Window     Window
	Matches    []Match
	Raw        []byte
	ObjectPath string // empty when nothing was published
}

// Ingester fetches the upcoming fixtures and publishes the raw response
type Ingester struct {
	client    *Client
	publisher *publish.Publisher // nil skips publishing
	cfg       config.FixturesConfig
	now       func() time.Time
	log       *logrus.Entry
}

func NewIngester(client *Client, publisher *publish.Publisher, cfg config.FixturesConfig, log *logrus.Entry) *Ingester {
	return &Ingester{
		client:    client,
		publisher: publisher,
		cfg:       cfg,
		now:       time.Now,
		log:       log.WithField("component", "fixtures"),
	}
}

// ObjectName is <name>_fixtures_from_<from>_to_<to>
func ObjectName(name string, w Window) string {
	return fmt.Sprintf("%s_fixtures_from_%s_to_%s", name, w.From.Format(dateLayout), w.To.Format(dateLayout))
}

// Run fetches the fixtures of the window starting today. The object is dated by the run day.
func (i *Ingester) Run(ctx context.Context) (*Result, error) {
	runAt := i.now()
	w := NewWindow(runAt, i.cfg.WindowDays)
	log := i.log.WithFields(logrus.Fields{"competition": i.cfg.Competition, "window": w.String()})

	raw, matches, err := i.client.Matches(ctx, i.cfg.Competition, w)
	if err != nil {
		return nil, fmt.Errorf("fetch fixtures: %w", err)
	}
	res := &Result{Window: w, Matches: matches, Raw: raw}
	log.Infof("Fetched %d fixtures", len(matches))

	if i.publisher == nil {
		return res, nil
	}
	objectPath := i.publisher.ObjectPath(Dataset, runAt, ObjectName(i.cfg.ObjectName, w), "json")
	if err := i.publisher.Publish(ctx, objectPath, raw, "application/json"); err != nil {
		return res, err
	}
	res.ObjectPath = objectPath
	log.WithField("path", objectPath).Info("Fixtures published")
	return res, nil
}
