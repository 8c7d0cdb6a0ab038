package orchestrate

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Noname397/football-analysis/pkg/config"
	"github.com/Noname397/football-analysis/pkg/extract"
	"github.com/Noname397/football-analysis/pkg/fetch"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/parse"
	"github.com/Noname397/football-analysis/pkg/publish"
	"github.com/Noname397/football-analysis/pkg/storage"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// Deps are the collaborators of one Orchestrator
type Deps struct {
	Fetcher   fetch.PageFetcher
	Ledger    storage.PageLedger // nil uses an in-memory ledger
	Publisher *publish.Publisher // nil disables publishing
	Clock     fetch.Clock        // nil uses the real clock
}

// Orchestrator drives one crawl run: competitions, league, seasons, then the
// season/player and team branches.
type Orchestrator struct {
	cfg      *config.AppConfig
	deps     Deps
	ledger   storage.PageLedger
	shared   fetch.SessionDeps // limiter, permits, cache and robots shared by every session of a run
	playerRe *regexp.Regexp
	now      func() time.Time
	newRunID func() string
	log      *logrus.Entry
}

// New returns an Orchestrator for cfg. cfg must already be validated.
func New(cfg *config.AppConfig, deps Deps, log *logrus.Entry) *Orchestrator {
	log = log.WithField("component", "orchestrator")
	ledger := deps.Ledger
	if ledger == nil {
		ledger = storage.NewMemoryStore()
	}

	shared := fetch.SessionDeps{
		Fetcher: deps.Fetcher,
		Limiter: fetch.NewRateLimiter(deps.Clock, cfg.JitterFraction, log),
		Permits: fetch.NewHostSemaphorePool(cfg.MaxRequestsPerHost, log),
		Cache:   fetch.NewPageCache(),
	}
	if cfg.RespectRobots {
		shared.Robots = fetch.NewRobotsGuard(cfg.UserAgent, log)
	}

	return &Orchestrator{
		cfg:      cfg,
		deps:     deps,
		ledger:   ledger,
		shared:   shared,
		playerRe: cfg.PlayerPathRegexp(),
		now:      time.Now,
		newRunID: uuid.NewString,
		log:      log,
	}
}

// run holds the state of one Run call
type run struct {
	*Orchestrator
	id       string
	report   *reportBuilder
	players  *playerOutcomes
	machine  *machine
	sessions []*fetch.Session
	log      *logrus.Entry
}

func (r *run) session(name string) *fetch.Session {
	s := fetch.NewSession(name, r.cfg, r.shared, r.log)
	r.sessions = append(r.sessions, s)
	return s
}

func (r *run) pagesFetched() int64 {
	var n int64
	for _, s := range r.sessions {
		n += s.PagesFetched()
	}
	return n
}

// Run crawls once and returns the report. Leaf failures are recorded in the
// report; a root-stage failure returns a *StageError with the partial report.
// On cancellation the partial report has Cancelled set and ctx.Err() is returned.
func (o *Orchestrator) Run(ctx context.Context) (*models.CrawlReport, error) {
	if o.cfg.GlobalCrawlTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.GlobalCrawlTimeout)
		defer cancel()
	}

	startedAt := o.now()
	r := &run{Orchestrator: o, id: o.newRunID()}
	r.log = o.log.WithField("run_id", r.id)
	r.report = newReportBuilder(r.id, startedAt.UTC())
	r.players = newPlayerOutcomes()
	r.machine = newMachine("run", StateStart, r.log)

	err := r.execute(ctx)
	cancelled := ctx.Err() != nil
	report := r.report.finish(o.now().UTC(), r.pagesFetched(), cancelled)

	switch {
	case cancelled:
		r.log.Warnf("Crawl cancelled: %v", ctx.Err())
		err = ctx.Err()
	case err == nil:
		if tErr := r.machine.advance(StateReportReady); tErr != nil {
			err = tErr
		}
	}
	r.logSummary(report, o.now().Sub(startedAt))
	return report, err
}

func (r *run) execute(ctx context.Context) error {
	root := r.session("root")

	leagueURL, err := r.resolveCompetitions(ctx, root)
	if err != nil {
		return err
	}
	if err := r.machine.advance(StateCompetitionsResolved); err != nil {
		return err
	}

	seasons, err := r.resolveSeasons(ctx, root, leagueURL)
	if err != nil {
		return err
	}
	if err := r.machine.advance(StateSeasonsResolved); err != nil {
		return err
	}

	// The team branch reads the roster of the most recent season
	seasonBranch := newSeasonBranch(r, seasons)
	teamBranch := newTeamBranch(r, seasons[0])

	if !config.GetEffectiveConcurrentBranches(*r.cfg) {
		if err := seasonBranch.crawl(ctx); err != nil {
			return err
		}
		return teamBranch.crawl(ctx)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return seasonBranch.crawl(gctx) })
	g.Go(func() error { return teamBranch.crawl(gctx) })
	return g.Wait()
}

// resolveCompetitions finds the tier-one table on the competitions root and
// picks the configured league from it.
func (r *run) resolveCompetitions(ctx context.Context, s *fetch.Session) (string, error) {
	stage := StateCompetitionsResolved
	doc, err := r.fetchDocument(ctx, s, r.cfg.CompetitionsURL, models.PageKindCompetitions)
	if err != nil {
		return "", r.stageError(ctx, stage, r.cfg.CompetitionsURL, "", err)
	}

	rule := extract.IDMatchRule{Contains: "1"}
	table, err := rule.Locate(doc)
	if err != nil {
		return "", r.stageError(ctx, stage, r.cfg.CompetitionsURL, rule.String(), err)
	}
	links, dupes := extract.ExtractLinks(table, ".gender-m a[href]", extract.PathPattern{Re: compPathRe})
	r.report.addDeduplicated(dupes)

	tierOne := r.absolutizeAll(links.Sorted(), models.PageKindLeague)
	var league string
	for _, u := range tierOne {
		if parse.PathHasPrefix(u, r.cfg.LeaguePathPrefix()) {
			league = u
			break
		}
	}
	if league == "" {
		err := utils.WrapErrorf(utils.ErrLocatorNotFound, "no tier-one league under %s among %d leagues", r.cfg.LeaguePathPrefix(), len(tierOne))
		return "", r.stageError(ctx, stage, r.cfg.CompetitionsURL, rule.String(), err)
	}

	r.report.setRoot(league, tierOne)
	r.log.WithFields(logrus.Fields{"tier_one": len(tierOne), "league_url": league}).Info("Competitions resolved")
	return league, nil
}

// resolveSeasons reads the season index of the league, newest first, and keeps num_seasons of them
func (r *run) resolveSeasons(ctx context.Context, s *fetch.Session, leagueURL string) ([]string, error) {
	stage := StateSeasonsResolved
	doc, page, err := r.fetchPage(ctx, s, leagueURL, models.PageKindLeague)
	if err != nil {
		return nil, r.stageError(ctx, stage, leagueURL, "", err)
	}
	r.publishPage(ctx, publish.DatasetLeaguePages, slugName(leagueURL), page)

	rule := extract.SingletonRule{}
	table, err := rule.Locate(doc)
	if err != nil {
		return nil, r.stageError(ctx, stage, leagueURL, rule.String(), err)
	}
	hrefs := extract.RowLinks(table)
	if len(hrefs) > r.cfg.NumSeasons {
		hrefs = hrefs[:r.cfg.NumSeasons]
	}
	seasons := r.absolutizeAll(hrefs, models.PageKindSeason)
	if len(seasons) == 0 {
		err := utils.WrapErrorf(utils.ErrLocatorNotFound, "season index has no season links")
		return nil, r.stageError(ctx, stage, leagueURL, rule.String(), err)
	}

	r.log.WithField("seasons", seasons).Info("Seasons resolved")
	return seasons, nil
}

// fetchDocument fetches a page through s and parses it
func (r *run) fetchDocument(ctx context.Context, s *fetch.Session, rawURL string, kind models.PageKind) (*goquery.Document, error) {
	doc, _, err := r.fetchPage(ctx, s, rawURL, kind)
	return doc, err
}

func (r *run) fetchPage(ctx context.Context, s *fetch.Session, rawURL string, kind models.PageKind) (*goquery.Document, models.PageDocument, error) {
	target, err := models.NewCrawlTarget(rawURL, kind)
	if err != nil {
		return nil, models.PageDocument{}, utils.WrapErrorf(utils.ErrParsing, "invalid crawl target URL: %v", err)
	}
	page, err := s.Fetch(ctx, target)
	if err != nil {
		return nil, models.PageDocument{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return nil, page, utils.WrapErrorf(utils.ErrParsing, "parse HTML of %s: %v", rawURL, err)
	}
	return doc, page, nil
}

// stageError wraps a root-stage failure, unless the run was cancelled
func (r *run) stageError(ctx context.Context, stage State, url, rule string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	stageErr := &StageError{Stage: stage, URL: url, Rule: rule, Err: err}
	r.log.WithFields(logrus.Fields{"state": stage, "url": url, "error_type": utils.CategorizeError(err)}).Error(stageErr.Error())
	return stageErr
}

// absolutizeAll resolves hrefs against the site origin, dropping (and recording) any that do not resolve
func (r *run) absolutizeAll(hrefs []string, kind models.PageKind) []string {
	out := make([]string, 0, len(hrefs))
	for _, href := range hrefs {
		abs, err := parse.Absolutize(r.cfg.SiteOrigin, href)
		if err != nil {
			r.report.addFailure(kind, href, err)
			continue
		}
		out = append(out, abs)
	}
	return out
}

// publishPage hands a fetched page to the publisher. Failures are recorded, never returned.
func (r *run) publishPage(ctx context.Context, dataset, entity string, page models.PageDocument) {
	if r.deps.Publisher == nil {
		return
	}
	objectPath, err := r.deps.Publisher.PublishPage(ctx, dataset, entity, page)
	if err != nil {
		r.report.addPublishFailure(objectPath, err)
	}
}

// recordLeaf marks a leaf page's outcome in the ledger
func (r *run) recordLeaf(key string, kind models.PageKind, page models.PageDocument, leafErr error) {
	now := r.now()
	entry := &models.PageDBEntry{Status: models.PageStatusSuccess, Kind: kind, LastAttempt: now}
	if leafErr != nil {
		entry.Status = models.PageStatusFailure
		entry.ErrorType = utils.CategorizeError(leafErr)
	} else {
		entry.ProcessedAt = now
		entry.ContentHash = utils.CalculateStringSHA256(page.HTML)
	}
	if err := r.ledger.UpdatePageStatus(key, entry); err != nil {
		r.log.WithField("key", key).Warnf("Could not record page status: %v", err)
	}
}

func (r *run) logSummary(report *models.CrawlReport, duration time.Duration) {
	r.log.Info("============================================")
	r.log.Infof("Crawl finished in %v", duration.Round(time.Millisecond))
	r.log.Info(report.Summary())
	r.log.Infof("Pages fetched: %d, links deduplicated: %d", report.PagesFetched, report.LinksDeduplicated)
	for level, n := range report.FailuresByLevel {
		r.log.Infof("  %s failures: %d", level, n)
	}
	r.log.Info("============================================")
}
