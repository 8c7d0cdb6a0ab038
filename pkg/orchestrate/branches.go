package orchestrate

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/extract"
	"github.com/Noname397/football-analysis/pkg/fetch"
	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/parse"
	"github.com/Noname397/football-analysis/pkg/publish"
)

var compPathRe = regexp.MustCompile(`^/en/comps/\d+/`)

// Rules for the branch pages
var (
	statsNavRule     = extract.FirstAnchorRule{Container: "#bottom_nav_container"}
	leaguePlayerRule = extract.IDMatchRule{Container: "#all_stats_standard", Prefix: "stats_standard"}
	rosterRule       = extract.IDMatchRule{Prefix: "results", Suffix: "overall"}
	squadPlayerRule  = extract.IDMatchRule{Prefix: "stats_standard"}
	recentWindowRule = extract.FirstAnchorRule{Container: "div.section_heading_text"}
)

// seasonBranch resolves the league stats page of every season window and the
// player URLs listed there
type seasonBranch struct {
	r       *run
	session *fetch.Session
	seasons []string
	machine *machine
	log     *logrus.Entry
}

func newSeasonBranch(r *run, seasons []string) *seasonBranch {
	log := r.log.WithField("branch", "season")
	return &seasonBranch{
		r:       r,
		session: r.session("season-branch"),
		seasons: seasons,
		machine: newMachine("season-branch", StateSeasonsResolved, log),
		log:     log,
	}
}

// crawl returns an error only when the run is cancelled
func (b *seasonBranch) crawl(ctx context.Context) error {
	results := make([]models.SeasonResult, 0, len(b.seasons))
	for _, seasonURL := range b.seasons {
		statsURL, err := b.statsURL(ctx, seasonURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WithField("url", seasonURL).Warnf("Season skipped: %v", err)
			b.r.report.addFailure(models.PageKindSeason, seasonURL, err)
			continue
		}
		results = append(results, models.SeasonResult{SeasonURL: seasonURL, StatsURL: statsURL})
	}
	if err := b.machine.advance(StateLeagueStatsResolved); err != nil {
		return err
	}

	for _, season := range results {
		players, err := b.playerURLs(ctx, season.StatsURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.log.WithField("url", season.StatsURL).Warnf("Season player list skipped: %v", err)
			b.r.report.addFailure(models.PageKindSeason, season.StatsURL, err)
			continue
		}
		season.PlayerURLs = players
		b.r.report.addSeason(season)
		b.log.WithFields(logrus.Fields{"season": season.SeasonURL, "players": len(players)}).Info("Season players resolved")
	}
	return b.machine.advance(StatePlayersResolved)
}

// statsURL follows the first entry of the season page's bottom navigation
func (b *seasonBranch) statsURL(ctx context.Context, seasonURL string) (string, error) {
	doc, err := b.r.fetchDocument(ctx, b.session, seasonURL, models.PageKindSeason)
	if err != nil {
		return "", err
	}
	href, err := extract.Href(doc, statsNavRule)
	if err != nil {
		return "", err
	}
	return parse.Absolutize(b.r.cfg.SiteOrigin, href)
}

func (b *seasonBranch) playerURLs(ctx context.Context, statsURL string) ([]string, error) {
	doc, err := b.r.fetchDocument(ctx, b.session, statsURL, models.PageKindSeason)
	if err != nil {
		return nil, err
	}
	table, err := leaguePlayerRule.Locate(doc)
	if err != nil {
		return nil, err
	}
	links, dupes := extract.ExtractLinks(table, extract.DefaultAnchorSelector, extract.PathPattern{Re: b.r.playerRe})
	b.r.report.addDeduplicated(dupes)
	return b.r.absolutizeAll(links.Sorted(), models.PageKindPlayer), nil
}

// teamBranch walks the roster of one season: every team, then every player of that team
type teamBranch struct {
	r         *run
	session   *fetch.Session
	seasonURL string
	machine   *machine
	log       *logrus.Entry
}

func newTeamBranch(r *run, seasonURL string) *teamBranch {
	log := r.log.WithField("branch", "team")
	return &teamBranch{
		r:         r,
		session:   r.session("team-branch"),
		seasonURL: seasonURL,
		machine:   newMachine("team-branch", StateSeasonsResolved, log),
		log:       log,
	}
}

// crawl returns an error only when the run is cancelled. A team is reported
// once all of its players are processed; a cancelled team is dropped.
func (b *teamBranch) crawl(ctx context.Context) error {
	teams, err := b.teamURLs(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b.log.WithField("url", b.seasonURL).Errorf("No team roster: %v", err)
		b.r.report.addFailure(models.PageKindSeason, b.seasonURL, err)
		return nil
	}
	b.log.Infof("Found %d teams", len(teams))

	for _, teamURL := range teams {
		team, ok, err := b.crawlTeam(ctx, teamURL)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		b.r.report.addTeam(team)
		if err := b.machine.advance(StateTeamDone); err != nil {
			return err
		}
		b.log.WithFields(logrus.Fields{"team": team.TeamName, "players": len(team.Players)}).Info("Team done")
	}
	return nil
}

func (b *teamBranch) teamURLs(ctx context.Context) ([]string, error) {
	doc, err := b.r.fetchDocument(ctx, b.session, b.seasonURL, models.PageKindSeason)
	if err != nil {
		return nil, err
	}
	table, err := rosterRule.Locate(doc)
	if err != nil {
		return nil, err
	}
	links, dupes := extract.ExtractLinks(table, extract.DefaultAnchorSelector, extract.SubstringPattern("/squads/"))
	b.r.report.addDeduplicated(dupes)
	return b.r.absolutizeAll(links.Sorted(), models.PageKindTeam), nil
}

// claim marks a leaf in the ledger. false means another team or branch already took it.
func (b *teamBranch) claim(rawURL string) (string, bool) {
	key := ledgerKey(rawURL)
	added, err := b.r.ledger.MarkPageVisited(key)
	if err != nil {
		// A broken ledger must not stop the crawl; the page is fetched anyway
		b.log.WithField("key", key).Warnf("Ledger unavailable: %v", err)
		return key, true
	}
	if !added {
		b.r.report.addDeduplicated(1)
	}
	return key, added
}

// fail records a leaf failure in the report and the ledger
func (b *teamBranch) fail(level models.PageKind, key, rawURL string, err error) {
	b.log.WithFields(logrus.Fields{"url": rawURL, "level": level}).Warnf("Leaf skipped: %v", err)
	b.r.report.addFailure(level, rawURL, err)
	b.r.recordLeaf(key, level, models.PageDocument{}, err)
}

func (b *teamBranch) crawlTeam(ctx context.Context, teamURL string) (models.TeamResult, bool, error) {
	key, fresh := b.claim(teamURL)
	if !fresh {
		return models.TeamResult{}, false, nil
	}

	doc, page, err := b.r.fetchPage(ctx, b.session, teamURL, models.PageKindTeam)
	if err != nil {
		if ctx.Err() != nil {
			return models.TeamResult{}, false, ctx.Err()
		}
		b.fail(models.PageKindTeam, key, teamURL, err)
		return models.TeamResult{}, false, nil
	}
	teamName := slugName(teamURL)
	b.r.publishPage(ctx, publish.DatasetTeamPages, teamName, page)

	table, err := squadPlayerRule.Locate(doc)
	if err != nil {
		b.fail(models.PageKindTeam, key, teamURL, err)
		return models.TeamResult{}, false, nil
	}
	links, dupes := extract.ExtractLinks(table, extract.DefaultAnchorSelector, extract.PathPattern{Re: b.r.playerRe})
	b.r.report.addDeduplicated(dupes)
	players := b.r.absolutizeAll(links.Sorted(), models.PageKindPlayer)
	if limit := b.r.cfg.MaxPlayersPerTeam; limit > 0 && len(players) > limit {
		players = players[:limit]
	}
	b.r.recordLeaf(key, models.PageKindTeam, page, nil)

	team := models.TeamResult{TeamName: teamName, URL: teamURL, Players: make([]models.PlayerResult, 0, len(players))}
	for _, playerURL := range players {
		player, ok, err := b.crawlPlayer(ctx, playerURL)
		if err != nil {
			return models.TeamResult{}, false, err
		}
		if ok {
			team.Players = append(team.Players, player)
		}
	}
	return team, true, nil
}

// playerOutcome is the result of the one fetch of a player page. Every team
// listing the player reuses it.
type playerOutcome struct {
	player models.PlayerResult
	level  models.PageKind // set with err
	url    string          // page that failed
	err    error
}

// playerOutcomes holds the player outcomes of one run by ledger key
type playerOutcomes struct {
	mu sync.Mutex
	m  map[string]playerOutcome
}

func newPlayerOutcomes() *playerOutcomes {
	return &playerOutcomes{m: make(map[string]playerOutcome)}
}

func (p *playerOutcomes) store(key string, out playerOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = out
}

func (p *playerOutcomes) load(key string) (playerOutcome, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out, ok := p.m[key]
	return out, ok
}

func (b *teamBranch) crawlPlayer(ctx context.Context, playerURL string) (models.PlayerResult, bool, error) {
	key, fresh := b.claim(playerURL)
	if !fresh {
		return b.reusePlayer(key, playerURL)
	}

	out, page, err := b.fetchPlayer(ctx, playerURL)
	if err != nil {
		return models.PlayerResult{}, false, err
	}
	b.r.players.store(key, out)
	if out.err != nil {
		b.fail(out.level, key, out.url, out.err)
		return models.PlayerResult{}, false, nil
	}
	b.r.recordLeaf(key, models.PageKindPlayer, page, nil)
	return out.player, true, nil
}

// reusePlayer hands a team the outcome of a player page another team claimed
// earlier in the run. A failed fetch is reported again for this team.
func (b *teamBranch) reusePlayer(key, playerURL string) (models.PlayerResult, bool, error) {
	out, ok := b.r.players.load(key)
	if !ok {
		// Claimed outside this run, e.g. by an earlier Run on the same ledger
		return models.PlayerResult{}, false, nil
	}
	if out.err != nil {
		b.log.WithFields(logrus.Fields{"url": playerURL, "level": out.level}).Warnf("Shared player skipped: %v", out.err)
		b.r.report.addFailure(out.level, out.url, out.err)
		return models.PlayerResult{}, false, nil
	}
	player := out.player
	player.Stats = append([]models.StatRecord(nil), out.player.Stats...)
	return player, true, nil
}

// fetchPlayer fetches a player page and its stats. Page and extraction
// failures are returned in the outcome; the error is set only on cancellation.
func (b *teamBranch) fetchPlayer(ctx context.Context, playerURL string) (playerOutcome, models.PageDocument, error) {
	failed := func(level models.PageKind, rawURL string, err error) (playerOutcome, models.PageDocument, error) {
		if ctx.Err() != nil {
			return playerOutcome{}, models.PageDocument{}, ctx.Err()
		}
		return playerOutcome{level: level, url: rawURL, err: err}, models.PageDocument{}, nil
	}

	doc, page, err := b.r.fetchPage(ctx, b.session, playerURL, models.PageKindPlayer)
	if err != nil {
		return failed(models.PageKindPlayer, playerURL, err)
	}

	player := models.PlayerResult{PlayerName: slugName(playerURL), URL: playerURL}
	if href, err := extract.Href(doc, recentWindowRule); err == nil {
		if abs, err := parse.Absolutize(b.r.cfg.SiteOrigin, href); err == nil {
			player.RecentWindowURL = abs
		}
	}

	statsDoc := doc
	if b.r.cfg.FetchRecentWindow && player.RecentWindowURL != "" {
		statsDoc, err = b.r.fetchDocument(ctx, b.session, player.RecentWindowURL, models.PageKindPlayerRecentWindow)
		if err != nil {
			return failed(models.PageKindPlayerRecentWindow, player.RecentWindowURL, err)
		}
	}

	body, err := extract.LastBodyRule{Container: b.r.cfg.PlayerStatsContainer}.Locate(statsDoc)
	if err != nil {
		return failed(models.PageKindPlayer, playerURL, err)
	}
	records, skipped := extract.ExtractRecords(body)
	if skipped > 0 {
		b.log.WithFields(logrus.Fields{"url": playerURL, "skipped_rows": skipped}).Debug("Skipped malformed stat rows")
	}
	player.Stats = records
	return playerOutcome{player: player}, page, nil
}

// ledgerKey is the normalized form of a leaf URL
func ledgerKey(rawURL string) string {
	key, _, err := parse.ParseAndNormalize(rawURL)
	if err != nil {
		return rawURL
	}
	return key
}

// slugName derives a display name from the last path segment:
// /en/squads/18bb7c10/Arsenal-Stats -> Arsenal
func slugName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	name := strings.TrimSuffix(path.Base(strings.TrimSuffix(u.Path, "/")), "-Stats")
	if name == "" || name == "." || name == "/" {
		return u.Host
	}
	return name
}
