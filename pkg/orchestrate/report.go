package orchestrate

import (
	"fmt"
	"sync"
	"time"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// StageError is a fatal failure at a root stage. It names the page and the rule that failed.
type StageError struct {
	Stage State
	URL   string
	Rule  string
	Err   error
}

func (e *StageError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s failed at %s (rule %s): %v", e.Stage, e.URL, e.Rule, e.Err)
	}
	return fmt.Sprintf("%s failed at %s: %v", e.Stage, e.URL, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// reportBuilder is the run's single mutable aggregate. Branches append through it.
type reportBuilder struct {
	mu     sync.Mutex
	report *models.CrawlReport
}

func newReportBuilder(runID string, startedAt time.Time) *reportBuilder {
	return &reportBuilder{report: &models.CrawlReport{
		RunID:           runID,
		StartedAt:       startedAt,
		FailuresByLevel: make(map[models.PageKind]int),
	}}
}

func (b *reportBuilder) setRoot(leagueURL string, tierOne []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.LeagueURL = leagueURL
	b.report.TierOneLeagues = tierOne
}

func (b *reportBuilder) addSeason(s models.SeasonResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Seasons = append(b.report.Seasons, s)
}

func (b *reportBuilder) addTeam(t models.TeamResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Teams = append(b.report.Teams, t)
}

func (b *reportBuilder) addFailure(level models.PageKind, url string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.Failures = append(b.report.Failures, models.LeafFailure{
		Level:    level,
		URL:      url,
		Category: utils.CategorizeError(err),
		Reason:   err.Error(),
	})
	b.report.FailuresByLevel[level]++
}

func (b *reportBuilder) addPublishFailure(objectPath string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.PublishFailures = append(b.report.PublishFailures, models.PublishFailure{
		ObjectPath: objectPath,
		Category:   utils.CategorizeError(err),
		Reason:     err.Error(),
	})
}

func (b *reportBuilder) addDeduplicated(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.LinksDeduplicated += int64(n)
}

// finish stamps the report and hands it over. The builder must not be used afterwards.
func (b *reportBuilder) finish(finishedAt time.Time, pagesFetched int64, cancelled bool) *models.CrawlReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report.FinishedAt = finishedAt
	b.report.PagesFetched = pagesFetched
	b.report.Cancelled = cancelled
	return b.report
}
