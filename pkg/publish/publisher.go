package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Noname397/football-analysis/pkg/models"
	"github.com/Noname397/football-analysis/pkg/storage"
	"github.com/Noname397/football-analysis/pkg/utils"
)

// Datasets written by a crawl run
const (
	DatasetLeaguePages  = "league_pages"
	DatasetTeamPages    = "team_pages"
	DatasetCrawlReports = "crawl_reports"
)

// ErrorKind separates objects the store refused from transport failures
type ErrorKind int

const (
	KindRejected ErrorKind = iota
	KindNetwork
)

func (k ErrorKind) String() string {
	if k == KindRejected {
		return "rejected"
	}
	return "network"
}

// PublishError reports a failed Publish call
type PublishError struct {
	Kind       ErrorKind
	ObjectPath string
	Err        error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (%s): %v", e.ObjectPath, e.Kind, e.Err)
}

func (e *PublishError) Unwrap() []error {
	sentinel := utils.ErrPublishNetwork
	if e.Kind == KindRejected {
		sentinel = utils.ErrPublishRejected
	}
	return []error{sentinel, e.Err}
}

// Publisher writes raw pages and reports to an object store under deterministic paths
type Publisher struct {
	store  storage.ObjectStore
	prefix string
	now    func() time.Time
	log    *logrus.Entry
}

// New returns a Publisher writing under prefix (leading and trailing slashes are dropped)
func New(store storage.ObjectStore, prefix string, log *logrus.Entry) *Publisher {
	return &Publisher{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		now:    time.Now,
		log:    log.WithField("component", "publisher"),
	}
}

// ObjectPath returns <prefix>/<dataset>/dt=YYYY-MM-DD/<entity>.<ext>.
// The entity is sanitized to a single path segment; the date is taken in UTC.
func (p *Publisher) ObjectPath(dataset string, date time.Time, entity, ext string) string {
	name := utils.SanitizeSegment(entity)
	if ext = strings.TrimPrefix(ext, "."); ext != "" {
		name += "." + ext
	}
	return path.Join(p.prefix, utils.SanitizeSegment(dataset), "dt="+date.UTC().Format("2006-01-02"), name)
}

// Publish stores content at objectPath. Failures come back as *PublishError.
func (p *Publisher) Publish(ctx context.Context, objectPath string, content []byte, contentType string) error {
	if objectPath == "" || strings.HasPrefix(objectPath, "/") {
		return &PublishError{Kind: KindRejected, ObjectPath: objectPath, Err: errors.New("object path must be relative and non-empty")}
	}
	if len(content) == 0 {
		return &PublishError{Kind: KindRejected, ObjectPath: objectPath, Err: errors.New("empty object")}
	}

	meta, err := p.store.PutObject(ctx, objectPath, content, contentType)
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, utils.ErrPublishRejected) {
			kind = KindRejected
		}
		p.log.WithFields(logrus.Fields{"path": objectPath, "kind": kind}).Warnf("Publish failed: %v", err)
		return &PublishError{Kind: kind, ObjectPath: objectPath, Err: err}
	}
	p.log.WithFields(logrus.Fields{"path": objectPath, "size": meta.Size, "sha256": meta.SHA256}).Debug("Published object")
	return nil
}

// PublishPage stores one fetched page as HTML and returns its object path
func (p *Publisher) PublishPage(ctx context.Context, dataset, entity string, doc models.PageDocument) (string, error) {
	objectPath := p.ObjectPath(dataset, p.now(), entity, "html")
	return objectPath, p.Publish(ctx, objectPath, []byte(doc.HTML), "text/html; charset=utf-8")
}

// PublishReport stores the crawl report as indented JSON, dated by the run start
func (p *Publisher) PublishReport(ctx context.Context, report *models.CrawlReport) (string, error) {
	date := report.StartedAt
	if date.IsZero() {
		date = p.now()
	}
	objectPath := p.ObjectPath(DatasetCrawlReports, date, report.RunID, "json")

	content, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return objectPath, &PublishError{Kind: KindRejected, ObjectPath: objectPath, Err: fmt.Errorf("%w: encoding report: %w", utils.ErrParsing, err)}
	}
	return objectPath, p.Publish(ctx, objectPath, content, "application/json")
}
