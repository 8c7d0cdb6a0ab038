package models

import (
	"fmt"
	"net/url"
	"sort"
	"time"
)

// PageKind tags a URL with the level of the site hierarchy it belongs to
type PageKind string

const (
	PageKindCompetitions       PageKind = "competitions"
	PageKindLeague             PageKind = "league"
	PageKindSeason             PageKind = "season"
	PageKindTeam               PageKind = "team"
	PageKindPlayer             PageKind = "player"
	PageKindPlayerRecentWindow PageKind = "player-recent-window"
)

// IsValid reports whether k is one of the known page kinds
func (k PageKind) IsValid() bool {
	switch k {
	case PageKindCompetitions, PageKindLeague, PageKindSeason, PageKindTeam, PageKindPlayer, PageKindPlayerRecentWindow:
		return true
	}
	return false
}

// CrawlTarget is an absolute URL plus the kind of page it points at.
// Fields are unexported so a target cannot change after construction.
type CrawlTarget struct {
	url  string
	kind PageKind
}

// NewCrawlTarget validates rawURL (absolute http/https) and kind
func NewCrawlTarget(rawURL string, kind PageKind) (CrawlTarget, error) {
	if !kind.IsValid() {
		return CrawlTarget{}, fmt.Errorf("unknown page kind %q", kind)
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return CrawlTarget{}, fmt.Errorf("invalid %s URL '%s': %w", kind, rawURL, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return CrawlTarget{}, fmt.Errorf("%s URL '%s' is not an absolute http(s) URL", kind, rawURL)
	}
	return CrawlTarget{url: rawURL, kind: kind}, nil
}

func (t CrawlTarget) URL() string    { return t.url }
func (t CrawlTarget) Kind() PageKind { return t.kind }

// Host returns the hostname the target points at (empty for the zero value)
func (t CrawlTarget) Host() string {
	parsed, err := url.Parse(t.url)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

func (t CrawlTarget) String() string { return string(t.kind) + " " + t.url }

// PageDocument is the (possibly comment-stripped) HTML fetched for one target
type PageDocument struct {
	Target CrawlTarget
	HTML   string
}

// LinkSet is an unordered set of relative hrefs
type LinkSet map[string]struct{}

// NewLinkSet creates a LinkSet seeded with hrefs
func NewLinkSet(hrefs ...string) LinkSet {
	s := make(LinkSet, len(hrefs))
	for _, h := range hrefs {
		s.Add(h)
	}
	return s
}

// Add inserts href and reports whether it was new
func (s LinkSet) Add(href string) bool {
	if _, exists := s[href]; exists {
		return false
	}
	s[href] = struct{}{}
	return true
}

func (s LinkSet) Has(href string) bool {
	_, ok := s[href]
	return ok
}

func (s LinkSet) Len() int { return len(s) }

// Sorted returns the hrefs in lexical order. Callers must not read meaning into the order.
func (s LinkSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for h := range s {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// PageDBEntry stores the outcome of fetching a page URL in the visit ledger
type PageDBEntry struct {
	Status      PageStatus `json:"status"`
	Kind        PageKind   `json:"kind"`
	ErrorType   string     `json:"error_type,omitempty"`   // Error category (on failure)
	ProcessedAt time.Time  `json:"processed_at,omitempty"` // Timestamp of successful processing
	LastAttempt time.Time  `json:"last_attempt"`
	ContentHash string     `json:"content_hash,omitempty"` // SHA-256 of the fetched HTML
}

// ObjectMeta describes one published object in the object store
type ObjectMeta struct {
	Path        string    `json:"path"`
	ContentType string    `json:"content_type"`
	Size        int       `json:"size"`
	SHA256      string    `json:"sha256"`
	PublishedAt time.Time `json:"published_at"`
}
