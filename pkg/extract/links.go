package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Noname397/football-analysis/pkg/models"
)

// DefaultAnchorSelector matches every anchor that carries an href
const DefaultAnchorSelector = "a[href]"

// LinkPattern decides whether an href is kept
type LinkPattern interface {
	Accept(href string) bool
}

// PathPattern keeps hrefs matching a path-shape regex such as ^/en/players/[^/]+/
type PathPattern struct {
	Re *regexp.Regexp
}

func (p PathPattern) Accept(href string) bool { return p.Re != nil && p.Re.MatchString(href) }

// SubstringPattern keeps hrefs containing a fixed substring such as "/squads/"
type SubstringPattern string

func (p SubstringPattern) Accept(href string) bool { return strings.Contains(href, string(p)) }

// AnyPattern keeps every href
type AnyPattern struct{}

func (AnyPattern) Accept(string) bool { return true }

// ExtractLinks walks the anchors under scope matched by anchorSelector and
// collects the hrefs accepted by p. It also reports how many accepted hrefs
// were collapsed as duplicates. An empty set is a valid result.
func ExtractLinks(scope *goquery.Selection, anchorSelector string, p LinkPattern) (models.LinkSet, int) {
	links := models.NewLinkSet()
	if scope == nil {
		return links, 0
	}
	if anchorSelector == "" {
		anchorSelector = DefaultAnchorSelector
	}
	if p == nil {
		p = AnyPattern{}
	}

	dupes := 0
	scope.Find(anchorSelector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || !p.Accept(href) {
			return
		}
		if !links.Add(href) {
			dupes++
		}
	})
	return links, dupes
}

// RowLinks returns the first anchor href of each body row in document order,
// dropping repeats. Season index tables list the most recent season first.
func RowLinks(table *goquery.Selection) []string {
	if table == nil {
		return nil
	}
	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		rows = table.Find("tr")
	}

	seen := models.NewLinkSet()
	var out []string
	rows.Each(func(_ int, row *goquery.Selection) {
		href, ok := row.Find(DefaultAnchorSelector).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" {
			return
		}
		if seen.Add(href) {
			out = append(out, href)
		}
	})
	return out
}
