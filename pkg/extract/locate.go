package extract

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Noname397/football-analysis/pkg/utils"
)

// LocatorErrorKind classifies why a rule failed to find its element
type LocatorErrorKind int

const (
	NotFound LocatorErrorKind = iota
	AmbiguousStructure
	MissingContainer
)

func (k LocatorErrorKind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case AmbiguousStructure:
		return "AmbiguousStructure"
	case MissingContainer:
		return "MissingContainer"
	}
	return fmt.Sprintf("LocatorErrorKind(%d)", int(k))
}

// LocatorError is returned by every Rule. It unwraps to the matching utils sentinel.
type LocatorError struct {
	Kind  LocatorErrorKind
	Rule  string
	Count int // elements seen when the kind is AmbiguousStructure
}

func (e *LocatorError) Error() string {
	if e.Kind == AmbiguousStructure {
		return fmt.Sprintf("%s: %s (found %d)", e.Rule, e.Kind, e.Count)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Kind)
}

func (e *LocatorError) Unwrap() error {
	switch e.Kind {
	case AmbiguousStructure:
		return utils.ErrLocatorAmbiguous
	case MissingContainer:
		return utils.ErrLocatorMissingContainer
	}
	return utils.ErrLocatorNotFound
}

// Rule names one structural assumption about a page and finds the element it
// describes. Rules never fall back to scanning outside their container.
type Rule interface {
	Locate(doc *goquery.Document) (*goquery.Selection, error)
	String() string
}

// container resolves the scope a rule searches in. An empty selector is the whole body.
func container(doc *goquery.Document, selector string, rule Rule) (*goquery.Selection, error) {
	if selector == "" {
		selector = "body"
	}
	scope := doc.Find(selector).First()
	if scope.Length() == 0 {
		return nil, &LocatorError{Kind: MissingContainer, Rule: rule.String()}
	}
	return scope, nil
}

// IDMatchRule selects the first table whose id satisfies every non-empty
// constraint. When several tables match, the first in document order wins;
// the site gives no guarantee that this is the intended one.
type IDMatchRule struct {
	Container string
	Prefix    string
	Suffix    string
	Contains  string
}

func (r IDMatchRule) matches(id string) bool {
	return strings.HasPrefix(id, r.Prefix) &&
		strings.HasSuffix(id, r.Suffix) &&
		strings.Contains(id, r.Contains)
}

func (r IDMatchRule) Locate(doc *goquery.Document) (*goquery.Selection, error) {
	scope, err := container(doc, r.Container, r)
	if err != nil {
		return nil, err
	}
	match := scope.Find("table[id]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		id, _ := s.Attr("id")
		return r.matches(id)
	})
	if match.Length() == 0 {
		return nil, &LocatorError{Kind: NotFound, Rule: r.String()}
	}
	return match.First(), nil
}

func (r IDMatchRule) String() string {
	var parts []string
	if r.Prefix != "" {
		parts = append(parts, "prefix="+r.Prefix)
	}
	if r.Suffix != "" {
		parts = append(parts, "suffix="+r.Suffix)
	}
	if r.Contains != "" {
		parts = append(parts, "contains="+r.Contains)
	}
	return fmt.Sprintf("id-match(%s)[%s]", scopeName(r.Container), strings.Join(parts, ","))
}

// SingletonRule asserts the container holds exactly one table
type SingletonRule struct {
	Container string
}

func (r SingletonRule) Locate(doc *goquery.Document) (*goquery.Selection, error) {
	scope, err := container(doc, r.Container, r)
	if err != nil {
		return nil, err
	}
	tables := scope.Find("table")
	switch n := tables.Length(); {
	case n == 0:
		return nil, &LocatorError{Kind: NotFound, Rule: r.String()}
	case n > 1:
		return nil, &LocatorError{Kind: AmbiguousStructure, Rule: r.String(), Count: n}
	}
	return tables, nil
}

func (r SingletonRule) String() string {
	return fmt.Sprintf("singleton(%s)", scopeName(r.Container))
}

// LastBodyRule returns the last tbody in the container. Player pages list
// several stat tables and the detailed per-90 block is conventionally last.
type LastBodyRule struct {
	Container string
}

func (r LastBodyRule) Locate(doc *goquery.Document) (*goquery.Selection, error) {
	scope, err := container(doc, r.Container, r)
	if err != nil {
		return nil, err
	}
	bodies := scope.Find("tbody")
	if bodies.Length() == 0 {
		return nil, &LocatorError{Kind: NotFound, Rule: r.String()}
	}
	return bodies.Last(), nil
}

func (r LastBodyRule) String() string {
	return fmt.Sprintf("last-tbody(%s)", scopeName(r.Container))
}

// FirstAnchorRule returns the first anchor with an href in the first list of the container.
// Later lists are not consulted. Used for navigation blocks such as the league stats menu.
type FirstAnchorRule struct {
	Container string
}

func (r FirstAnchorRule) Locate(doc *goquery.Document) (*goquery.Selection, error) {
	scope, err := container(doc, r.Container, r)
	if err != nil {
		return nil, err
	}
	anchor := scope.Find("ul").First().Find("li a[href]").First()
	if anchor.Length() == 0 {
		return nil, &LocatorError{Kind: NotFound, Rule: r.String()}
	}
	return anchor, nil
}

func (r FirstAnchorRule) String() string {
	return fmt.Sprintf("first-anchor(%s)", scopeName(r.Container))
}

// Href runs an anchor rule and returns the trimmed href of the element found
func Href(doc *goquery.Document, rule Rule) (string, error) {
	sel, err := rule.Locate(doc)
	if err != nil {
		return "", err
	}
	href, _ := sel.Attr("href")
	href = strings.TrimSpace(href)
	if href == "" {
		return "", &LocatorError{Kind: NotFound, Rule: rule.String()}
	}
	return href, nil
}

func scopeName(selector string) string {
	if selector == "" {
		return "body"
	}
	return selector
}
