package parse

import (
	"net"
	"net/url"
	"strings"

	"github.com/Noname397/football-analysis/pkg/utils"
)

// NormalizeURL produces the identity of a URL for the visit ledger.
// Scheme and host are lowercased, default ports dropped, a trailing slash removed
// (except for the root path) and the query and fragment discarded.
// The input is not modified.
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	key := *u

	key.Scheme = strings.ToLower(key.Scheme)
	key.Host = strings.ToLower(key.Host)

	if host, port, err := net.SplitHostPort(key.Host); err == nil {
		if (key.Scheme == "http" && port == "80") || (key.Scheme == "https" && port == "443") {
			key.Host = host
		}
	}

	switch {
	case key.Path == "":
		key.Path = "/"
	case len(key.Path) > 1 && strings.HasSuffix(key.Path, "/"):
		key.Path = strings.TrimSuffix(key.Path, "/")
	}
	key.RawPath = ""
	key.Fragment = ""
	key.RawFragment = ""
	key.RawQuery = ""
	key.ForceQuery = false

	return key.String()
}

// ParseAndNormalize parses urlStr with url.ParseRequestURI and returns its ledger key
func ParseAndNormalize(urlStr string) (string, *url.URL, error) {
	parsed, err := url.ParseRequestURI(urlStr)
	if err != nil {
		return "", nil, err
	}
	return NormalizeURL(parsed), parsed, nil
}

// Absolutize resolves href (usually a site-relative path such as
// "/en/squads/18bb7c10/Arsenal-Stats") against origin. Absolute hrefs are
// returned unchanged.
func Absolutize(origin, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", utils.WrapErrorf(utils.ErrParsing, "empty href for URL resolution")
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", utils.WrapErrorf(utils.ErrParsing, "invalid href URL '%s': %v", href, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	base, err := url.Parse(origin)
	if err != nil || !base.IsAbs() || base.Host == "" {
		return "", utils.WrapErrorf(utils.ErrParsing, "invalid origin URL '%s'", origin)
	}
	return base.ResolveReference(ref).String(), nil
}

// PathHasPrefix reports whether rawURL's path starts with prefix
func PathHasPrefix(rawURL, prefix string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasPrefix(u.Path, prefix)
}
