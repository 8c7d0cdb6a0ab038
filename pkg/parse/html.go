package parse

import "strings"

const (
	commentOpen  = "<!--"
	commentClose = "-->"
)

// StripCommentMarkers removes the literal comment delimiters "<!--" and "-->"
// so that tables the site ships inside HTML comments become visible to the
// parser. Text between the markers is kept. Removal repeats until no marker
// remains because deleting one can splice a new one together (e.g. "<!<!---->--").
func StripCommentMarkers(raw string) string {
	out := raw
	for strings.Contains(out, commentOpen) || strings.Contains(out, commentClose) {
		out = strings.ReplaceAll(out, commentOpen, "")
		out = strings.ReplaceAll(out, commentClose, "")
	}
	return out
}
