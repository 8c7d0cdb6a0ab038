package utils

import (
	"regexp"
	"strings"
)

var invalidSegmentChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`) // Anything outside a safe object-path segment
var consecutiveUnderscores = regexp.MustCompile(`_+`)

const maxSegmentLength = 100

// SanitizeSegment cleans a string so it can be used as one object-path or directory segment.
// Slugs such as "Manchester-City" pass through unchanged.
func SanitizeSegment(name string) string {
	sanitized := invalidSegmentChars.ReplaceAllString(name, "_")
	sanitized = consecutiveUnderscores.ReplaceAllString(sanitized, "_")
	sanitized = strings.Trim(sanitized, "_. ")

	if len(sanitized) > maxSegmentLength {
		sanitized = strings.Trim(sanitized[:maxSegmentLength], "_. ")
	}

	if sanitized == "" {
		sanitized = "untitled"
	}
	return sanitized
}
