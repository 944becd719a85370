// Package sanitize removes model-internal reasoning markup from completions.
package sanitize

import (
	"regexp"
	"strings"
)

// Markers delimiting model-internal reasoning.
const (
	OpenMarker  = "<think>"
	CloseMarker = "</think>"
)

var reasoningSpan = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(OpenMarker) + `.*?` + regexp.QuoteMeta(CloseMarker))

// Reasoning strips every <think>...</think> span and trims the result.
// If nothing but reasoning was present, the input is returned unchanged so
// the caller always has something to show.
func Reasoning(text string) string {
	cleaned := strings.TrimSpace(reasoningSpan.ReplaceAllString(text, ""))
	if cleaned == "" && text != "" {
		return text
	}
	return cleaned
}
