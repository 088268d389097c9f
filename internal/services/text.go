package services

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips all markup from free text.
func sanitizeText(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

// humanize turns a snake_case status into title text, "revision_requested" -> "Revision Requested".
func humanize(s string) string {
	// a Caser keeps state between calls
	return cases.Title(language.English).String(strings.ReplaceAll(s, "_", " "))
}
