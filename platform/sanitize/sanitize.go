// Package sanitize cleans free text submitted through web forms before it
// is stored or matched against routing keywords.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTag    = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
	entities   = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// Text strips markup and collapses runs of whitespace into a single space.
// Tags hidden behind entities are stripped after decoding.
func Text(s string) string {
	s = htmlTag.ReplaceAllString(s, " ")
	s = entities.Replace(s)
	s = htmlTag.ReplaceAllString(s, " ")
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}

// Field is Text for single-line fields such as names and company labels.
// Empty input stays empty.
func Field(s string) string {
	if s == "" {
		return ""
	}
	return Text(s)
}
