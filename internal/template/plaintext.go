package template

import (
	"regexp"
	"strings"
)

var (
	brPattern    = regexp.MustCompile(`(?i)<br\s*/?>`)
	blockEnd     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote)>`)
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
)

// PlainText derives a text/plain body from rendered HTML. Line breaks
// and block boundaries become newlines, all other tags are stripped,
// and runs of blank lines collapse to one.
func PlainText(html string) string {
	out := brPattern.ReplaceAllString(html, "\n")
	out = blockEnd.ReplaceAllString(out, "\n\n")
	out = tagPattern.ReplaceAllString(out, "")
	out = strings.ReplaceAll(out, "&nbsp;", " ")
	out = strings.ReplaceAll(out, "&amp;", "&")
	out = strings.ReplaceAll(out, "&lt;", "<")
	out = strings.ReplaceAll(out, "&gt;", ">")
	out = strings.ReplaceAll(out, "&quot;", `"`)
	out = strings.ReplaceAll(out, "&#39;", "'")
	out = spaceRuns.ReplaceAllString(out, " ")

	lines := strings.Split(out, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out = strings.Join(lines, "\n")
	out = blankRuns.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}
