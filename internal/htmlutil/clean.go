// internal/htmlutil/clean.go
package htmlutil

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	sanitizer = bluemonday.UGCPolicy()

	zeroWidthRe  = regexp.MustCompile("[\u200B\u200C\u200D\uFEFF]")
	emptyTagRe   = regexp.MustCompile(`<(p|div|span)[^>]*>\s*</(p|div|span)>`)
	msoStyleRe   = regexp.MustCompile(`\s*style="[^"]*mso-[^"]*"`)
	brRunRe      = regexp.MustCompile(`(<br\s*/?>\s*){3,}`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
)

// CleanHTML normalizes generated or pasted markup before it reaches the
// editor: sanitize untrusted tags, then strip the usual word-processor
// debris the generator tends to echo back.
func CleanHTML(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := sanitizer.Sanitize(raw)

	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = zeroWidthRe.ReplaceAllString(s, "")
	s = emptyTagRe.ReplaceAllString(s, "")
	s = msoStyleRe.ReplaceAllString(s, "")
	s = brRunRe.ReplaceAllString(s, "<br><br>")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// metaDescriptionLimit caps the description at what Tistory displays.
const metaDescriptionLimit = 150

// CleanMetaDescription strips markup and caps the result at 150 runes.
func CleanMetaDescription(raw string) string {
	s := bluemonday.StrictPolicy().Sanitize(raw)
	s = html.UnescapeString(s)
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > metaDescriptionLimit {
		s = strings.TrimSpace(string(runes[:metaDescriptionLimit-3])) + "..."
	}
	return s
}
