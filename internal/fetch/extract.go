package fetch

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// htmlTagRe matches HTML tags, the fallback when goquery can't parse.
var htmlTagRe = regexp.MustCompile(`<[^>]*>`)

// whitespaceRe matches runs of whitespace.
var whitespaceRe = regexp.MustCompile(`\s+`)

// ExtractText strips markup from feed/API payload fragments and returns
// plain text. Best-effort: third-party feeds embed arbitrary markup, so
// this is a narrow boundary the pipeline calls instead of scraping inline.
func ExtractText(html string) string {
	if html == "" {
		return ""
	}
	if !strings.ContainsRune(html, '<') {
		return collapseWhitespace(html)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapseWhitespace(htmlTagRe.ReplaceAllString(html, " "))
	}
	doc.Find("script").Remove()
	doc.Find("style").Remove()
	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Truncate shortens a string to maxLen runes, adding "..." if truncated.
// Uses rune-aware slicing to avoid breaking UTF-8 characters.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}
