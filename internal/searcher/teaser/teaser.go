// Package teaser renders result snippets and result list markup.
package teaser

import (
	"fmt"
	"html"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"
)

const ellipsis = "…"

// Window bounds the snippet around the anchor, in characters.
type Window struct {
	Before int
	After  int
}

var DefaultWindow = Window{Before: 30, After: 80}

// EscapeHTML escapes & < > " and '.
func EscapeHTML(s string) string {
	return html.EscapeString(s)
}

// Make cuts a window of body around the first occurrence of the first query
// token found in it and wraps every token occurrence in <em>. Matching ignores
// case and the body's own spelling is kept. Everything outside the inserted
// markup is escaped.
func Make(body string, tokens []string, w Window) string {
	if body == "" {
		return ""
	}
	runes := []rune(body)
	anchor := 0
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if i := indexFold(body, t); i >= 0 {
			anchor = utf8.RuneCountInString(body[:i])
			break
		}
	}
	start := max(0, anchor-w.Before)
	end := min(len(runes), anchor+w.After)
	if start > end {
		start = end
	}

	var sb strings.Builder
	if start > 0 {
		sb.WriteString(ellipsis)
	}
	highlight(&sb, string(runes[start:end]), highlightTerms(tokens))
	if end < len(runes) {
		sb.WriteString(ellipsis)
	}
	return sb.String()
}

// highlightTerms returns the distinct non-empty tokens, longest first.
func highlightTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		terms = append(terms, t)
	}
	sort.SliceStable(terms, func(i, j int) bool {
		return utf8.RuneCountInString(terms[i]) > utf8.RuneCountInString(terms[j])
	})
	return terms
}

// hasPrefixFold reports whether s starts with prefix under Unicode case
// folding.
func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// indexFold is strings.Index under case folding, returning a byte offset
// into s.
func indexFold(s, substr string) int {
	for i := range s {
		if hasPrefixFold(s[i:], substr) {
			return i
		}
	}
	return -1
}

func highlight(sb *strings.Builder, text string, terms []string) {
	for i := 0; i < len(text); {
		matched := false
		for _, t := range terms {
			if hasPrefixFold(text[i:], t) {
				sb.WriteString("<em>")
				sb.WriteString(EscapeHTML(text[i : i+len(t)]))
				sb.WriteString("</em>")
				i += len(t)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		sb.WriteString(EscapeHTML(text[i : i+size]))
		i += size
	}
}

// Item is the data needed to render one result list entry.
type Item struct {
	URL         string
	Breadcrumbs string
	Teaser      string
}

// FormatResult renders a result link to pathToRoot+URL that asks the target
// page to highlight the query tokens, followed by the teaser span. n numbers
// the aria-details/id pair and must be unique within a page.
func FormatResult(pathToRoot string, item Item, tokens []string, n int) string {
	href := ResultHref(pathToRoot, item.URL, tokens)
	return fmt.Sprintf(
		`<a href="%s" aria-details="teaser_%d">%s</a><span class="teaser" id="teaser_%d" aria-label="Search Result Teaser">%s</span>`,
		EscapeHTML(href), n, EscapeHTML(item.Breadcrumbs), n, item.Teaser,
	)
}

// ResultHref links to a document URL, keeping its fragment, with a
// highlight parameter carrying the tokens.
func ResultHref(pathToRoot, docURL string, tokens []string) string {
	page, fragment, _ := strings.Cut(docURL, "#")
	return pathToRoot + page + "?highlight=" + EncodeHighlight(tokens) + "#" + fragment
}

// EncodeHighlight percent-encodes the space-joined tokens as one value.
func EncodeHighlight(tokens []string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.Join(tokens, " ")), "+", "%20")
}

// FormatMetric renders the results header line.
func FormatMetric(count int, terms string) string {
	if count == 0 {
		return fmt.Sprintf("未找到: '%s'", terms)
	}
	return fmt.Sprintf("%d 条结果: '%s'", count, terms)
}
