package cmd

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/teaser"
)

type styles struct {
	Header    lipgloss.Style
	Title     lipgloss.Style
	URL       lipgloss.Style
	Score     lipgloss.Style
	Highlight lipgloss.Style
	Empty     lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		Title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		URL:       lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		Score:     lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Highlight: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("154")),
		Empty:     lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
	}
}

func plainStyles() styles {
	return styles{
		Header:    lipgloss.NewStyle(),
		Title:     lipgloss.NewStyle(),
		URL:       lipgloss.NewStyle(),
		Score:     lipgloss.NewStyle(),
		Highlight: lipgloss.NewStyle(),
		Empty:     lipgloss.NewStyle(),
	}
}

func renderResults(res *engine.Result, st styles) string {
	var b strings.Builder
	b.WriteString(st.Header.Render(teaser.FormatMetric(len(res.Hits), strings.Join(res.Tokens, " "))))
	b.WriteString("\n")
	if len(res.Hits) == 0 {
		if len(res.Tokens) == 0 {
			b.WriteString(st.Empty.Render("nothing to search for"))
			b.WriteString("\n")
		}
		return b.String()
	}
	for i, h := range res.Hits {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%2d. %s  %s\n", i+1, st.Title.Render(h.Breadcrumbs), st.Score.Render(fmt.Sprintf("(%g)", h.Score)))
		fmt.Fprintf(&b, "    %s\n", st.URL.Render(h.URL))
		if h.Teaser != "" {
			fmt.Fprintf(&b, "    %s\n", terminalTeaser(h.Teaser, st.Highlight))
		}
	}
	if res.TotalHits > len(res.Hits) {
		fmt.Fprintf(&b, "\n%s\n", st.Empty.Render(fmt.Sprintf("%d more not shown", res.TotalHits-len(res.Hits))))
	}
	return b.String()
}

// terminalTeaser turns teaser markup into styled plain text.
func terminalTeaser(markup string, hl lipgloss.Style) string {
	var b strings.Builder
	rest := markup
	for {
		open := strings.Index(rest, "<em>")
		if open < 0 {
			b.WriteString(html.UnescapeString(rest))
			return b.String()
		}
		b.WriteString(html.UnescapeString(rest[:open]))
		rest = rest[open+len("<em>"):]
		end := strings.Index(rest, "</em>")
		if end < 0 {
			b.WriteString(hl.Render(html.UnescapeString(rest)))
			return b.String()
		}
		b.WriteString(hl.Render(html.UnescapeString(rest[:end])))
		rest = rest[end+len("</em>"):]
	}
}
