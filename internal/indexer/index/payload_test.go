package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload_WellFormed(t *testing.T) {
	p := ParsePayload([]byte(samplePayload))

	assert.False(t, p.Malformed)
	assert.Equal(t, ResultsOptions{TeaserWordCount: 20, LimitResults: 10}, p.ResultsOptions)
	assert.Equal(t, []string{"intro.html#overview", "guide/install.html#steps"}, p.DocURLs)
	require.Len(t, p.Docs, 2)
	assert.Equal(t, "Install", p.Docs["0"].Title)
	assert.Equal(t, "Guide » Install", p.Docs["1"].Breadcrumbs)
}

func TestParsePayload_ScriptWrapper(t *testing.T) {
	p := ParsePayload([]byte("Object.assign(window.search, " + samplePayload + ");\n"))

	assert.False(t, p.Malformed)
	assert.Len(t, p.Docs, 2)
}

func TestParsePayload_Malformed(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantDocs int
	}{
		{"not json", "<html>404</html>", 0},
		{"empty", "", 0},
		{"missing index", `{"doc_urls": ["a.html"]}`, 0},
		{"missing store", `{"index": {}}`, 0},
		{"docs not an object", `{"index": {"documentStore": {"docs": []}}}`, 0},
		{"bad entry blanked", `{"index": {"documentStore": {"docs": {"0": 7, "1": {"title": "ok"}}}}}`, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePayload([]byte(tt.input))
			assert.Len(t, p.Docs, tt.wantDocs)
		})
	}
}

func TestParsePayload_BadOptionsKeepDocs(t *testing.T) {
	p := ParsePayload([]byte(`{"results_options": "x", "index": {"documentStore": {"docs": {"0": {"title": "a"}}}}}`))

	assert.True(t, p.Malformed)
	assert.Zero(t, p.ResultsOptions)
	assert.Len(t, p.Docs, 1)
}
