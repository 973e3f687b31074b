package index

import (
	"bytes"
	"encoding/json"
	"log/slog"
)

// ResultsOptions mirrors the results_options block of the index payload.
type ResultsOptions struct {
	TeaserWordCount int `json:"teaser_word_count"`
	LimitResults    int `json:"limit_results"`
}

// StoredDoc is one entry of the payload's document store.
type StoredDoc struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	Breadcrumbs string `json:"breadcrumbs"`
}

// Payload is the decoded search index asset. Docs keeps the store's keys as
// they appear in the JSON (decimal ids as strings).
type Payload struct {
	ResultsOptions ResultsOptions
	DocURLs        []string
	Docs           map[string]StoredDoc
	// Malformed is set when any part of the payload could not be decoded and
	// was replaced by its empty value.
	Malformed bool
}

// ParsePayload decodes the index asset. It accepts plain JSON as well as the
// generated searchindex.js script (`Object.assign(window.search, {...});`).
// Decoding problems never fail the call: the broken part is left empty and
// the problem is logged, so a malformed index behaves as an empty corpus.
func ParsePayload(data []byte) Payload {
	logger := slog.Default().With("component", "index-payload")
	var p Payload
	var top struct {
		ResultsOptions json.RawMessage `json:"results_options"`
		DocURLs        json.RawMessage `json:"doc_urls"`
		Index          json.RawMessage `json:"index"`
	}
	if err := json.Unmarshal(unwrapScript(data), &top); err != nil {
		logger.Error("search index payload is not valid JSON", "error", err, "bytes", len(data))
		p.Malformed = true
		return p
	}
	if len(top.ResultsOptions) > 0 {
		if err := json.Unmarshal(top.ResultsOptions, &p.ResultsOptions); err != nil {
			logger.Warn("ignoring malformed results_options", "error", err)
			p.Malformed = true
		}
	}
	if len(top.DocURLs) > 0 {
		if err := json.Unmarshal(top.DocURLs, &p.DocURLs); err != nil {
			logger.Warn("ignoring malformed doc_urls", "error", err)
			p.DocURLs = nil
			p.Malformed = true
		}
	}
	var idx struct {
		DocumentStore *struct {
			Docs map[string]json.RawMessage `json:"docs"`
		} `json:"documentStore"`
	}
	if len(top.Index) == 0 || json.Unmarshal(top.Index, &idx) != nil || idx.DocumentStore == nil || idx.DocumentStore.Docs == nil {
		logger.Warn("search index has no usable document store, treating corpus as empty")
		p.Malformed = true
		return p
	}
	p.Docs = make(map[string]StoredDoc, len(idx.DocumentStore.Docs))
	for id, raw := range idx.DocumentStore.Docs {
		var d StoredDoc
		if err := json.Unmarshal(raw, &d); err != nil {
			logger.Debug("blank document for malformed store entry", "id", id, "error", err)
			d = StoredDoc{}
		}
		p.Docs[id] = d
	}
	return p
}

// unwrapScript strips a JavaScript wrapper around the JSON object, if any.
func unwrapScript(data []byte) []byte {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] == '{' {
		return trimmed
	}
	start := bytes.IndexByte(trimmed, '{')
	end := bytes.LastIndexByte(trimmed, '}')
	if start < 0 || end < start {
		return trimmed
	}
	return trimmed[start : end+1]
}
