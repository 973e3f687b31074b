// Package index holds the in-memory document collection parsed from the
// search index payload, together with lazily built per-document token
// frequency tables.
package index

import (
	"sync"
	"sync/atomic"
)

// Document is one searchable page. Frequency tables start uncomputed and are
// filled in at most once.
type Document struct {
	ID          int
	URL         string
	Title       string
	Body        string
	Breadcrumbs string

	freqOnce  sync.Once
	computed  atomic.Bool
	titleFreq map[string]int
	bodyFreq  map[string]int
}

// TitleFreq returns the title frequency table, or nil while uncomputed.
func (d *Document) TitleFreq() map[string]int {
	if !d.computed.Load() {
		return nil
	}
	return d.titleFreq
}

// BodyFreq returns the body frequency table, or nil while uncomputed.
func (d *Document) BodyFreq() map[string]int {
	if !d.computed.Load() {
		return nil
	}
	return d.bodyFreq
}

// FrequenciesComputed reports whether both tables are available.
func (d *Document) FrequenciesComputed() bool {
	return d.computed.Load()
}

func (d *Document) ensureFrequencies(tokenize func(string) []string) {
	d.freqOnce.Do(func() {
		d.titleFreq = BuildFrequencies(tokenize(d.Title))
		d.bodyFreq = BuildFrequencies(tokenize(d.Body))
		d.computed.Store(true)
	})
}

// BuildFrequencies counts occurrences of each token.
func BuildFrequencies(tokens []string) map[string]int {
	freq := make(map[string]int, len(tokens))
	for _, t := range tokens {
		freq[t]++
	}
	return freq
}
