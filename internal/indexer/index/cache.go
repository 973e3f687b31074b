package index

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/indexer/tokenizer"
)

// DocumentCache owns the parsed corpus for one engine. The corpus is built
// once and never changes afterwards.
type DocumentCache struct {
	once        sync.Once
	built       chan struct{}
	docs        []*Document
	fingerprint string
	tok         *tokenizer.Active
	logger      *slog.Logger
}

func NewDocumentCache(tok *tokenizer.Active) *DocumentCache {
	return &DocumentCache{
		built:  make(chan struct{}),
		tok:    tok,
		logger: slog.Default().With("component", "document-cache"),
	}
}

// BuildOnce turns the payload's document store into Documents ordered by
// ascending id. Later calls return the existing collection and ignore p.
func (c *DocumentCache) BuildOnce(p Payload) []*Document {
	c.once.Do(func() {
		c.docs = buildDocuments(p, c.logger)
		c.fingerprint = fingerprint(c.docs)
		close(c.built)
		c.logger.Info("document cache built",
			"docs", len(c.docs),
			"malformed", p.Malformed,
			"fingerprint", c.fingerprint,
		)
	})
	return c.docs
}

// Built reports whether BuildOnce has run.
func (c *DocumentCache) Built() bool {
	select {
	case <-c.built:
		return true
	default:
		return false
	}
}

// Documents returns the collection, or nil before BuildOnce.
func (c *DocumentCache) Documents() []*Document {
	if !c.Built() {
		return nil
	}
	return c.docs
}

// Fingerprint identifies the corpus contents; empty before BuildOnce.
func (c *DocumentCache) Fingerprint() string {
	if !c.Built() {
		return ""
	}
	return c.fingerprint
}

// EnsureFrequencies tokenizes the document's title and body independently
// with the active tokenizer, unless that already happened.
func (c *DocumentCache) EnsureFrequencies(d *Document) {
	if d.FrequenciesComputed() {
		return
	}
	d.ensureFrequencies(c.tok.Tokenize)
}

func buildDocuments(p Payload, logger *slog.Logger) []*Document {
	docs := make([]*Document, 0, len(p.Docs))
	for key, stored := range p.Docs {
		id, err := strconv.Atoi(key)
		if err != nil || id < 0 {
			logger.Warn("skipping document with non-numeric id", "id", key)
			continue
		}
		breadcrumbs := stored.Breadcrumbs
		if breadcrumbs == "" {
			breadcrumbs = stored.Title
		}
		var url string
		if id < len(p.DocURLs) {
			url = p.DocURLs[id]
		}
		docs = append(docs, &Document{
			ID:          id,
			URL:         url,
			Title:       stored.Title,
			Body:        stored.Body,
			Breadcrumbs: breadcrumbs,
		})
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})
	return docs
}

func fingerprint(docs []*Document) string {
	h := sha256.New()
	for _, d := range docs {
		fmt.Fprintf(h, "%d\x00%s\x00%s\x00%s\x00%s\x01", d.ID, d.URL, d.Title, d.Body, d.Breadcrumbs)
	}
	return fmt.Sprintf("%x", h.Sum(nil)[:16])
}
