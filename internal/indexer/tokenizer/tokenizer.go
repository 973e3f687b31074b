// Package tokenizer converts text into ordered search tokens. Two strategies
// exist: a dictionary-based Chinese word segmenter and a regular-expression
// fallback. Active selects between them at runtime and switches to the
// fallback for good the first time the segmenter fails.
package tokenizer

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/wangbin/jiebago"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

// Tokenizer is a single tokenization strategy.
type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

// fallbackPattern matches one CJK unified ideograph or a run of ASCII word
// characters.
var fallbackPattern = regexp.MustCompile(`[\x{4E00}-\x{9FFF}]|[A-Za-z0-9_]+`)

// Fallback splits on whitespace and then extracts fallbackPattern matches
// from every chunk. It never fails.
type Fallback struct{}

func (Fallback) Tokenize(text string) ([]string, error) {
	var tokens []string
	for _, chunk := range strings.Fields(text) {
		tokens = append(tokens, fallbackPattern.FindAllString(chunk, -1)...)
	}
	return clean(tokens), nil
}

// Segmenter tokenizes with the jieba word segmenter, dropping punctuation.
type Segmenter struct {
	seg *jiebago.Segmenter
}

// NewSegmenter loads the jieba dictionary at dictPath.
func NewSegmenter(dictPath string) (*Segmenter, error) {
	seg := new(jiebago.Segmenter)
	if err := seg.LoadDictionary(dictPath); err != nil {
		return nil, fmt.Errorf("loading segmentation dictionary %s: %w", dictPath, err)
	}
	return &Segmenter{seg: seg}, nil
}

func (s *Segmenter) Tokenize(text string) ([]string, error) {
	var tokens []string
	for word := range s.seg.Cut(text, true) {
		if isPunctuation(word) {
			continue
		}
		tokens = append(tokens, word)
	}
	return clean(tokens), nil
}

func isPunctuation(word string) bool {
	for _, r := range word {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// clean trims and lowercases every token and drops the empty ones, keeping
// order and duplicates. Index and query text go through the same strategies,
// so "Install" and "install" meet on one token.
func clean(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

// Active is the runtime-selected tokenizer shared by index building and
// query parsing. It is safe for concurrent use.
type Active struct {
	mu       sync.RWMutex
	primary  Tokenizer
	disabled bool
	fallback Fallback
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewActive returns an Active that uses the fallback until a primary
// strategy is installed. m may be nil.
func NewActive(m *metrics.Metrics) *Active {
	return &Active{
		metrics: m,
		logger:  slog.Default().With("component", "tokenizer"),
	}
}

// Install makes t the preferred strategy unless a previous failure already
// disabled segmentation.
func (a *Active) Install(t Tokenizer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled {
		return
	}
	a.primary = t
}

// Disable switches to the fallback permanently.
func (a *Active) Disable(cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.disabled {
		return
	}
	a.disabled = true
	a.primary = nil
	a.logger.Error("segmentation tokenizer unavailable, using fallback", "error", cause)
	if a.metrics != nil {
		a.metrics.TokenizerFallbacks.Inc()
	}
}

// Strategy names the strategy the next call will use.
func (a *Active) Strategy() string {
	if a.current() != nil {
		return "segmenter"
	}
	return "fallback"
}

// Tokenize never fails: segmenter errors and panics are absorbed by
// switching to the fallback, which then answers this call.
func (a *Active) Tokenize(text string) []string {
	if strings.TrimSpace(text) == "" {
		return []string{}
	}
	if p := a.current(); p != nil {
		tokens, err := safeTokenize(p, text)
		if err == nil {
			return tokens
		}
		a.Disable(err)
	}
	tokens, _ := a.fallback.Tokenize(text)
	return tokens
}

func (a *Active) current() Tokenizer {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.primary
}

func safeTokenize(t Tokenizer, text string) (tokens []string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("tokenizer panicked: %v", p)
		}
	}()
	return t.Tokenize(text)
}
