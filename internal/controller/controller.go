// Package controller runs the search panel interaction state machine for
// one page view. All state is owned by a single event loop goroutine;
// asynchronous asset loads report back through the loop and are discarded
// when a newer query has superseded them.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/searcher/teaser"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/urlstate"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

// ErrStopped is returned by Post once the loop has exited.
var ErrStopped = errors.New("controller stopped")

// Searcher is the part of the search engine the controller uses.
type Searcher interface {
	EnsureReady(onReady func())
	SearchLoaded(ctx context.Context, raw string, limit int) (*engine.Result, error)
	RenderHits(r *engine.Result, first int) []string
	PathToRoot() string
}

// Observer is told about completed searches and selected results.
type Observer interface {
	SearchCompleted(ctx context.Context, res *engine.Result, took time.Duration)
	ResultSelected(ctx context.Context, query string, hit engine.Hit, position int)
}

type Options struct {
	// ShortcutKey opens the panel when pressed with nothing focused. Empty
	// disables the shortcut.
	ShortcutKey string
	// FadeDelay is how long faded marks stay before they are removed.
	FadeDelay time.Duration
	Observer  Observer
	Metrics   *metrics.Metrics
}

type Controller struct {
	searcher Searcher
	view     View
	history  urlstate.History
	urls     *urlstate.Manager
	opts     Options
	logger   *slog.Logger

	events  chan Event
	done    chan struct{}
	started atomic.Bool
	state   atomic.Int32

	// Loop-owned.
	open       bool
	current    string
	generation uint64
	issuedAt   time.Time
	result     *engine.Result
	focus      int
	teaserSeq  int
	marked     bool
}

func New(s Searcher, v View, h urlstate.History, opts Options) *Controller {
	if opts.FadeDelay <= 0 {
		opts.FadeDelay = 300 * time.Millisecond
	}
	return &Controller{
		searcher: s,
		view:     v,
		history:  h,
		urls:     urlstate.NewManager(h),
		opts:     opts,
		logger:   slog.Default().With("component", "controller"),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		focus:    -1,
	}
}

// State returns the panel state as of the last handled event.
func (c *Controller) State() PanelState {
	return PanelState(c.state.Load())
}

// Post queues ev for the loop. It blocks while the queue is full and fails
// once the loop has stopped.
func (c *Controller) Post(ev Event) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.events <- ev:
		return nil
	case <-c.done:
		return ErrStopped
	}
}

// Run processes events until ctx is cancelled. It must be called once.
func (c *Controller) Run(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.New("controller already running")
	}
	defer close(c.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-c.events:
			c.dispatch(ctx, ev)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev Event) {
	defer func() {
		if p := recover(); p != nil {
			c.logger.Error("event handler panicked", "event", ev, "panic", p)
		}
		c.state.Store(int32(c.panelState()))
	}()
	switch e := ev.(type) {
	case IconClicked:
		if c.open {
			c.closePanel()
		} else {
			c.openPanel()
		}
	case KeyPressed:
		c.handleKey(ctx, e)
	case InputChanged:
		c.handleInput(e.Value)
	case ResultClicked:
		c.navigate(ctx, e.Index)
	case LocationChanged:
		c.handleLocation(e.URL)
	case MarkClicked:
		c.handleMarkClick()
	case searchReady:
		c.handleSearchReady(ctx, e)
	case marksFaded:
		if c.marked {
			c.view.Unmark()
			c.marked = false
		}
	}
}

func (c *Controller) panelState() PanelState {
	switch {
	case !c.open:
		return Closed
	case c.result != nil && len(c.result.Hits) > 0:
		return OpenWithResults
	default:
		return OpenEmpty
	}
}

func (c *Controller) openPanel() {
	if !c.open {
		c.open = true
		c.view.ShowSearch(true)
		// Warm the assets so the first keystroke does not wait for them.
		c.searcher.EnsureReady(func() {})
	}
	c.view.FocusInput()
}

func (c *Controller) closePanel() {
	if !c.open {
		return
	}
	c.open = false
	c.focus = -1
	c.view.ShowSearch(false)
}

func (c *Controller) handleKey(ctx context.Context, e KeyPressed) {
	if e.Alt || e.Ctrl || e.Meta {
		return
	}
	if c.opts.ShortcutKey != "" && e.Key == c.opts.ShortcutKey && e.Target == TargetBody {
		c.openPanel()
		return
	}
	if !c.open {
		return
	}
	if e.Key == "Escape" {
		c.closePanel()
		return
	}
	if c.result == nil || len(c.result.Hits) == 0 {
		return
	}
	switch e.Key {
	case "ArrowDown":
		if c.focus < len(c.result.Hits)-1 {
			c.focus++
			c.view.FocusResult(c.focus)
		}
	case "ArrowUp":
		switch {
		case c.focus > 0:
			c.focus--
			c.view.FocusResult(c.focus)
		case c.focus == 0:
			c.focus = -1
			c.view.FocusInput()
		}
	case "Enter":
		if c.focus >= 0 {
			c.navigate(ctx, c.focus)
		}
	}
}

func (c *Controller) handleInput(value string) {
	term := strings.TrimSpace(value)
	if term != "" {
		c.search(term)
	} else {
		c.clearResults()
		c.closePanel()
	}
	c.urls.SetSearchURLParameters(term, urlstate.PushIfNewSearchElseReplace)
	if c.marked {
		c.view.Unmark()
		c.marked = false
	}
}

func (c *Controller) clearResults() {
	c.current = ""
	c.generation++
	c.result = nil
	c.focus = -1
	c.view.SetBusy(false)
	c.view.ShowResults(false)
	c.view.RenderResults("", nil)
}

// search starts term unless it is already the current query.
func (c *Controller) search(term string) {
	if term == c.current {
		return
	}
	c.current = term
	c.generation++
	c.issuedAt = time.Now()
	gen := c.generation
	c.view.SetBusy(true)
	c.searcher.EnsureReady(func() {
		if err := c.Post(searchReady{gen: gen, term: term}); err != nil {
			c.logger.Debug("search completion dropped", "query", term, "error", err)
		}
	})
}

func (c *Controller) handleSearchReady(ctx context.Context, e searchReady) {
	if e.gen != c.generation || e.term != c.current {
		c.logger.Debug("discarding stale search", "query", e.term, "current", c.current)
		if c.opts.Metrics != nil {
			c.opts.Metrics.StaleQueriesTotal.Inc()
		}
		return
	}
	res, err := c.searcher.SearchLoaded(ctx, e.term, 0)
	if err != nil {
		c.logger.Warn("search failed, showing no results", "query", e.term, "error", err)
		res = &engine.Result{Query: e.term, Hits: []engine.Hit{}}
	}
	c.result = res
	c.focus = -1
	items := c.searcher.RenderHits(res, c.teaserSeq+1)
	c.teaserSeq += len(items)
	c.view.RenderResults(teaser.FormatMetric(len(res.Hits), strings.Join(res.Tokens, " ")), items)
	c.view.ShowResults(true)
	c.view.SetBusy(false)
	if c.opts.Observer != nil && err == nil {
		c.opts.Observer.SearchCompleted(ctx, res, time.Since(c.issuedAt))
	}
}

func (c *Controller) navigate(ctx context.Context, i int) {
	if c.result == nil || i < 0 || i >= len(c.result.Hits) {
		return
	}
	hit := c.result.Hits[i]
	if c.opts.Observer != nil {
		c.opts.Observer.ResultSelected(ctx, c.result.Query, hit, i)
	}
	c.view.Navigate(teaser.ResultHref(c.searcher.PathToRoot(), hit.URL, c.result.Tokens))
}

// handleLocation restores the search term carried by the location and
// marks its highlight words. Histories that track the location themselves
// learn about it here, in event order.
func (c *Controller) handleLocation(raw string) {
	if ls, ok := c.history.(urlstate.LocationSetter); ok {
		ls.SetLocation(raw)
	}
	st := urlstate.ReadState(raw)
	if st.ParseError != nil {
		c.logger.Warn("ignoring unparsable location", "error", st.ParseError)
		return
	}
	if st.HasSearch && st.Search != "" {
		c.openPanel()
		c.view.SetInput(st.Search)
		c.handleInput(st.Search)
	} else {
		c.closePanel()
	}
	if st.Highlight != nil {
		c.view.Mark(st.Highlight)
		c.marked = true
	}
}

func (c *Controller) handleMarkClick() {
	if !c.marked {
		return
	}
	c.view.FadeMarks()
	time.AfterFunc(c.opts.FadeDelay, func() {
		_ = c.Post(marksFaded{})
	})
}
