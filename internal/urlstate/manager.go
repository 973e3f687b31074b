package urlstate

import (
	"log/slog"
	"net/url"
	"strings"
)

const (
	SearchParam    = "search"
	HighlightParam = "highlight"
)

// History is the browser history as seen by the search subsystem.
type History interface {
	Location() string
	PushState(url string)
	ReplaceState(url string)
}

// LocationSetter is implemented by histories whose location also moves
// without PushState or ReplaceState, on page load and popstate.
type LocationSetter interface {
	SetLocation(url string)
}

type Action int

const (
	Push Action = iota
	Replace
	// PushIfNewSearchElseReplace pushes only when the current location has
	// no search parameter yet, so one search session adds one history entry.
	PushIfNewSearchElseReplace
)

func (a Action) String() string {
	switch a {
	case Push:
		return "push"
	case Replace:
		return "replace"
	case PushIfNewSearchElseReplace:
		return "push_if_new_search_else_replace"
	default:
		return "unknown"
	}
}

type Manager struct {
	history History
	logger  *slog.Logger
}

func NewManager(h History) *Manager {
	return &Manager{
		history: h,
		logger:  slog.Default().With("component", "urlstate"),
	}
}

// SetSearchURLParameters records term in the location. A non-empty term
// replaces the search parameter and drops highlight and the fragment; an
// empty term removes both parameters.
func (m *Manager) SetSearchURLParameters(term string, action Action) {
	u, err := Parse(m.history.Location())
	if err != nil {
		m.logger.Warn("cannot update search parameters", "error", err)
		return
	}
	firstSearch := !u.Params.Has(SearchParam)
	if term != "" {
		u.Params.Set(SearchParam, url.QueryEscape(term))
		u.Params.Delete(HighlightParam)
		u.Hash = ""
	} else {
		u.Params.Delete(HighlightParam)
		u.Params.Delete(SearchParam)
	}

	next := u.String()
	switch {
	case action == Push, action == PushIfNewSearchElseReplace && firstSearch:
		m.history.PushState(next)
	default:
		m.history.ReplaceState(next)
	}
	m.logger.Debug("search parameters updated", "action", action, "url", next)
}

// State is the search-related part of the current location.
type State struct {
	Search     string
	HasSearch  bool
	Highlight  []string
	Location   *URL
	ParseError error
}

// Current reads the search term and highlight words from the location.
func (m *Manager) Current() State {
	return ReadState(m.history.Location())
}

// ReadState extracts the search state from raw. The search term is decoded
// with "+" meaning space; highlight is percent-decoded as a unit and split
// on single spaces.
func ReadState(raw string) State {
	u, err := Parse(raw)
	if err != nil {
		return State{ParseError: err}
	}
	st := State{Location: u}
	if v, ok := u.Params.Get(SearchParam); ok {
		st.HasSearch = true
		st.Search = decode(v, url.QueryUnescape)
	}
	if v, ok := u.Params.Get(HighlightParam); ok {
		st.Highlight = strings.Split(decode(v, url.PathUnescape), " ")
	}
	return st
}

func decode(v string, unescape func(string) (string, error)) string {
	if s, err := unescape(v); err == nil {
		return s
	}
	return v
}
