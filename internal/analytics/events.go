package analytics

import "time"

type EventType string

const (
	EventSearch      EventType = "search"
	EventZeroResult  EventType = "zero_result"
	EventResultClick EventType = "result_click"
)

// Origin says which front end issued a search.
type Origin string

const (
	OriginAPI     Origin = "api"
	OriginSession Origin = "session"
	OriginCLI     Origin = "cli"
)

type SearchEvent struct {
	Type        EventType `json:"type"`
	Origin      Origin    `json:"origin"`
	Query       string    `json:"query"`
	Tokens      []string  `json:"tokens"`
	TotalHits   int       `json:"total_hits"`
	Returned    int       `json:"returned"`
	LatencyMs   int64     `json:"latency_ms"`
	CacheSource string    `json:"cache_source,omitempty"`
	Tokenizer   string    `json:"tokenizer,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	RequestID   string    `json:"request_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
}

type ClickEvent struct {
	Type      EventType `json:"type"`
	Query     string    `json:"query"`
	DocID     int       `json:"doc_id"`
	URL       string    `json:"url"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}

// NewSearchEvent fills Type from the hit count.
func NewSearchEvent(origin Origin, query string, tokens []string, totalHits, returned int, latency time.Duration) SearchEvent {
	typ := EventSearch
	if returned == 0 {
		typ = EventZeroResult
	}
	return SearchEvent{
		Type:      typ,
		Origin:    origin,
		Query:     query,
		Tokens:    tokens,
		TotalHits: totalHits,
		Returned:  returned,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}
