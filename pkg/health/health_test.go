package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type indexState struct{ ready, unavailable bool }

func (s indexState) Ready() bool       { return s.ready }
func (s indexState) Unavailable() bool { return s.unavailable }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestIndexCheck(t *testing.T) {
	assert.Equal(t, StatusUp, IndexCheck(indexState{ready: true})(context.Background()).Status)
	assert.Equal(t, StatusDegraded, IndexCheck(indexState{})(context.Background()).Status)
	assert.Equal(t, StatusDown, IndexCheck(indexState{unavailable: true})(context.Background()).Status)
}

func TestRun_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.Register("index", IndexCheck(indexState{ready: true}))
	c.Register("redis", PingCheck(pingFunc(func(context.Context) error { return errors.New("refused") })))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Equal(t, "refused", report.Components["redis"].Message)
	assert.NotEmpty(t, report.Components["index"].Latency)

	c.Register("index", IndexCheck(indexState{unavailable: true}))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", IndexCheck(indexState{ready: true}))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusUp, report.Status)

	c.Register("index", IndexCheck(indexState{}))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alive")
}
