// Package session bridges websocket connections to the interaction
// controller. Each connection is one page view: the browser reports its
// events, and the session relays the controller's view and history commands
// back as JSON messages.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/docsite-search/internal/controller"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/docsite-search/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 << 10
	outboxSize     = 128
)

// Session is the page as the controller sees it. It implements both
// controller.View and urlstate.History.
type Session struct {
	id  string
	ctx context.Context
	out chan ServerMessage

	mu       sync.RWMutex
	location string
}

func newSession(ctx context.Context, id string) *Session {
	return &Session{id: id, ctx: ctx, out: make(chan ServerMessage, outboxSize)}
}

func (s *Session) send(m ServerMessage) {
	select {
	case s.out <- m:
	case <-s.ctx.Done():
	}
}

// SetLocation records a page load or popstate. The controller calls it when
// it handles the event, so queued input still sees the previous location.
func (s *Session) SetLocation(u string) {
	s.mu.Lock()
	s.location = u
	s.mu.Unlock()
}

func (s *Session) ShowSearch(visible bool) { s.send(ServerMessage{Op: OpShowSearch, Visible: ptr(visible)}) }
func (s *Session) FocusInput() { s.send(ServerMessage{Op: OpFocusInput}) }
func (s *Session) SetInput(value string) { s.send(ServerMessage{Op: OpSetInput, Value: ptr(value)}) }
func (s *Session) SetBusy(busy bool) { s.send(ServerMessage{Op: OpSetBusy, Busy: ptr(busy)}) }
func (s *Session) ShowResults(visible bool) {
	s.send(ServerMessage{Op: OpShowResults, Visible: ptr(visible)})
}

func (s *Session) RenderResults(header string, items []string) {
	s.send(ServerMessage{Op: OpRenderResults, Header: ptr(header), Items: items})
}

func (s *Session) FocusResult(i int) { s.send(ServerMessage{Op: OpFocusResult, Index: ptr(i)}) }
func (s *Session) Navigate(url string) { s.send(ServerMessage{Op: OpNavigate, URL: url}) }
func (s *Session) Mark(words []string) { s.send(ServerMessage{Op: OpMark, Words: words}) }
func (s *Session) FadeMarks() { s.send(ServerMessage{Op: OpFadeMarks}) }
func (s *Session) Unmark() { s.send(ServerMessage{Op: OpUnmark}) }

func (s *Session) Location() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.location
}

func (s *Session) PushState(url string) {
	s.SetLocation(url)
	s.send(ServerMessage{Op: OpPushState, URL: url})
}

func (s *Session) ReplaceState(url string) {
	s.SetLocation(url)
	s.send(ServerMessage{Op: OpReplaceState, URL: url})
}

// Server upgrades requests on /ws and runs one controller per connection.
// All sessions share the searcher.
type Server struct {
	searcher controller.Searcher
	opts     controller.Options
	upgrader websocket.Upgrader
	metrics  *metrics.Metrics
	base     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// NewServer builds a session server. allowedOrigins of "*" accepts any
// origin; opts.Metrics may be nil.
func NewServer(s controller.Searcher, opts controller.Options, allowedOrigins []string) *Server {
	base, stop := context.WithCancel(context.Background())
	srv := &Server{
		searcher: s,
		opts:     opts,
		metrics:  opts.Metrics,
		base:     base,
		stop:     stop,
		logger:   slog.Default().With("component", "session"),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return srv
}

// Shutdown closes every open session and waits for them to finish, or for
// ctx to end.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.stop()
	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if srv.base.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	srv.wg.Add(1)
	defer srv.wg.Done()

	id := newSessionID()
	ctx, cancel := context.WithCancel(logger.WithSessionID(r.Context(), id))
	defer cancel()
	stopWatch := context.AfterFunc(srv.base, cancel)
	defer stopWatch()

	log := logger.FromContext(ctx)
	if srv.metrics != nil {
		srv.metrics.ActiveSessions.Inc()
		defer srv.metrics.ActiveSessions.Dec()
	}
	log.Info("page session opened", "remote", r.RemoteAddr)

	err = srv.run(ctx, conn, id)
	switch {
	case err == nil, errors.Is(err, context.Canceled),
		websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Info("page session closed")
	default:
		log.Warn("page session ended", "error", err)
	}
}

func (srv *Server) run(ctx context.Context, conn *websocket.Conn, id string) error {
	g, gctx := errgroup.WithContext(ctx)
	sess := newSession(gctx, id)
	ctrl := controller.New(srv.searcher, sess, sess, srv.opts)

	g.Go(func() error { return ctrl.Run(gctx) })
	g.Go(func() error { return writeLoop(gctx, conn, sess.out) })
	g.Go(func() error { return readLoop(conn, sess, ctrl) })
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	return g.Wait()
}

func readLoop(conn *websocket.Conn, sess *Session, ctrl *controller.Controller) error {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			sess.send(ServerMessage{Op: OpError, Message: "malformed message"})
			continue
		}
		ev, err := toEvent(msg)
		if err != nil {
			sess.send(ServerMessage{Op: OpError, Message: err.Error()})
			continue
		}
		if err := ctrl.Post(ev); err != nil {
			return err
		}
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, out <-chan ServerMessage) error {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case m := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

func newSessionID() string {
	return uuid.NewString()
}
