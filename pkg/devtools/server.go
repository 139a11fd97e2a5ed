// Package devtools exposes a running query client for inspection: a JSON
// snapshot of the cache, a websocket stream of lifecycle events, and the
// Prometheus metrics endpoint.
package devtools

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nquery-dev/nquery/pkg/query"
)

// EventType classifies devtools stream events.
type EventType string

const (
	EventRegistered  EventType = "registered"
	EventFetchStart  EventType = "fetch:start"
	EventFetchFinish EventType = "fetch:finish"
	EventCacheHit    EventType = "cache:hit"
	EventInvalidated EventType = "invalidated"
	EventSwept       EventType = "swept"
)

// Event is sent to connected devtools clients as JSON.
type Event struct {
	Type        EventType `json:"type"`
	Client      string    `json:"client"`
	Key         string    `json:"key"`
	Status      string    `json:"status"`
	Outcome     string    `json:"outcome,omitempty"`
	ElapsedMS   int64     `json:"elapsedMs,omitempty"`
	Error       string    `json:"error,omitempty"`
	Subscribers int       `json:"subscribers"`
	Time        time.Time `json:"time"`
}

// Server streams query lifecycle events over websockets and serves cache
// snapshots. Register it on the client with query.WithInstrumentation,
// call Bind with that client, and mount Handler on any mux.
type Server struct {
	query.NopInstrumentation

	logger *slog.Logger

	// mu guards client and clients.
	mu       sync.RWMutex
	client   *query.Client
	clients  map[*websocket.Conn]bool
	upgrader websocket.Upgrader
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the structured logger. Defaults to slog.Default().
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a devtools server. The server doubles as client
// instrumentation, so it is built first, handed to query.NewClient via
// query.WithInstrumentation, and then bound to that client with Bind.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		clients: make(map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Devtools is a local development surface.
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Bind attaches the server to the client it inspects. Events broadcast
// before Bind carry no client label; /queries serves an empty snapshot.
func (s *Server) Bind(c *query.Client) {
	s.mu.Lock()
	s.client = c
	s.mu.Unlock()
}

func (s *Server) boundClient() *query.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// Handler returns the devtools routes:
//
//	GET /queries — JSON snapshot of cached query metadata
//	GET /events  — websocket stream of lifecycle events
//	GET /metrics — Prometheus exposition
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/queries", s.handleQueries)
	r.Get("/events", s.handleEvents)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	var snapshot []query.Meta
	if c := s.boundClient(); c != nil {
		snapshot = c.Snapshot()
	}

	type entry struct {
		Key         string    `json:"key"`
		Hash        uint64    `json:"hash"`
		Status      string    `json:"status"`
		Stale       bool      `json:"stale"`
		Subscribers int       `json:"subscribers"`
		LastUpdated time.Time `json:"lastUpdated"`
	}

	entries := make([]entry, 0, len(snapshot))
	for _, m := range snapshot {
		entries = append(entries, entry{
			Key:         m.Key,
			Hash:        m.Hash,
			Status:      m.Status.String(),
			Stale:       m.Stale,
			Subscribers: m.Subscribers,
			LastUpdated: m.LastUpdated,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Warn("devtools: snapshot encode failed", "error", err)
	}
}

// handleEvents upgrades the connection and keeps it registered until the
// client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.mu.Lock()
	delete(s.clients, conn)
	s.mu.Unlock()
	conn.Close()
}

// ClientCount returns the number of connected devtools clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// broadcast sends an event to all connected clients, dropping dead
// connections.
func (s *Server) broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}

	s.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}
	}
}

func (s *Server) event(t EventType, m query.Meta) Event {
	var clientID string
	if c := s.boundClient(); c != nil {
		clientID = c.ID()
	}
	return Event{
		Type:        t,
		Client:      clientID,
		Key:         m.Key,
		Status:      m.Status.String(),
		Subscribers: m.Subscribers,
		Time:        time.Now(),
	}
}

// QueryRegistered implements query.Instrumentation.
func (s *Server) QueryRegistered(m query.Meta) {
	s.broadcast(s.event(EventRegistered, m))
}

// FetchStarted implements query.Instrumentation.
func (s *Server) FetchStarted(m query.Meta) {
	s.broadcast(s.event(EventFetchStart, m))
}

// FetchFinished implements query.Instrumentation.
func (s *Server) FetchFinished(m query.Meta, outcome query.Outcome, elapsed time.Duration, err error) {
	ev := s.event(EventFetchFinish, m)
	ev.Outcome = outcome.String()
	ev.ElapsedMS = elapsed.Milliseconds()
	if err != nil {
		ev.Error = err.Error()
	}
	s.broadcast(ev)
}

// CacheHit implements query.Instrumentation.
func (s *Server) CacheHit(m query.Meta) {
	s.broadcast(s.event(EventCacheHit, m))
}

// Invalidated implements query.Instrumentation.
func (s *Server) Invalidated(m query.Meta) {
	s.broadcast(s.event(EventInvalidated, m))
}

// Swept implements query.Instrumentation.
func (s *Server) Swept(m query.Meta) {
	s.broadcast(s.event(EventSwept, m))
}
