// ABOUTME: Websocket endpoints for the presence and message hubs
// ABOUTME: Opens realtime sessions before upgrading so auth and parameter errors map to HTTP statuses

package transport

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

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/realtime"
)

// Config holds websocket connection settings.
type Config struct {
	SendBuffer      int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	// CheckOrigin decides whether a browser origin may connect. Nil allows all.
	CheckOrigin func(r *http.Request) bool
}

// DefaultConfig returns the default connection settings.
func DefaultConfig() Config {
	return Config{
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		PongWait:        60 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// pingPeriod must be shorter than PongWait.
func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.WriteWait <= 0 {
		c.WriteWait = d.WriteWait
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = d.WriteBufferSize
	}
	return c
}

// Server upgrades HTTP requests into realtime sessions.
type Server struct {
	hub      *realtime.Hub
	cfg      Config
	upgrader websocket.Upgrader
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// NewServer creates a websocket server in front of hub.
func NewServer(hub *realtime.Hub, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		hub: hub,
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger.With("component", "transport"),
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[*Client]struct{}),
	}
}

// HandlePresence serves GET /hubs/presence.
func (s *Server) HandlePresence(w http.ResponseWriter, r *http.Request) {
	creds, err := auth.CredentialsFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	client := newClient(uuid.NewString(), s.cfg, s.logger)
	session, err := s.hub.OpenPresence(r.Context(), client.ID(), creds, client)
	s.serve(w, r, client, session, err)
}

// HandleMessage serves GET /hubs/message?userId=<other member>.
func (s *Server) HandleMessage(w http.ResponseWriter, r *http.Request) {
	creds, err := auth.CredentialsFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	// Identity is resolved before userId is checked, so a bad token is 401
	// whatever the join parameter.
	other := r.URL.Query().Get("userId")
	client := newClient(uuid.NewString(), s.cfg, s.logger)
	session, err := s.hub.OpenConversation(r.Context(), client.ID(), creds, other, client)
	s.serve(w, r, client, session, err)
}

// serve finishes a handshake whose session was opened (or failed to open)
// against client.
func (s *Server) serve(w http.ResponseWriter, r *http.Request, client *Client, session *realtime.Session, openErr error) {
	switch {
	case errors.Is(openErr, realtime.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	case errors.Is(openErr, realtime.ErrBadJoinParameter):
		writeError(w, http.StatusBadRequest, openErr.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		if session != nil {
			session.Close(context.WithoutCancel(s.ctx))
		}
		return
	}
	client.conn = conn

	if openErr != nil {
		// The session is already closed; tell the client why before closing.
		s.logger.Warn("rejected connection after upgrade", "connection_id", client.ID(), "error", openErr)
		_ = client.Deliver(realtime.FatalError(openErr))
		client.closeWith(websocket.CloseInternalServerErr)
		session = nil
	}

	if !s.track(client) {
		if session != nil {
			session.Close(context.WithoutCancel(s.ctx))
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go func() {
		defer s.wg.Done()
		client.writePump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.untrack(client)
		client.readPump(s.ctx, session)
	}()
}

// track registers c and reserves its two pump goroutines. It fails once
// Shutdown has started.
func (s *Server) track(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return false
	}
	s.clients[c] = struct{}{}
	s.wg.Add(2)
	return true
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c)
}

// ClientCount returns the number of open websocket connections.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Shutdown closes every connection and waits for their pumps to exit or
// for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	clients := make([]*Client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.closeWith(websocket.CloseGoingAway)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Pumps still blocked on dead peers; force the sockets shut.
		for _, c := range clients {
			c.conn.Close()
		}
		return ctx.Err()
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
