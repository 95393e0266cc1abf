// ABOUTME: Gateway orchestrator that wires storage, presence, groups and the realtime hubs
// ABOUTME: Owns the HTTP server lifecycle, health endpoints and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/config"
	"github.com/2389/heartline-gateway/internal/dedupe"
	"github.com/2389/heartline-gateway/internal/groups"
	"github.com/2389/heartline-gateway/internal/metrics"
	"github.com/2389/heartline-gateway/internal/presence"
	"github.com/2389/heartline-gateway/internal/realtime"
	"github.com/2389/heartline-gateway/internal/store"
	"github.com/2389/heartline-gateway/internal/transport"
)

// Gateway orchestrates the heartline-gateway server components.
type Gateway struct {
	config     *config.Config
	store      store.Store
	presence   *presence.Registry
	groups     *groups.Tracker
	hub        *realtime.Hub
	ws         *transport.Server
	resolver   auth.IdentityResolver
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger

	// dedupe suppresses retried websocket sends
	dedupe *dedupe.Cache

	// metrics is nil when metrics are disabled
	metrics *metrics.Collector

	startedAt time.Time
}

// initStore creates the SQLite store named by the config.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// newResolver picks JWT verification when a secret is configured and falls
// back to trusting the raw token as a member ID otherwise.
func newResolver(cfg *config.Config, logger *slog.Logger) (auth.IdentityResolver, error) {
	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret not set - bearer tokens are trusted as member IDs, do not run this in production")
		return auth.InsecureResolver{}, nil
	}
	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("creating JWT verifier: %w", err)
	}
	return auth.NewTokenResolver(verifier), nil
}

// originChecker allows requests without an Origin header and browser origins
// on the allow list. An empty list allows everything.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// New creates a new Gateway instance backed by the configured SQLite database.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore creates a Gateway on top of an existing store. The gateway
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := newResolver(cfg, logger)
	if err != nil {
		return nil, err
	}

	rt := cfg.Realtime

	// Connections never survive a restart, so mirrored rows are stale.
	var mirror groups.Mirror
	if rt.MirrorGroups() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := s.ClearConnections(ctx)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("clearing stale connections: %w", err)
		}
		mirror = s
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace)
	}

	registry := presence.New()
	tracker := groups.NewTracker(mirror, logger)
	dedupeCache := dedupe.New(rt.DedupeTTL, rt.DedupeMax)

	hub := realtime.NewHub(realtime.HubConfig{
		Store:            s,
		Resolver:         resolver,
		Presence:         registry,
		Groups:           tracker,
		Dedupe:           dedupeCache,
		Metrics:          collector,
		Logger:           logger,
		SendRate:         rt.SendRate,
		SendBurst:        rt.SendBurst,
		MaxContentLength: rt.MaxContentLength,
	})

	ws := transport.NewServer(hub, transport.Config{
		SendBuffer:     rt.SendBuffer,
		WriteWait:      rt.WriteWait,
		PongWait:       rt.PongWait,
		MaxMessageSize: rt.MaxMessageSize,
		CheckOrigin:    originChecker(cfg.Server.AllowedOrigins),
	}, logger)

	gw := &Gateway{
		config:    cfg,
		store:     s,
		presence:  registry,
		groups:    tracker,
		hub:       hub,
		ws:        ws,
		resolver:  resolver,
		logger:    logger.With("component", "gateway"),
		dedupe:    dedupeCache,
		metrics:   collector,
		startedAt: time.Now(),
	}

	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("GET /health/ready", gw.handleReady)

	if collector != nil {
		mux.Handle("GET "+cfg.Metrics.Path, collector.Handler())
		logger.Info("metrics enabled", "path", cfg.Metrics.Path)
	}

	// Realtime hubs authenticate during the handshake
	mux.HandleFunc("GET /hubs/presence", ws.HandlePresence)
	mux.HandleFunc("GET /hubs/message", ws.HandleMessage)

	gw.registerAPIRoutes(mux, logger)

	gw.handler = mux
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The caller's context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown closes websocket connections first so every session leaves its
// conversation group, then stops the HTTP server and releases storage.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway",
		"connections", g.ws.ClientCount(),
		"online_members", g.presence.Len(),
	)

	var errs []error
	errs = appendCloseError(errs, "websocket shutdown", g.ws.Shutdown(ctx))
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	// Sessions whose pumps never started
	g.hub.CloseAll(ctx)

	g.dedupe.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d online, %d connections, %d conversations, up %s)",
		g.presence.Len(), g.ws.ClientCount(), g.groups.Len(), time.Since(g.startedAt).Round(time.Second))
}
