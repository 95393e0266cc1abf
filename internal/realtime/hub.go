// ABOUTME: Hub wires presence, conversation groups, storage and delivery for realtime sessions
// ABOUTME: Owns the table of live connections and per-conversation send ordering

package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/dedupe"
	"github.com/2389/heartline-gateway/internal/groups"
	"github.com/2389/heartline-gateway/internal/metrics"
	"github.com/2389/heartline-gateway/internal/presence"
	"github.com/2389/heartline-gateway/internal/store"
)

// DefaultMaxContentLength caps message content when HubConfig leaves it unset.
const DefaultMaxContentLength = 4096

// Sink delivers events to one connection. Deliver must not block; a sink
// that cannot accept the event returns an error and the event is dropped.
type Sink interface {
	Deliver(Event) error
}

// Storage is the persistence the hub needs.
type Storage interface {
	GetMember(ctx context.Context, id string) (*store.Member, error)
	LoadThreadAndMarkRead(ctx context.Context, currentID, otherID string) ([]*store.Message, error)
	AddMessage(ctx context.Context, msg *store.Message) error
}

// HubConfig holds the hub's collaborators and limits.
type HubConfig struct {
	Store    Storage
	Resolver auth.IdentityResolver
	Presence *presence.Registry
	Groups   *groups.Tracker

	// Optional
	Dedupe  *dedupe.Cache
	Metrics *metrics.Collector
	Logger  *slog.Logger

	// SendRate limits sends per connection per second. Zero disables limiting.
	SendRate  float64
	SendBurst int

	MaxContentLength int

	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// Hub tracks live sessions and routes events between them.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session // connectionID -> live session

	locksMu    sync.Mutex
	groupLocks map[string]*groupLock
}

type groupLock struct {
	mu   sync.Mutex
	refs int
}

// NewHub creates a Hub. Store, Resolver, Presence and Groups are required.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.MaxContentLength <= 0 {
		cfg.MaxContentLength = DefaultMaxContentLength
	}
	if cfg.SendRate > 0 && cfg.SendBurst < 1 {
		cfg.SendBurst = 1
	}
	return &Hub{
		cfg:        cfg,
		logger:     cfg.Logger.With("component", "realtime"),
		sessions:   make(map[string]*Session),
		groupLocks: make(map[string]*groupLock),
	}
}

// OpenPresence authenticates a presence-hub connection and announces it.
// The caller receives the online member snapshot; everyone else receives
// UserOnline if this is the member's first connection.
func (h *Hub) OpenPresence(ctx context.Context, connectionID string, creds auth.Credentials, sink Sink) (*Session, error) {
	s := h.newSession(KindPresence, connectionID, sink)
	if err := s.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	h.register(s)
	h.connectPresence(s)
	h.deliver(connectionID, OnlineMembersSnapshot(h.cfg.Presence.ListOnlineMembers()), metrics.KindSnapshot)

	s.setState(StateActive)
	h.logger.Info("presence connection opened", "connection_id", connectionID, "member_id", s.MemberID())
	return s, nil
}

// OpenConversation authenticates a message-hub connection and joins the
// conversation with otherMemberID, replaying the thread to the caller.
// Any error returned is fatal and the session is already closed.
func (h *Hub) OpenConversation(ctx context.Context, connectionID string, creds auth.Credentials, otherMemberID string, sink Sink) (*Session, error) {
	s := h.newSession(KindConversation, connectionID, sink)
	if err := s.authenticate(ctx, creds); err != nil {
		return nil, err
	}

	if err := s.Join(ctx, otherMemberID); err != nil {
		s.Close(context.WithoutCancel(ctx))
		return nil, err
	}

	h.logger.Info("conversation connection opened",
		"connection_id", connectionID,
		"member_id", s.MemberID(),
		"group", s.Group(),
	)
	return s, nil
}

// OnlineMembers returns the sorted online member snapshot.
func (h *Hub) OnlineMembers() []string {
	return h.cfg.Presence.ListOnlineMembers()
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// CloseAll closes every live session, used at shutdown.
func (h *Hub) CloseAll(ctx context.Context) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		s.Close(ctx)
	}
}

func (h *Hub) newSession(kind Kind, connectionID string, sink Sink) *Session {
	if connectionID == "" {
		connectionID = h.cfg.NewID()
	}
	s := &Session{
		hub:          h,
		kind:         kind,
		connectionID: connectionID,
		sink:         sink,
		state:        StateConnecting,
	}
	if kind == KindConversation && h.cfg.SendRate > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.cfg.SendRate), h.cfg.SendBurst)
	}
	return s
}

// register adds s to the live table. Registering again is a no-op.
func (h *Hub) register(s *Session) {
	h.mu.Lock()
	_, exists := h.sessions[s.connectionID]
	h.sessions[s.connectionID] = s
	h.mu.Unlock()
	if !exists {
		h.cfg.Metrics.ConnectionOpened(string(s.kind))
	}
}

// unregister reports whether the session was registered.
func (h *Hub) unregister(s *Session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.sessions[s.connectionID]; !ok || cur != s {
		return false
	}
	delete(h.sessions, s.connectionID)
	h.cfg.Metrics.ConnectionClosed(string(s.kind))
	return true
}

// connectPresence registers the session's connection and announces the
// member if this was their first connection.
func (h *Hub) connectPresence(s *Session) {
	if h.cfg.Presence.Connect(s.memberID, s.connectionID) {
		h.logger.Info("member online", "member_id", s.memberID)
		h.broadcastExcept(s.connectionID, PresenceOnline(s.memberID), metrics.KindPresence)
	}
	h.recordPresence()
}

func (h *Hub) disconnectPresence(s *Session) {
	if h.cfg.Presence.Disconnect(s.memberID, s.connectionID) {
		h.logger.Info("member offline", "member_id", s.memberID)
		h.broadcastExcept(s.connectionID, PresenceOffline(s.memberID), metrics.KindPresence)
	}
	h.recordPresence()
}

func (h *Hub) recordPresence() {
	h.cfg.Metrics.SetPresence(h.cfg.Presence.Len(), h.cfg.Groups.Len())
}

// deliver hands ev to one connection. Unknown connections are skipped.
func (h *Hub) deliver(connectionID string, ev Event, kind string) {
	h.mu.RLock()
	s, ok := h.sessions[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	h.deliverTo(s, ev, kind)
}

func (h *Hub) deliverTo(s *Session, ev Event, kind string) {
	if err := s.sink.Deliver(ev); err != nil {
		h.cfg.Metrics.DeliveryDropped(kind)
		h.logger.Debug("dropped event",
			"connection_id", s.connectionID,
			"event", ev.Type,
			"error", err,
		)
		return
	}
	h.cfg.Metrics.Delivered(kind)
}

// broadcastExcept delivers ev to every live session but one.
func (h *Hub) broadcastExcept(connectionID string, ev Event, kind string) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for id, s := range h.sessions {
		if id != connectionID {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		h.deliverTo(s, ev, kind)
	}
}

// lockGroup serializes persistence and broadcast within one conversation.
// The returned func releases the lock.
func (h *Hub) lockGroup(name string) func() {
	h.locksMu.Lock()
	l, ok := h.groupLocks[name]
	if !ok {
		l = &groupLock{}
		h.groupLocks[name] = l
	}
	l.refs++
	h.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		h.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(h.groupLocks, name)
		}
		h.locksMu.Unlock()
	}
}
