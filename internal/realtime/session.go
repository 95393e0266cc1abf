// ABOUTME: Session is the lifecycle of one realtime connection
// ABOUTME: Connecting, Authenticated, Joined, Active and Disconnected, with send handling

package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/dedupe"
	"github.com/2389/heartline-gateway/internal/dispatch"
	"github.com/2389/heartline-gateway/internal/groups"
	"github.com/2389/heartline-gateway/internal/metrics"
	"github.com/2389/heartline-gateway/internal/store"
)

// maxMemberIDLength bounds the conversation member parameter.
const maxMemberIDLength = 128

// State is a session's lifecycle state.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateJoined
	StateActive
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Kind distinguishes presence-hub from message-hub sessions.
type Kind string

const (
	KindPresence     Kind = "presence"
	KindConversation Kind = "message"
)

// SendRequest is one send from a conversation session.
type SendRequest struct {
	// RecipientID may be empty, meaning the session's counterpart.
	RecipientID     string
	Content         string
	ClientMessageID string
}

// Session is one live connection. Methods are safe for concurrent use.
type Session struct {
	hub          *Hub
	kind         Kind
	connectionID string
	sink         Sink
	limiter      *rate.Limiter

	mu       sync.Mutex
	state    State
	memberID string
	otherID  string
	group    string

	closeOnce sync.Once
}

// ConnectionID returns the connection's unique ID.
func (s *Session) ConnectionID() string { return s.connectionID }

// Kind returns which hub the session belongs to.
func (s *Session) Kind() Kind { return s.kind }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MemberID returns the authenticated member, or "" before authentication.
func (s *Session) MemberID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.memberID
}

// OtherMemberID returns the conversation counterpart once joined.
func (s *Session) OtherMemberID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.otherID
}

// Group returns the conversation group name once joined.
func (s *Session) Group() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDisconnected {
		s.state = state
	}
}

func (s *Session) authenticate(ctx context.Context, creds auth.Credentials) error {
	memberID, err := s.hub.cfg.Resolver.ResolveIdentity(ctx, creds)
	if err != nil || memberID == "" {
		s.setState(StateDisconnected)
		s.hub.logger.Info("rejected connection", "connection_id", s.connectionID, "error", err)
		if err == nil {
			return ErrUnauthenticated
		}
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	s.mu.Lock()
	s.memberID = memberID
	s.state = StateAuthenticated
	s.mu.Unlock()
	return nil
}

// ValidMemberID reports whether id is acceptable as a conversation member.
func ValidMemberID(id string) bool {
	if id == "" || len(id) > maxMemberIDLength || !utf8.ValidString(id) {
		return false
	}
	for _, r := range id {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// Join moves an authenticated session into the conversation with
// otherMemberID. It persists group membership, registers presence, marks
// the thread read and replays it to this connection only. Joining the same
// conversation again is a no-op.
func (s *Session) Join(ctx context.Context, otherMemberID string) error {
	h := s.hub

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateConnecting:
		return ErrUnauthenticated
	case StateDisconnected:
		return ErrSessionClosed
	case StateJoined, StateActive:
		if otherMemberID == s.otherID {
			return nil
		}
		return fmt.Errorf("%w: already in a conversation with %s", ErrBadJoinParameter, s.otherID)
	}

	if !ValidMemberID(otherMemberID) {
		return ErrBadJoinParameter
	}
	if otherMemberID == s.memberID {
		return fmt.Errorf("%w: %w", ErrBadJoinParameter, ErrCannotMessageSelf)
	}

	group := groups.Name(s.memberID, otherMemberID)
	if !h.cfg.Groups.Join(ctx, group, s.connectionID, s.memberID) {
		h.cfg.Metrics.JoinFailed()
		return ErrJoinFailed
	}
	s.otherID = otherMemberID
	s.group = group

	h.register(s)
	h.connectPresence(s)

	thread, err := h.cfg.Store.LoadThreadAndMarkRead(ctx, s.memberID, otherMemberID)
	if err != nil {
		h.logger.Error("failed to load thread",
			"connection_id", s.connectionID,
			"member_id", s.memberID,
			"other_id", otherMemberID,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrThreadLoadFailed, err)
	}

	h.deliverTo(s, ThreadLoaded(thread), metrics.KindThread)
	s.state = StateJoined
	return nil
}

// Send persists a message from this session's member to the counterpart
// and routes it. Rejections leave the session open. On success the stored
// message is returned.
func (s *Session) Send(ctx context.Context, req SendRequest) (*store.Message, error) {
	msg, err := s.send(ctx, req)
	if err != nil {
		s.hub.cfg.Metrics.SendRejected(Reason(err))
		s.hub.logger.Debug("send rejected",
			"connection_id", s.connectionID,
			"member_id", s.MemberID(),
			"reason", Reason(err),
			"error", err,
		)
		return nil, err
	}
	return msg, nil
}

func (s *Session) send(ctx context.Context, req SendRequest) (*store.Message, error) {
	h := s.hub

	s.mu.Lock()
	state, self, other, group := s.state, s.memberID, s.otherID, s.group
	s.mu.Unlock()

	switch {
	case state == StateDisconnected:
		return nil, ErrSessionClosed
	case s.kind != KindConversation, state != StateJoined && state != StateActive:
		return nil, ErrNotJoined
	}

	recipientID := req.RecipientID
	if recipientID == "" {
		recipientID = other
	}
	if recipientID == self {
		return nil, ErrCannotMessageSelf
	}
	if recipientID != other {
		return nil, ErrRecipientMismatch
	}

	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(req.Content) > h.cfg.MaxContentLength {
		return nil, ErrContentTooLong
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return nil, ErrRateLimited
	}

	var dedupeKey string
	if req.ClientMessageID != "" && h.cfg.Dedupe != nil {
		dedupeKey = dedupe.SendKey(self, req.ClientMessageID)
		if !h.cfg.Dedupe.Claim(dedupeKey) {
			return nil, ErrDuplicateSend
		}
	}
	release := func() {
		if dedupeKey != "" {
			h.cfg.Dedupe.Release(dedupeKey)
		}
	}

	// The connection may drop mid-send; the write still completes.
	persistCtx := context.WithoutCancel(ctx)

	sender, err := h.lookupMember(persistCtx, self)
	if err != nil {
		release()
		return nil, err
	}
	recipient, err := h.lookupMember(persistCtx, recipientID)
	if err != nil {
		release()
		return nil, err
	}

	unlock := h.lockGroup(group)
	defer unlock()

	now := h.cfg.Now().UTC()
	msg := &store.Message{
		ID:                   h.cfg.NewID(),
		SenderID:             sender.ID,
		SenderDisplayName:    sender.DisplayName,
		SenderImageURL:       sender.ImageURL,
		RecipientID:          recipient.ID,
		RecipientDisplayName: recipient.DisplayName,
		RecipientImageURL:    recipient.ImageURL,
		Content:              req.Content,
		SentAt:               now,
	}
	// One routing decision covers both the read state and the deliveries.
	plan := dispatch.Route(recipientID, group, h.cfg.Presence, h.cfg.Groups)
	if plan.RecipientInGroup {
		readAt := now
		msg.ReadAt = &readAt
	}

	if err := h.cfg.Store.AddMessage(persistCtx, msg); err != nil {
		release()
		h.logger.Error("failed to persist message",
			"connection_id", s.connectionID,
			"member_id", self,
			"group", group,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}
	h.cfg.Metrics.MessageSent(h.cfg.Now().UTC().Sub(now))

	s.mu.Lock()
	if s.state == StateJoined {
		s.state = StateActive
	}
	s.mu.Unlock()

	broadcast := MessageBroadcast(msg)
	for _, id := range plan.Broadcast {
		h.deliver(id, broadcast, metrics.KindBroadcast)
	}
	if len(plan.SideChannel) > 0 {
		notification := MessageNotification(msg)
		for _, id := range plan.SideChannel {
			h.deliver(id, notification, metrics.KindNotification)
		}
	}

	h.logger.Debug("message sent",
		"message_id", msg.ID,
		"group", group,
		"broadcast", len(plan.Broadcast),
		"notified", len(plan.SideChannel),
	)
	return msg, nil
}

func (h *Hub) lookupMember(ctx context.Context, id string) (*store.Member, error) {
	m, err := h.cfg.Store.GetMember(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: looking up member: %v", ErrPersistFailed, err)
	}
	return m, nil
}

// Close disconnects the session from presence and its group. It runs from
// any state and only the first call has an effect.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		h := s.hub

		s.mu.Lock()
		prev := s.state
		s.state = StateDisconnected
		memberID := s.memberID
		s.mu.Unlock()

		h.unregister(s)
		if memberID != "" {
			h.cfg.Groups.LeaveOnDisconnect(ctx, s.connectionID)
			h.disconnectPresence(s)
		}

		h.logger.Info("connection closed",
			"connection_id", s.connectionID,
			"member_id", memberID,
			"kind", s.kind,
			"previous_state", prev.String(),
		)
	})
}
