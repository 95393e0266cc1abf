// ABOUTME: Tests for realtime sessions covering presence, joins, sends and disconnects
// ABOUTME: Uses MockStore with failure injection and in-memory recording sinks

package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/dedupe"
	"github.com/2389/heartline-gateway/internal/groups"
	"github.com/2389/heartline-gateway/internal/metrics"
	"github.com/2389/heartline-gateway/internal/presence"
	"github.com/2389/heartline-gateway/internal/store"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	fail   error
}

func (r *recordingSink) Deliver(ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recordingSink) messageIDs(t EventType) []string {
	var ids []string
	for _, ev := range r.ofType(t) {
		ids = append(ids, ev.Data.(MessageDTO).ID)
	}
	return ids
}

// orderedStore records the order in which messages were persisted.
type orderedStore struct {
	*store.MockStore
	mu    sync.Mutex
	added []string
}

func (o *orderedStore) AddMessage(ctx context.Context, msg *store.Message) error {
	if err := o.MockStore.AddMessage(ctx, msg); err != nil {
		return err
	}
	o.mu.Lock()
	o.added = append(o.added, msg.ID)
	o.mu.Unlock()
	return nil
}

// hookStore runs onAdd while a message is being persisted.
type hookStore struct {
	*store.MockStore
	onAdd func()
}

func (h *hookStore) AddMessage(ctx context.Context, msg *store.Message) error {
	if h.onAdd != nil {
		h.onAdd()
	}
	return h.MockStore.AddMessage(ctx, msg)
}

type testHub struct {
	hub      *Hub
	store    *store.MockStore
	presence *presence.Registry
	groups   *groups.Tracker
	metrics  *metrics.Collector
}

func newTestHub(t *testing.T, tweak ...func(*HubConfig)) *testHub {
	t.Helper()

	ms := store.NewMockStore()
	for _, m := range []struct{ id, name string }{{"alice", "Alice"}, {"bob", "Bob"}, {"carol", "Carol"}} {
		require.NoError(t, ms.UpsertMember(context.Background(), &store.Member{ID: m.id, DisplayName: m.name}))
	}

	var seq atomic.Int64
	th := &testHub{
		store:    ms,
		presence: presence.New(),
		groups:   groups.NewTracker(ms, nil),
		metrics:  metrics.NewCollector("test"),
	}
	cfg := HubConfig{
		Store:    ms,
		Resolver: auth.InsecureResolver{},
		Presence: th.presence,
		Groups:   th.groups,
		Metrics:  th.metrics,
		NewID: func() string {
			return fmt.Sprintf("id-%04d", seq.Add(1))
		},
	}
	for _, fn := range tweak {
		fn(&cfg)
	}
	th.hub = NewHub(cfg)
	return th
}

func (th *testHub) openChat(t *testing.T, conn, member, other string) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s, err := th.hub.OpenConversation(t.Context(), conn, auth.Credentials{Token: member}, other, sink)
	require.NoError(t, err)
	return s, sink
}

func (th *testHub) openPresence(t *testing.T, conn, member string) (*Session, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	s, err := th.hub.OpenPresence(t.Context(), conn, auth.Credentials{Token: member}, sink)
	require.NoError(t, err)
	return s, sink
}

func TestOpenPresence_AnnouncesFirstConnectionOnly(t *testing.T) {
	th := newTestHub(t)

	_, bobSink := th.openPresence(t, "b1", "bob")
	s, aliceSink := th.openPresence(t, "a1", "alice")
	assert.Equal(t, StateActive, s.State())

	snap := aliceSink.ofType(EventOnlineUsers)
	require.Len(t, snap, 1)
	assert.Equal(t, []string{"alice", "bob"}, snap[0].Data)
	assert.Empty(t, aliceSink.ofType(EventUserOnline), "caller does not hear about itself")

	online := bobSink.ofType(EventUserOnline)
	require.Len(t, online, 1)
	assert.Equal(t, "alice", online[0].Data)

	th.openPresence(t, "a2", "alice")
	assert.Len(t, bobSink.ofType(EventUserOnline), 1, "second device is not a transition")
}

func TestClose_AnnouncesLastDisconnect(t *testing.T) {
	th := newTestHub(t)
	_, bobSink := th.openPresence(t, "b1", "bob")
	a1, _ := th.openPresence(t, "a1", "alice")
	a2, _ := th.openPresence(t, "a2", "alice")

	a1.Close(t.Context())
	assert.Empty(t, bobSink.ofType(EventUserOffline))
	assert.True(t, th.presence.IsOnline("alice"))

	a2.Close(t.Context())
	offline := bobSink.ofType(EventUserOffline)
	require.Len(t, offline, 1)
	assert.Equal(t, "alice", offline[0].Data)
	assert.Equal(t, []string{"bob"}, th.hub.OnlineMembers())

	// Duplicate close is harmless
	a2.Close(t.Context())
	assert.Len(t, bobSink.ofType(EventUserOffline), 1)
	assert.Equal(t, StateDisconnected, a2.State())
	assert.Equal(t, 1, th.hub.SessionCount())
}

func TestClose_RecordsPresenceGauges(t *testing.T) {
	th := newTestHub(t)
	a1, _ := th.openChat(t, "a1", "alice", "bob")
	th.openPresence(t, "b1", "bob")

	assert.Equal(t, 2.0, testutil.ToFloat64(th.metrics.OnlineMembers))
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.ActiveGroups))

	a1.Close(t.Context())
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.OnlineMembers))
	assert.Equal(t, 0.0, testutil.ToFloat64(th.metrics.ActiveGroups), "the group is left before presence is recorded")
}

func TestOpen_Unauthenticated(t *testing.T) {
	th := newTestHub(t)

	_, err := th.hub.OpenConversation(t.Context(), "c1", auth.Credentials{}, "bob", &recordingSink{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	assert.True(t, IsFatal(err))

	_, err = th.hub.OpenPresence(t.Context(), "c2", auth.Credentials{Token: "  "}, &recordingSink{})
	assert.ErrorIs(t, err, ErrUnauthenticated)

	assert.Empty(t, th.hub.OnlineMembers())
	assert.Equal(t, 0, th.hub.SessionCount())
}

func TestOpenConversation_BadJoinParameter(t *testing.T) {
	th := newTestHub(t)

	for _, other := range []string{"", "alice", "has space", "tab\there"} {
		t.Run(fmt.Sprintf("%q", other), func(t *testing.T) {
			sink := &recordingSink{}
			_, err := th.hub.OpenConversation(t.Context(), "c1", auth.Credentials{Token: "alice"}, other, sink)
			assert.ErrorIs(t, err, ErrBadJoinParameter)
			assert.True(t, IsFatal(err))
			assert.Empty(t, sink.ofType(EventThreadLoaded))
		})
	}
	assert.Empty(t, th.hub.OnlineMembers())
}

func TestOpenConversation_JoinPersistenceFailureAborts(t *testing.T) {
	th := newTestHub(t)
	th.store.SetFailAddConnection(true)

	sink := &recordingSink{}
	_, err := th.hub.OpenConversation(t.Context(), "a1", auth.Credentials{Token: "alice"}, "bob", sink)

	require.ErrorIs(t, err, ErrJoinFailed)
	assert.Equal(t, "cannot start conversation", err.Error())
	assert.Empty(t, sink.events, "thread must not load")
	assert.Empty(t, th.groups.ConnectionsInGroup("alice-bob"))
	assert.False(t, th.presence.IsOnline("alice"))
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.JoinFailures))
}

func TestOpenConversation_ThreadLoadFailureCleansUp(t *testing.T) {
	th := newTestHub(t)
	th.store.FailLoadThread = true

	_, err := th.hub.OpenConversation(t.Context(), "a1", auth.Credentials{Token: "alice"}, "bob", &recordingSink{})

	assert.ErrorIs(t, err, ErrThreadLoadFailed)
	assert.False(t, th.presence.IsOnline("alice"))
	assert.Empty(t, th.groups.ConnectionsInGroup("alice-bob"))
	assert.Equal(t, 0, th.store.ConnectionCount())
}

func TestOpenConversation_LoadsThreadAndMarksRead(t *testing.T) {
	th := newTestHub(t)
	ctx := t.Context()
	require.NoError(t, th.store.AddMessage(ctx, &store.Message{ID: "old-1", SenderID: "bob", RecipientID: "alice", Content: "hey"}))
	require.NoError(t, th.store.AddMessage(ctx, &store.Message{ID: "old-2", SenderID: "carol", RecipientID: "alice", Content: "yo"}))

	s, sink := th.openChat(t, "a1", "alice", "bob")

	assert.Equal(t, StateJoined, s.State())
	assert.Equal(t, "alice-bob", s.Group())
	assert.Equal(t, "bob", s.OtherMemberID())

	loaded := sink.ofType(EventThreadLoaded)
	require.Len(t, loaded, 1)
	thread := loaded[0].Data.([]MessageDTO)
	require.Len(t, thread, 1)
	assert.Equal(t, "old-1", thread[0].ID)
	assert.NotNil(t, thread[0].ReadAt)
	assert.Equal(t, "Bob", thread[0].SenderDisplayName)

	other, err := th.store.GetMessage(ctx, "old-2")
	require.NoError(t, err)
	assert.Nil(t, other.ReadAt)

	assert.True(t, th.presence.IsOnline("alice"), "conversation connections count as presence")
}

func TestJoin_IsIdempotent(t *testing.T) {
	th := newTestHub(t)
	s, aliceSink := th.openChat(t, "a1", "alice", "bob")

	require.NoError(t, s.Join(t.Context(), "bob"))
	assert.Equal(t, []string{"a1"}, th.groups.ConnectionsInGroup("alice-bob"))
	assert.Len(t, aliceSink.ofType(EventThreadLoaded), 1, "thread is not replayed again")

	err := s.Join(t.Context(), "carol")
	assert.ErrorIs(t, err, ErrBadJoinParameter)

	_, err = s.Send(t.Context(), SendRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Len(t, aliceSink.ofType(EventMessage), 1, "one broadcast per connection")
}

func TestSend_BothInConversation(t *testing.T) {
	th := newTestHub(t)
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")
	_, bobSink := th.openChat(t, "b1", "bob", "alice")

	msg, err := alice.Send(t.Context(), SendRequest{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, StateActive, alice.State())

	assert.Equal(t, []string{msg.ID}, aliceSink.messageIDs(EventMessage))
	assert.Equal(t, []string{msg.ID}, bobSink.messageIDs(EventMessage))
	assert.Empty(t, bobSink.ofType(EventMessageReceived))

	stored, err := th.store.GetMessage(t.Context(), msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReadAt, "recipient was viewing the conversation")
	assert.Equal(t, "hi", stored.Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.MessagesSent))
}

func TestSend_RecipientOnlineElsewhere(t *testing.T) {
	th := newTestHub(t)
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")
	_, bobPresence := th.openPresence(t, "b1", "bob")
	_, bobOtherChat := th.openChat(t, "b2", "bob", "carol")

	msg, err := alice.Send(t.Context(), SendRequest{RecipientID: "bob", Content: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{msg.ID}, aliceSink.messageIDs(EventMessage))
	assert.Equal(t, []string{msg.ID}, bobPresence.messageIDs(EventMessageReceived))
	assert.Empty(t, bobPresence.ofType(EventMessage))
	assert.Equal(t, []string{msg.ID}, bobOtherChat.messageIDs(EventMessageReceived))
	assert.Empty(t, bobOtherChat.ofType(EventMessage))

	stored, err := th.store.GetMessage(t.Context(), msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReadAt)
}

func TestSend_RecipientOffline(t *testing.T) {
	th := newTestHub(t)
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")
	_, carolSink := th.openPresence(t, "c1", "carol")

	msg, err := alice.Send(t.Context(), SendRequest{Content: "hi"})
	require.NoError(t, err)

	assert.Equal(t, []string{msg.ID}, aliceSink.messageIDs(EventMessage))
	assert.Empty(t, carolSink.ofType(EventMessageReceived))
	assert.Empty(t, carolSink.ofType(EventMessage))
	assert.NotContains(t, th.hub.OnlineMembers(), "bob")

	stored, err := th.store.GetMessage(t.Context(), msg.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReadAt)
}

func TestSend_SelfMessageRejected(t *testing.T) {
	th := newTestHub(t)
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")

	_, err := alice.Send(t.Context(), SendRequest{RecipientID: "alice", Content: "me"})
	assert.ErrorIs(t, err, ErrCannotMessageSelf)
	assert.False(t, IsFatal(err))

	page, err := th.store.ListMessages(t.Context(), store.MessageParams{MemberID: "alice", Container: store.ContainerOutbox})
	require.NoError(t, err)
	assert.Empty(t, page.Items, "nothing persisted")
	assert.Empty(t, aliceSink.ofType(EventMessage))
	assert.Equal(t, StateJoined, alice.State(), "connection stays open")
}

func TestSend_Rejections(t *testing.T) {
	th := newTestHub(t, func(c *HubConfig) { c.MaxContentLength = 10 })
	alice, _ := th.openChat(t, "a1", "alice", "bob")
	ghostChat, _ := th.openChat(t, "a2", "alice", "ghost")
	presenceOnly, _ := th.openPresence(t, "a3", "alice")

	tests := []struct {
		name    string
		session *Session
		req     SendRequest
		want    error
	}{
		{"wrong recipient", alice, SendRequest{RecipientID: "carol", Content: "hi"}, ErrRecipientMismatch},
		{"empty", alice, SendRequest{Content: "   "}, ErrEmptyContent},
		{"too long", alice, SendRequest{Content: "this is far too long"}, ErrContentTooLong},
		{"unknown member", ghostChat, SendRequest{Content: "boo"}, ErrUnknownMember},
		{"presence session", presenceOnly, SendRequest{RecipientID: "bob", Content: "hi"}, ErrNotJoined},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.session.Send(t.Context(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, IsFatal(err))
		})
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(th.metrics.SendsRejected.WithLabelValues("unknown_member")))
}

func TestSend_PersistFailureDoesNotBroadcast(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	th := newTestHub(t, func(c *HubConfig) { c.Dedupe = cache })
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")
	_, bobSink := th.openChat(t, "b1", "bob", "alice")

	th.store.SetFailAddMessage(true)
	_, err := alice.Send(t.Context(), SendRequest{Content: "hi", ClientMessageID: "m-1"})
	require.ErrorIs(t, err, ErrPersistFailed)
	assert.Empty(t, aliceSink.ofType(EventMessage))
	assert.Empty(t, bobSink.ofType(EventMessage))

	// The retry with the same client ID is accepted once storage recovers
	th.store.SetFailAddMessage(false)
	msg, err := alice.Send(t.Context(), SendRequest{Content: "hi", ClientMessageID: "m-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, bobSink.messageIDs(EventMessage))
}

func TestSend_ReadStateMatchesRouting(t *testing.T) {
	hook := &hookStore{}
	th := newTestHub(t, func(c *HubConfig) {
		hook.MockStore = c.Store.(*store.MockStore)
		c.Store = hook
	})
	alice, _ := th.openChat(t, "a1", "alice", "bob")
	bobChat, _ := th.openChat(t, "b1", "bob", "alice")
	_, bobPresence := th.openPresence(t, "b2", "bob")

	// Bob leaves the conversation while the message is being stored
	hook.onAdd = func() { bobChat.Close(context.Background()) }

	msg, err := alice.Send(t.Context(), SendRequest{Content: "still there?"})
	require.NoError(t, err)

	stored, err := th.store.GetMessage(t.Context(), msg.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ReadAt, "bob was in the conversation when the message was routed")
	assert.Empty(t, bobPresence.ofType(EventMessageReceived), "a message stored as read is not also notified")
}

func TestJoin_RetryAfterThreadLoadFailure(t *testing.T) {
	th := newTestHub(t)
	ctx := t.Context()

	s := th.hub.newSession(KindConversation, "a1", &recordingSink{})
	require.NoError(t, s.authenticate(ctx, auth.Credentials{Token: "alice"}))

	th.store.FailLoadThread = true
	require.ErrorIs(t, s.Join(ctx, "bob"), ErrThreadLoadFailed)

	th.store.FailLoadThread = false
	require.NoError(t, s.Join(ctx, "bob"))
	assert.Equal(t, StateJoined, s.State())

	gauge := th.metrics.Connections.WithLabelValues(string(KindConversation))
	assert.Equal(t, 1.0, testutil.ToFloat64(gauge), "a retried join registers the connection once")

	s.Close(ctx)
	assert.Equal(t, 0.0, testutil.ToFloat64(gauge))
	assert.Equal(t, 0, th.hub.SessionCount())
}

func TestSend_DuplicateClientMessageID(t *testing.T) {
	cache := dedupe.New(time.Minute, 100)
	th := newTestHub(t, func(c *HubConfig) { c.Dedupe = cache })
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")

	_, err := alice.Send(t.Context(), SendRequest{Content: "hi", ClientMessageID: "m-1"})
	require.NoError(t, err)
	_, err = alice.Send(t.Context(), SendRequest{Content: "hi", ClientMessageID: "m-1"})
	assert.ErrorIs(t, err, ErrDuplicateSend)

	assert.Len(t, aliceSink.ofType(EventMessage), 1)
}

func TestSend_RateLimited(t *testing.T) {
	th := newTestHub(t, func(c *HubConfig) {
		c.SendRate = 0.001
		c.SendBurst = 2
	})
	alice, _ := th.openChat(t, "a1", "alice", "bob")

	for range 2 {
		_, err := alice.Send(t.Context(), SendRequest{Content: "hi"})
		require.NoError(t, err)
	}
	_, err := alice.Send(t.Context(), SendRequest{Content: "hi"})
	assert.ErrorIs(t, err, ErrRateLimited)

	// Limits are per connection
	bob, _ := th.openChat(t, "b1", "bob", "alice")
	_, err = bob.Send(t.Context(), SendRequest{Content: "hi"})
	assert.NoError(t, err)
}

func TestSend_SlowConsumerDoesNotFailSend(t *testing.T) {
	th := newTestHub(t)
	alice, aliceSink := th.openChat(t, "a1", "alice", "bob")
	bobSink := &recordingSink{fail: errors.New("outbox full")}
	_, err := th.hub.OpenConversation(t.Context(), "b1", auth.Credentials{Token: "bob"}, "alice", bobSink)
	require.NoError(t, err, "a failing sink does not fail the join")

	msg, err := alice.Send(t.Context(), SendRequest{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, []string{msg.ID}, aliceSink.messageIDs(EventMessage))
	assert.GreaterOrEqual(t, testutil.ToFloat64(th.metrics.DeliveryDrops.WithLabelValues(metrics.KindBroadcast)), 1.0)
}

func TestSend_AfterClose(t *testing.T) {
	th := newTestHub(t)
	alice, _ := th.openChat(t, "a1", "alice", "bob")
	alice.Close(t.Context())

	_, err := alice.Send(t.Context(), SendRequest{Content: "hi"})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, alice.Join(t.Context(), "bob"), ErrSessionClosed)
	assert.Empty(t, th.groups.ConnectionsInGroup("alice-bob"))
	assert.False(t, th.presence.IsOnline("alice"))
}

func TestSend_CancelledContextStillPersists(t *testing.T) {
	th := newTestHub(t)
	alice, _ := th.openChat(t, "a1", "alice", "bob")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	msg, err := alice.Send(ctx, SendRequest{Content: "hi"})
	require.NoError(t, err)
	_, err = th.store.GetMessage(t.Context(), msg.ID)
	assert.NoError(t, err)
}

func TestSend_BroadcastOrderMatchesPersistOrder(t *testing.T) {
	ordered := &orderedStore{MockStore: store.NewMockStore()}
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, ordered.UpsertMember(context.Background(), &store.Member{ID: id, DisplayName: id}))
	}
	var seq atomic.Int64
	hub := NewHub(HubConfig{
		Store:    ordered,
		Resolver: auth.InsecureResolver{},
		Presence: presence.New(),
		Groups:   groups.NewTracker(nil, nil),
		NewID:    func() string { return fmt.Sprintf("id-%04d", seq.Add(1)) },
	})

	open := func(conn, member, other string) (*Session, *recordingSink) {
		sink := &recordingSink{}
		s, err := hub.OpenConversation(t.Context(), conn, auth.Credentials{Token: member}, other, sink)
		require.NoError(t, err)
		return s, sink
	}
	alice, aliceSink := open("a1", "alice", "bob")
	bob, bobSink := open("b1", "bob", "alice")

	var wg sync.WaitGroup
	for _, s := range []*Session{alice, bob} {
		wg.Go(func() {
			for i := range 50 {
				_, err := s.Send(t.Context(), SendRequest{Content: fmt.Sprintf("msg %d", i)})
				assert.NoError(t, err)
			}
		})
	}
	wg.Wait()

	ordered.mu.Lock()
	want := slices.Clone(ordered.added)
	ordered.mu.Unlock()

	require.Len(t, want, 100)
	assert.Equal(t, want, aliceSink.messageIDs(EventMessage))
	assert.Equal(t, want, bobSink.messageIDs(EventMessage))
}

func TestCloseAll(t *testing.T) {
	th := newTestHub(t)
	th.openChat(t, "a1", "alice", "bob")
	th.openPresence(t, "b1", "bob")

	th.hub.CloseAll(t.Context())

	assert.Equal(t, 0, th.hub.SessionCount())
	assert.Empty(t, th.hub.OnlineMembers())
	assert.Equal(t, 0, th.groups.Len())
}

func TestReasonAndIsFatal(t *testing.T) {
	assert.Equal(t, "rate_limited", Reason(fmt.Errorf("wrapped: %w", ErrRateLimited)))
	assert.Equal(t, "internal", Reason(errors.New("boom")))
	assert.True(t, IsFatal(fmt.Errorf("x: %w", ErrJoinFailed)))
	assert.False(t, IsFatal(ErrPersistFailed))
}

func TestValidMemberID(t *testing.T) {
	assert.True(t, ValidMemberID("3f2b-uuid-like"))
	assert.False(t, ValidMemberID(""))
	assert.False(t, ValidMemberID("a b"))
	assert.False(t, ValidMemberID(string(make([]byte, 200))))
}
