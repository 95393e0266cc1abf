// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers members, thread load-and-mark-read, paging, soft delete and group mirroring

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestPingAndClose(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	require.NoError(t, s.Ping(t.Context()))
	require.NoError(t, s.Close())
	assert.Error(t, s.Ping(t.Context()), "a closed store is not ready")
}

func TestMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.GetMember(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpsertMember(ctx, &Member{ID: "alice", DisplayName: "Alice", ImageURL: "a.png"}))
	got, err := s.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.DisplayName)
	assert.Equal(t, "a.png", got.ImageURL)
	assert.False(t, got.Created.IsZero())

	require.NoError(t, s.UpsertMember(ctx, &Member{ID: "alice", DisplayName: "Alice B"}))
	got, err = s.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice B", got.DisplayName)
	assert.Empty(t, got.ImageURL)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.TouchMember(ctx, "alice", at))
	got, err = s.GetMember(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, at.Equal(got.LastActive))

	assert.ErrorIs(t, s.TouchMember(ctx, "nobody", at), ErrNotFound)
}

func TestLoadThreadAndMarkRead(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMembers(t, s, "alice", "bob", "carol")

	base := time.Now().Add(-time.Hour).UTC()
	addMessage(t, s, "m1", "bob", "alice", base)
	addMessage(t, s, "m2", "alice", "bob", base.Add(time.Minute))
	addMessage(t, s, "m3", "bob", "alice", base.Add(2*time.Minute))
	addMessage(t, s, "other", "carol", "alice", base.Add(3*time.Minute))

	thread, err := s.LoadThreadAndMarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, messageIDs(thread))

	for _, msg := range thread {
		if msg.RecipientID == "alice" {
			assert.NotNil(t, msg.ReadAt, "message %s addressed to the caller should be read", msg.ID)
		} else {
			assert.Nil(t, msg.ReadAt, "messages the caller sent stay unread")
		}
	}
	assert.Equal(t, "Bob", thread[0].SenderDisplayName)
	assert.Equal(t, "Alice", thread[0].RecipientDisplayName)

	other, err := s.GetMessage(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, other.ReadAt, "messages from other members are untouched")
}

func TestLoadThreadAndMarkRead_KeepsExistingReadAt(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMembers(t, s, "alice", "bob")

	readAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := &Message{ID: "m1", SenderID: "bob", RecipientID: "alice", Content: "hi", ReadAt: &readAt}
	require.NoError(t, s.AddMessage(ctx, msg))

	thread, err := s.LoadThreadAndMarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	require.Len(t, thread, 1)
	require.NotNil(t, thread[0].ReadAt)
	assert.True(t, readAt.Equal(*thread[0].ReadAt))
}

func TestLoadThreadAndMarkRead_ExcludesDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMembers(t, s, "alice", "bob")

	base := time.Now().UTC()
	addMessage(t, s, "m1", "bob", "alice", base)
	addMessage(t, s, "m2", "alice", "bob", base.Add(time.Second))

	require.NoError(t, s.DeleteMessage(ctx, "m1", "alice"))
	require.NoError(t, s.DeleteMessage(ctx, "m2", "alice"))

	thread, err := s.LoadThreadAndMarkRead(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Empty(t, thread)

	thread, err = s.LoadThreadAndMarkRead(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, messageIDs(thread), "bob still sees both")
}

func TestListMessages_Paging(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMembers(t, s, "alice", "bob")

	base := time.Now().UTC()
	for i := range 25 {
		addMessage(t, s, fmt.Sprintf("in-%02d", i), "bob", "alice", base.Add(time.Duration(i)*time.Second))
	}
	addMessage(t, s, "out-0", "alice", "bob", base)

	page, err := s.ListMessages(ctx, MessageParams{MemberID: "alice", PageParams: PageParams{PageNumber: 1}})
	require.NoError(t, err)
	assert.Equal(t, PageMetadata{CurrentPage: 1, TotalPages: 3, PageSize: DefaultPageSize, TotalCount: 25}, page.Metadata)
	require.Len(t, page.Items, DefaultPageSize)
	assert.Equal(t, "in-24", page.Items[0].ID, "newest first")

	page, err = s.ListMessages(ctx, MessageParams{MemberID: "alice", PageParams: PageParams{PageNumber: 3}})
	require.NoError(t, err)
	assert.Len(t, page.Items, 5)
	assert.Equal(t, "in-00", page.Items[4].ID)

	page, err = s.ListMessages(ctx, MessageParams{MemberID: "alice", Container: ContainerOutbox})
	require.NoError(t, err)
	assert.Equal(t, []string{"out-0"}, messageIDs(page.Items))

	page, err = s.ListMessages(ctx, MessageParams{MemberID: "alice", PageParams: PageParams{PageSize: 500}})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Metadata.PageSize)
	assert.Len(t, page.Items, 25)

	page, err = s.ListMessages(ctx, MessageParams{MemberID: "alice", PageParams: PageParams{PageNumber: 9}})
	require.NoError(t, err)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestDeleteMessage(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()
	seedMembers(t, s, "alice", "bob", "carol")
	addMessage(t, s, "m1", "alice", "bob", time.Now())

	assert.ErrorIs(t, s.DeleteMessage(ctx, "missing", "alice"), ErrNotFound)
	assert.ErrorIs(t, s.DeleteMessage(ctx, "m1", "carol"), ErrForbidden)

	require.NoError(t, s.DeleteMessage(ctx, "m1", "alice"))
	msg, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, msg.SenderDeleted)
	assert.False(t, msg.RecipientDeleted)

	outbox, err := s.ListMessages(ctx, MessageParams{MemberID: "alice", Container: ContainerOutbox})
	require.NoError(t, err)
	assert.Empty(t, outbox.Items)

	require.NoError(t, s.DeleteMessage(ctx, "m1", "bob"))
	_, err = s.GetMessage(ctx, "m1")
	assert.ErrorIs(t, err, ErrNotFound, "row is removed when both sides delete")
}

func TestGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	_, err := s.GetGroup(ctx, "alice-bob")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.AddGroup(ctx, &Group{Name: "alice-bob"}))
	require.NoError(t, s.AddGroup(ctx, &Group{Name: "alice-bob"}), "adding twice is fine")

	require.NoError(t, s.AddConnection(ctx, "alice-bob", Connection{ID: "c2", MemberID: "bob"}))
	require.NoError(t, s.AddConnection(ctx, "alice-bob", Connection{ID: "c1", MemberID: "alice"}))

	group, err := s.GetGroup(ctx, "alice-bob")
	require.NoError(t, err)
	assert.Equal(t, []Connection{{ID: "c1", MemberID: "alice"}, {ID: "c2", MemberID: "bob"}}, group.Connections)

	// Moving a connection to another group
	require.NoError(t, s.AddGroup(ctx, &Group{Name: "alice-carol"}))
	require.NoError(t, s.AddConnection(ctx, "alice-carol", Connection{ID: "c1", MemberID: "alice"}))
	group, err = s.GetGroup(ctx, "alice-bob")
	require.NoError(t, err)
	assert.Equal(t, []Connection{{ID: "c2", MemberID: "bob"}}, group.Connections)

	require.NoError(t, s.RemoveConnection(ctx, "c2"))
	require.NoError(t, s.RemoveConnection(ctx, "c2"), "removing an unknown connection is not an error")
	group, err = s.GetGroup(ctx, "alice-bob")
	require.NoError(t, err)
	assert.Empty(t, group.Connections)

	require.NoError(t, s.ClearConnections(ctx))
	group, err = s.GetGroup(ctx, "alice-carol")
	require.NoError(t, err)
	assert.Empty(t, group.Connections)
}

func TestAddConnection_UnknownGroup(t *testing.T) {
	s := newTestStore(t)
	err := s.AddConnection(t.Context(), "nope", Connection{ID: "c1", MemberID: "alice"})
	assert.Error(t, err, "foreign key requires the group to exist")
}

// newTestStore creates a new SQLite store for testing.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMembers(t *testing.T, s Store, ids ...string) {
	t.Helper()
	for _, id := range ids {
		name := string(id[0]-'a'+'A') + id[1:]
		require.NoError(t, s.UpsertMember(context.Background(), &Member{ID: id, DisplayName: name}))
	}
}

func addMessage(t *testing.T, s Store, id, from, to string, at time.Time) {
	t.Helper()
	msg := &Message{ID: id, SenderID: from, RecipientID: to, Content: "content " + id, SentAt: at}
	require.NoError(t, s.AddMessage(context.Background(), msg))
}

func messageIDs(msgs []*Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
