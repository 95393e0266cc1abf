// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrInjected is returned by MockStore operations whose Fail* flag is set.
var ErrInjected = errors.New("injected store failure")

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	members     map[string]*Member
	messages    map[string]*Message // keyed by message ID
	order       []string            // message IDs in insertion order
	groups      map[string]bool
	connections map[string]mockConn // keyed by connection ID

	// Failure injection. Set these before exercising the code under test.
	FailAddMessage    bool
	FailLoadThread    bool
	FailAddGroup      bool
	FailAddConnection bool
	FailRemove        bool
}

type mockConn struct {
	group    string
	memberID string
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		members:     make(map[string]*Member),
		messages:    make(map[string]*Message),
		groups:      make(map[string]bool),
		connections: make(map[string]mockConn),
	}
}

// SetFailAddMessage toggles AddMessage failures under the lock.
func (m *MockStore) SetFailAddMessage(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailAddMessage = fail
}

// SetFailAddConnection toggles AddGroup/AddConnection failures under the lock.
func (m *MockStore) SetFailAddConnection(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailAddConnection = fail
}

// GetMember retrieves a member by ID.
func (m *MockStore) GetMember(ctx context.Context, id string) (*Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	member, ok := m.members[id]
	if !ok {
		return nil, ErrNotFound
	}
	result := *member
	return &result, nil
}

// UpsertMember creates or updates a member.
func (m *MockStore) UpsertMember(ctx context.Context, member *Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	existing, ok := m.members[member.ID]
	if ok {
		existing.DisplayName = member.DisplayName
		existing.ImageURL = member.ImageURL
		return nil
	}

	mm := *member
	if mm.Created.IsZero() {
		mm.Created = now
	}
	if mm.LastActive.IsZero() {
		mm.LastActive = now
	}
	m.members[mm.ID] = &mm
	return nil
}

// TouchMember stamps LastActive.
func (m *MockStore) TouchMember(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	member, ok := m.members[id]
	if !ok {
		return ErrNotFound
	}
	member.LastActive = at
	return nil
}

// AddMessage stores a message.
func (m *MockStore) AddMessage(ctx context.Context, msg *Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAddMessage {
		return ErrInjected
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	stored := *msg
	m.messages[stored.ID] = &stored
	m.order = append(m.order, stored.ID)
	return nil
}

// decorate returns a copy of msg with member display fields filled in.
// Caller must hold the lock.
func (m *MockStore) decorate(msg *Message) *Message {
	result := *msg
	if msg.ReadAt != nil {
		readAt := *msg.ReadAt
		result.ReadAt = &readAt
	}
	if s, ok := m.members[msg.SenderID]; ok {
		result.SenderDisplayName = s.DisplayName
		result.SenderImageURL = s.ImageURL
	}
	if r, ok := m.members[msg.RecipientID]; ok {
		result.RecipientDisplayName = r.DisplayName
		result.RecipientImageURL = r.ImageURL
	}
	return &result
}

// GetMessage retrieves a message by ID.
func (m *MockStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.decorate(msg), nil
}

// LoadThreadAndMarkRead marks unread messages from otherID as read and
// returns the thread oldest first.
func (m *MockStore) LoadThreadAndMarkRead(ctx context.Context, currentID, otherID string) ([]*Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailLoadThread {
		return nil, ErrInjected
	}

	now := time.Now()
	var thread []*Message
	for _, id := range m.order {
		msg, ok := m.messages[id]
		if !ok {
			continue
		}
		if msg.RecipientID == currentID && msg.SenderID == otherID {
			if msg.ReadAt == nil {
				readAt := now
				msg.ReadAt = &readAt
			}
			if !msg.RecipientDeleted {
				thread = append(thread, m.decorate(msg))
			}
			continue
		}
		if msg.RecipientID == otherID && msg.SenderID == currentID && !msg.SenderDeleted {
			thread = append(thread, m.decorate(msg))
		}
	}

	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].SentAt.Before(thread[j].SentAt)
	})
	return thread, nil
}

// ListMessages returns one page of the inbox or outbox, newest first.
func (m *MockStore) ListMessages(ctx context.Context, params MessageParams) (*Page[*Message], error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	page := params.PageParams.Normalize()

	var matched []*Message
	for i := len(m.order) - 1; i >= 0; i-- {
		msg, ok := m.messages[m.order[i]]
		if !ok {
			continue
		}
		if params.Container == ContainerOutbox {
			if msg.SenderID == params.MemberID && !msg.SenderDeleted {
				matched = append(matched, m.decorate(msg))
			}
		} else if msg.RecipientID == params.MemberID && !msg.RecipientDeleted {
			matched = append(matched, m.decorate(msg))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].SentAt.After(matched[j].SentAt)
	})

	total := len(matched)
	start := min(page.Offset(), total)
	end := min(start+page.PageSize, total)
	return NewPage(matched[start:end], total, page), nil
}

// DeleteMessage soft-deletes for memberID, removing the message once both
// sides have deleted it.
func (m *MockStore) DeleteMessage(ctx context.Context, id, memberID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return ErrNotFound
	}
	if msg.SenderID != memberID && msg.RecipientID != memberID {
		return ErrForbidden
	}
	if msg.SenderID == memberID {
		msg.SenderDeleted = true
	}
	if msg.RecipientID == memberID {
		msg.RecipientDeleted = true
	}
	if msg.SenderDeleted && msg.RecipientDeleted {
		delete(m.messages, id)
	}
	return nil
}

// GetGroup retrieves a group and its connections.
func (m *MockStore) GetGroup(ctx context.Context, name string) (*Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.groups[name] {
		return nil, ErrNotFound
	}

	group := &Group{Name: name}
	for id, c := range m.connections {
		if c.group == name {
			group.Connections = append(group.Connections, Connection{ID: id, MemberID: c.memberID})
		}
	}
	sort.Slice(group.Connections, func(i, j int) bool {
		return group.Connections[i].ID < group.Connections[j].ID
	})
	return group, nil
}

// AddGroup creates a group.
func (m *MockStore) AddGroup(ctx context.Context, group *Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAddGroup || m.FailAddConnection {
		return ErrInjected
	}
	m.groups[group.Name] = true
	for _, c := range group.Connections {
		m.connections[c.ID] = mockConn{group: group.Name, memberID: c.MemberID}
	}
	return nil
}

// AddConnection records a connection in a group.
func (m *MockStore) AddConnection(ctx context.Context, groupName string, conn Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAddConnection {
		return ErrInjected
	}
	m.groups[groupName] = true
	m.connections[conn.ID] = mockConn{group: groupName, memberID: conn.MemberID}
	return nil
}

// RemoveConnection deletes a connection.
func (m *MockStore) RemoveConnection(ctx context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailRemove {
		return ErrInjected
	}
	delete(m.connections, connectionID)
	return nil
}

// ClearConnections deletes every connection.
func (m *MockStore) ClearConnections(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	clear(m.connections)
	return nil
}

// ConnectionCount reports how many connections are mirrored.
func (m *MockStore) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Close is a no-op.
func (m *MockStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MockStore) Close() error {
	return nil
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)
