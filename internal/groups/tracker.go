// ABOUTME: Tracks which live connections are viewing which two-member conversation
// ABOUTME: Optionally mirrors group membership to storage before updating memory

package groups

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/2389/heartline-gateway/internal/store"
)

// Separator joins the two member IDs of a group name.
const Separator = "-"

// Name returns the canonical group name for a conversation between a and b.
// The ordinally smaller ID comes first, so Name(a, b) == Name(b, a).
func Name(a, b string) string {
	if a < b {
		return a + Separator + b
	}
	return b + Separator + a
}

// Mirror is the storage the tracker writes group membership through to.
// store.GroupStore satisfies it.
type Mirror interface {
	GetGroup(ctx context.Context, name string) (*store.Group, error)
	AddGroup(ctx context.Context, group *store.Group) error
	AddConnection(ctx context.Context, groupName string, conn store.Connection) error
	RemoveConnection(ctx context.Context, connectionID string) error
}

type member struct {
	group    string
	memberID string
}

// Tracker maps group names to the connections currently joined to them.
// A connection belongs to at most one group at a time.
type Tracker struct {
	mirror Mirror
	logger *slog.Logger

	mu     sync.RWMutex
	groups map[string]map[string]string // group -> connectionID -> memberID
	conns  map[string]member            // connectionID -> membership
}

// NewTracker creates a Tracker. A nil mirror keeps membership in memory only.
func NewTracker(mirror Mirror, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		mirror: mirror,
		logger: logger.With("component", "groups"),
		groups: make(map[string]map[string]string),
		conns:  make(map[string]member),
	}
}

// Join adds connectionID (owned by memberID) to groupName.
//
// With a mirror configured the membership is persisted first. If persisting
// fails Join returns false and in-memory state is unchanged. Joining a group
// the connection is already in is a no-op that returns true.
func (t *Tracker) Join(ctx context.Context, groupName, connectionID, memberID string) bool {
	t.mu.RLock()
	current, ok := t.conns[connectionID]
	t.mu.RUnlock()
	if ok && current.group == groupName && current.memberID == memberID {
		return true
	}

	if t.mirror != nil {
		if err := t.persist(ctx, groupName, connectionID, memberID); err != nil {
			t.logger.Error("failed to persist group join",
				"group", groupName,
				"connection_id", connectionID,
				"member_id", memberID,
				"error", err,
			)
			return false
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.conns[connectionID]; ok && prev.group != groupName {
		t.removeLocked(prev.group, connectionID)
	}

	conns, ok := t.groups[groupName]
	if !ok {
		conns = make(map[string]string)
		t.groups[groupName] = conns
	}
	conns[connectionID] = memberID
	t.conns[connectionID] = member{group: groupName, memberID: memberID}

	t.logger.Debug("connection joined group", "group", groupName, "connection_id", connectionID, "member_id", memberID)
	return true
}

func (t *Tracker) persist(ctx context.Context, groupName, connectionID, memberID string) error {
	_, err := t.mirror.GetGroup(ctx, groupName)
	if errors.Is(err, store.ErrNotFound) {
		err = t.mirror.AddGroup(ctx, &store.Group{Name: groupName})
	}
	if err != nil {
		return err
	}
	return t.mirror.AddConnection(ctx, groupName, store.Connection{ID: connectionID, MemberID: memberID})
}

// LeaveOnDisconnect removes connectionID from whichever group holds it.
// Untracked connections are ignored. Mirror failures are logged only.
func (t *Tracker) LeaveOnDisconnect(ctx context.Context, connectionID string) {
	t.mu.Lock()
	m, ok := t.conns[connectionID]
	if ok {
		t.removeLocked(m.group, connectionID)
	}
	t.mu.Unlock()

	if !ok {
		return
	}

	if t.mirror != nil {
		if err := t.mirror.RemoveConnection(ctx, connectionID); err != nil {
			t.logger.Warn("failed to remove mirrored connection",
				"group", m.group,
				"connection_id", connectionID,
				"error", err,
			)
		}
	}
	t.logger.Debug("connection left group", "group", m.group, "connection_id", connectionID)
}

// removeLocked drops a connection from a group. Caller must hold t.mu.
func (t *Tracker) removeLocked(groupName, connectionID string) {
	delete(t.conns, connectionID)
	conns := t.groups[groupName]
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(t.groups, groupName)
	}
}

// MembersInGroup returns the set of member IDs with at least one connection
// in the group.
func (t *Tracker) MembersInGroup(groupName string) map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()

	members := make(map[string]struct{})
	for _, memberID := range t.groups[groupName] {
		members[memberID] = struct{}{}
	}
	return members
}

// HasMember reports whether memberID has a connection in the group.
func (t *Tracker) HasMember(groupName, memberID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, m := range t.groups[groupName] {
		if m == memberID {
			return true
		}
	}
	return false
}

// ConnectionsInGroup returns the connection IDs joined to the group, sorted.
func (t *Tracker) ConnectionsInGroup(groupName string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	conns := make([]string, 0, len(t.groups[groupName]))
	for id := range t.groups[groupName] {
		conns = append(conns, id)
	}
	slices.Sort(conns)
	return conns
}

// GroupFor returns the group the connection is joined to.
func (t *Tracker) GroupFor(connectionID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	m, ok := t.conns[connectionID]
	return m.group, ok
}

// Len returns the number of groups with at least one connection.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.groups)
}
