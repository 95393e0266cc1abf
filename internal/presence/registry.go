// ABOUTME: In-memory registry of online members and their live connection IDs
// ABOUTME: Shared by all realtime sessions; every operation is safe for concurrent use

package presence

import (
	"slices"
	"sync"
)

// Registry maps member IDs to the set of their active connection IDs.
// A member key exists if and only if its connection set is non-empty.
type Registry struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // memberID -> connectionID set
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		members: make(map[string]map[string]struct{}),
	}
}

// Connect records connectionID as a live connection of memberID.
// Calling it twice with the same pair is a no-op.
// Returns true if the member had no connections before this call.
func (r *Registry) Connect(memberID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.members[memberID]
	if !ok {
		conns = make(map[string]struct{})
		r.members[memberID] = conns
	}
	conns[connectionID] = struct{}{}
	return !ok
}

// Disconnect removes connectionID from memberID's connections, dropping the
// member entirely once no connections remain. Unknown members or connections
// are ignored so duplicate disconnect notifications are harmless.
// Returns true if this call removed the member's last connection.
func (r *Registry) Disconnect(memberID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.members[memberID]
	if !ok {
		return false
	}
	if _, exists := conns[connectionID]; !exists {
		return false
	}

	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(r.members, memberID)
		return true
	}
	return false
}

// ListOnlineMembers returns a sorted snapshot of every member with at least
// one connection. The result may be stale as soon as it is returned.
func (r *Registry) ListOnlineMembers() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.members))
	for memberID := range r.members {
		out = append(out, memberID)
	}
	r.mu.RUnlock()

	slices.Sort(out)
	return out
}

// ConnectionsFor returns the sorted connection IDs held by memberID.
// Returns an empty, non-nil slice for unknown members.
func (r *Registry) ConnectionsFor(memberID string) []string {
	r.mu.RLock()
	conns := r.members[memberID]
	out := make([]string, 0, len(conns))
	for id := range conns {
		out = append(out, id)
	}
	r.mu.RUnlock()

	slices.Sort(out)
	return out
}

// IsOnline reports whether memberID currently has any connection.
func (r *Registry) IsOnline(memberID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[memberID]
	return ok
}

// Len returns the number of online members.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
