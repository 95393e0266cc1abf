// ABOUTME: Store interface and data types for heartline-gateway persistence
// ABOUTME: Defines Member, Message, Group and Connection plus the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when a member acts on a message they neither sent nor received
var ErrForbidden = errors.New("forbidden")

// Member is the read model of a dating-app member as seen by messaging.
type Member struct {
	ID          string
	DisplayName string
	ImageURL    string
	Created     time.Time
	LastActive  time.Time
}

// Message is a single direct message between two members.
// ReadAt is nil until the recipient has seen the message.
type Message struct {
	ID                   string
	SenderID             string
	SenderDisplayName    string
	SenderImageURL       string
	RecipientID          string
	RecipientDisplayName string
	RecipientImageURL    string
	Content              string
	SentAt               time.Time
	ReadAt               *time.Time
	SenderDeleted        bool
	RecipientDeleted     bool
}

// Connection associates a live realtime connection with the member that owns it.
type Connection struct {
	ID       string
	MemberID string
}

// Group is the durable mirror of a conversation group and its connections.
type Group struct {
	Name        string
	Connections []Connection
}

// MemberStore looks up and maintains members.
type MemberStore interface {
	GetMember(ctx context.Context, id string) (*Member, error)
	UpsertMember(ctx context.Context, member *Member) error
	// TouchMember stamps the member's LastActive time.
	TouchMember(ctx context.Context, id string, at time.Time) error
}

// MessageStore persists direct messages.
type MessageStore interface {
	AddMessage(ctx context.Context, msg *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)

	// LoadThreadAndMarkRead marks every unread message from other to current
	// as read and returns the conversation between the two members in the
	// order the messages were sent. Both steps run in one transaction so a
	// message arriving concurrently is either marked and returned, or neither.
	LoadThreadAndMarkRead(ctx context.Context, currentID, otherID string) ([]*Message, error)

	ListMessages(ctx context.Context, params MessageParams) (*Page[*Message], error)

	// DeleteMessage hides the message for memberID. The row is removed once
	// both sides have deleted it.
	DeleteMessage(ctx context.Context, id, memberID string) error
}

// GroupStore mirrors conversation group membership.
type GroupStore interface {
	GetGroup(ctx context.Context, name string) (*Group, error)
	AddGroup(ctx context.Context, group *Group) error
	AddConnection(ctx context.Context, groupName string, conn Connection) error
	RemoveConnection(ctx context.Context, connectionID string) error
	// ClearConnections drops every mirrored connection. Connections never
	// survive a restart, so the gateway calls this at startup.
	ClearConnections(ctx context.Context) error
}

// Store is the full persistence surface used by the gateway.
type Store interface {
	MemberStore
	MessageStore
	GroupStore

	// Ping reports whether the backing database is usable
	Ping(ctx context.Context) error
	// Close releases any resources held by the store
	Close() error
}
