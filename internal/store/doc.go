// Package store provides persistent storage for the gateway using SQLite.
//
// # Architecture
//
// Store is composed of three narrower interfaces so that callers can depend
// on only what they use:
//
//   - MemberStore: member lookup and last-activity stamping
//   - MessageStore: direct messages, threads, inbox/outbox paging, soft delete
//   - GroupStore: durable mirror of conversation groups and their connections
//
// SQLiteStore implements all of them in a single struct.
//
// # Threads
//
// LoadThreadAndMarkRead marks every unread message addressed to the caller
// by the other member as read, then returns the messages between the pair
// ordered by send time. Messages the caller has deleted on their side are
// omitted.
//
// # Connections
//
// Mirrored connections describe live sockets, so they are meaningless after
// a restart. The gateway calls ClearConnections at startup.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as fixed-width RFC 3339 strings with nanoseconds in
// UTC so that ORDER BY on the text column is chronological.
//
// # Testing
//
// Use NewMockStore() for unit tests. Its Fail* fields inject errors into
// individual operations. Use NewSQLiteStore with a path under t.TempDir()
// for integration tests with real SQLite.
package store
