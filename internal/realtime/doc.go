// Package realtime implements the lifecycle of realtime connections.
//
// # Hubs
//
// Clients open two kinds of connection. A presence connection announces the
// member as online and receives UserOnline, UserOffline and the online member
// snapshot. A conversation connection is opened for one counterpart and
// receives the thread, new messages in that conversation and notifications
// about messages in other conversations.
//
// # Session states
//
//	Connecting -> Authenticated -> Joined -> Active -> Disconnected
//
// Presence sessions go from Authenticated straight to Active. Any state can
// move to Disconnected through Close, which is idempotent.
//
// # Errors
//
// IsFatal separates errors that end the connection (authentication, bad or
// failed join, thread load) from rejected sends, which are reported to the
// sender while the connection stays open.
//
// # Ordering
//
// Persisting a message and queueing its broadcast happen under a lock keyed
// by conversation group, so every connection in a conversation sees new
// messages in the order they were stored. Delivery is best effort: each
// Sink queues without blocking and drops events it cannot accept.
package realtime
