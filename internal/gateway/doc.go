// Package gateway orchestrates the heartline-gateway server components.
//
// # Overview
//
// New opens the SQLite store and wires it to the presence registry, the
// conversation group tracker, the realtime hub and the websocket server.
// Everything is constructed once here and injected; no package holds global
// state.
//
// # Endpoints
//
//   - GET /hubs/presence - Presence websocket
//   - GET /hubs/message?userId=<id> - Conversation websocket
//   - GET /api/messages - Inbox or Outbox, paged
//   - GET /api/messages/thread/{memberId} - Thread, marking it read
//   - POST /api/messages - Store a message without realtime push
//   - DELETE /api/messages/{id} - Delete a message for the caller
//   - GET /api/presence - Online member snapshot
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (database ping)
//   - GET /metrics - Prometheus metrics, when enabled
//
// API routes require a bearer token and stamp the caller's last activity.
//
// # Startup
//
// With group mirroring enabled, connection rows left by a previous process
// are cleared before the server accepts connections.
//
// # Shutdown
//
// Shutdown closes websocket connections with a going-away close frame, which
// removes every session from presence and from its conversation group, then
// stops the HTTP server and closes the store.
package gateway
