// ABOUTME: JSON API for message history, sending without push, deletion and presence
// ABOUTME: Every route sits behind bearer-token auth, which also stamps the member's last activity

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/2389/heartline-gateway/internal/auth"
	"github.com/2389/heartline-gateway/internal/realtime"
	"github.com/2389/heartline-gateway/internal/store"
)

// CreateMessageRequest is the JSON request body for POST /api/messages.
type CreateMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Content     string `json:"content"`
}

// PresenceResponse is the JSON response for GET /api/presence.
type PresenceResponse struct {
	Online []string `json:"online"`
}

// registerAPIRoutes mounts the JSON API on mux.
func (g *Gateway) registerAPIRoutes(mux *http.ServeMux, logger *slog.Logger) {
	authMiddleware := auth.HTTPAuthMiddleware(g.resolver, g.store, logger)

	route := func(pattern, label string, h http.HandlerFunc) {
		mux.Handle(pattern, g.metrics.Middleware(label, authMiddleware(h)))
	}

	route("GET /api/messages", "/api/messages", g.handleListMessages)
	route("POST /api/messages", "/api/messages", g.handleCreateMessage)
	route("GET /api/messages/thread/{memberId}", "/api/messages/thread", g.handleThread)
	route("DELETE /api/messages/{id}", "/api/messages/{id}", g.handleDeleteMessage)
	route("GET /api/presence", "/api/presence", g.handlePresence)
}

// handleListMessages handles GET /api/messages?container=Inbox|Outbox&pageNumber=&pageSize=.
// Pagination metadata is returned in the body and in the Pagination header.
func (g *Gateway) handleListMessages(w http.ResponseWriter, r *http.Request) {
	member := auth.MustFromContext(r.Context()).MemberID
	q := r.URL.Query()

	container := store.ContainerInbox
	switch c := q.Get("container"); {
	case c == "", strings.EqualFold(c, string(store.ContainerInbox)):
	case strings.EqualFold(c, string(store.ContainerOutbox)):
		container = store.ContainerOutbox
	default:
		g.sendJSONError(w, http.StatusBadRequest, "container must be Inbox or Outbox")
		return
	}

	pageNumber, err := optionalInt(q.Get("pageNumber"))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "pageNumber must be an integer")
		return
	}
	pageSize, err := optionalInt(q.Get("pageSize"))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "pageSize must be an integer")
		return
	}

	page, err := g.store.ListMessages(r.Context(), store.MessageParams{
		PageParams: store.PageParams{PageNumber: pageNumber, PageSize: pageSize},
		MemberID:   member,
		Container:  container,
	})
	if err != nil {
		g.logger.Error("failed to list messages", "member_id", member, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	if header, err := json.Marshal(page.Metadata); err == nil {
		w.Header().Set("Pagination", string(header))
	}
	g.sendJSON(w, http.StatusOK, &store.Page[realtime.MessageDTO]{
		Metadata: page.Metadata,
		Items:    realtime.NewMessageDTOs(page.Items),
	})
}

// handleThread handles GET /api/messages/thread/{memberId}. Like joining a
// conversation it marks the counterpart's unread messages as read.
func (g *Gateway) handleThread(w http.ResponseWriter, r *http.Request) {
	member := auth.MustFromContext(r.Context()).MemberID
	other := r.PathValue("memberId")
	if !realtime.ValidMemberID(other) {
		g.sendJSONError(w, http.StatusBadRequest, "invalid member id")
		return
	}

	msgs, err := g.store.LoadThreadAndMarkRead(r.Context(), member, other)
	if err != nil {
		g.logger.Error("failed to load thread", "member_id", member, "other_member_id", other, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to load message thread")
		return
	}
	g.sendJSON(w, http.StatusOK, realtime.NewMessageDTOs(msgs))
}

// handleCreateMessage handles POST /api/messages. The message is stored but
// not pushed to realtime connections.
func (g *Gateway) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	member := auth.MustFromContext(r.Context()).MemberID

	var req CreateMessageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, g.config.Realtime.MaxMessageSize)).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	switch {
	case req.RecipientID == "":
		g.sendJSONError(w, http.StatusBadRequest, "recipientId is required")
		return
	case req.RecipientID == member:
		g.sendJSONError(w, http.StatusBadRequest, realtime.ErrCannotMessageSelf.Error())
		return
	case strings.TrimSpace(req.Content) == "":
		g.sendJSONError(w, http.StatusBadRequest, realtime.ErrEmptyContent.Error())
		return
	case utf8.RuneCountInString(req.Content) > g.config.Realtime.MaxContentLength:
		g.sendJSONError(w, http.StatusBadRequest, realtime.ErrContentTooLong.Error())
		return
	}

	sender, err := g.store.GetMember(r.Context(), member)
	if err != nil {
		g.lookupFailed(w, member, err)
		return
	}
	recipient, err := g.store.GetMember(r.Context(), req.RecipientID)
	if err != nil {
		g.lookupFailed(w, req.RecipientID, err)
		return
	}

	msg := &store.Message{
		ID:                   uuid.NewString(),
		SenderID:             sender.ID,
		SenderDisplayName:    sender.DisplayName,
		SenderImageURL:       sender.ImageURL,
		RecipientID:          recipient.ID,
		RecipientDisplayName: recipient.DisplayName,
		RecipientImageURL:    recipient.ImageURL,
		Content:              req.Content,
		SentAt:               time.Now().UTC(),
	}
	if err := g.store.AddMessage(r.Context(), msg); err != nil {
		g.logger.Error("failed to store message", "member_id", member, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, realtime.ErrPersistFailed.Error())
		return
	}

	g.sendJSON(w, http.StatusOK, realtime.NewMessageDTO(msg))
}

func (g *Gateway) lookupFailed(w http.ResponseWriter, memberID string, err error) {
	if errors.Is(err, store.ErrNotFound) {
		g.sendJSONError(w, http.StatusBadRequest, realtime.ErrUnknownMember.Error())
		return
	}
	g.logger.Error("failed to look up member", "member_id", memberID, "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, "failed to look up member")
}

// handleDeleteMessage handles DELETE /api/messages/{id}. The message is
// hidden for the caller only until the other side deletes it too.
func (g *Gateway) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	member := auth.MustFromContext(r.Context()).MemberID
	id := r.PathValue("id")

	err := g.store.DeleteMessage(r.Context(), id, member)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, store.ErrNotFound):
		g.sendJSONError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, store.ErrForbidden):
		g.sendJSONError(w, http.StatusForbidden, "you cannot delete this message")
	default:
		g.logger.Error("failed to delete message", "message_id", id, "member_id", member, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "failed to delete message")
	}
}

// handlePresence handles GET /api/presence.
func (g *Gateway) handlePresence(w http.ResponseWriter, r *http.Request) {
	g.sendJSON(w, http.StatusOK, PresenceResponse{Online: g.presence.ListOnlineMembers()})
}

func optionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.sendJSON(w, status, map[string]string{"error": message})
}
