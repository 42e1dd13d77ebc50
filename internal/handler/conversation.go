package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	domainChat "prism/internal/domain/services/chat"
	"prism/internal/httputil"
)

// ConversationHandler serves the conversation CRUD endpoints
type ConversationHandler struct {
	conversations domainChat.ConversationService
	logger        *slog.Logger
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(conversations domainChat.ConversationService, logger *slog.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: conversations, logger: logger}
}

// ListConversations returns a page of the user's conversations
// GET /api/conversations?limit=N&offset=M
func (h *ConversationHandler) ListConversations(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	conversations, err := h.conversations.ListConversations(r.Context(), userID, limit, offset)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversations)
}

// GetConversation retrieves one conversation
// GET /api/conversations/{id}
func (h *ConversationHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	conversation, err := h.conversations.GetConversation(r.Context(), conversationID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversation)
}

// ListMessages returns a conversation's messages in creation order
// GET /api/conversations/{id}/messages
func (h *ConversationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	messages, err := h.conversations.ListMessages(r.Context(), conversationID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, messages)
}

// UpdateConversation applies a partial update of title and model
// PATCH /api/conversations/{id}
func (h *ConversationHandler) UpdateConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	var req struct {
		Title *string `json:"title"`
		Model *string `json:"model"`
	}
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	userID := httputil.GetUserID(r)
	conversation, err := h.conversations.UpdateConversation(r.Context(), conversationID, userID, req.Title, req.Model)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, conversation)
}

// DeleteConversation removes a conversation and its messages
// DELETE /api/conversations/{id}
func (h *ConversationHandler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	conversationID, ok := PathParam(w, r, "id", "Conversation ID")
	if !ok {
		return
	}

	userID := httputil.GetUserID(r)
	if err := h.conversations.DeleteConversation(r.Context(), conversationID, userID); err != nil {
		handleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// queryInt parses an integer query parameter, falling back on the default
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
