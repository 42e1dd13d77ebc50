package handler

import (
	"log/slog"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/httputil"
)

// ChatHandler serves the streaming chat turn endpoint.
// Follows Clean Architecture: handlers only communicate with services, never repositories
type ChatHandler struct {
	turns  domainChat.TurnService
	logger *slog.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(turns domainChat.TurnService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{turns: turns, logger: logger}
}

// validateTurnRequest checks the request fields before the pipeline runs.
func validateTurnRequest(req *domainChat.TurnRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Model, validation.Required),
		validation.Field(&req.Text, validation.Required, validation.Length(1, 100_000)),
	)
}

// StreamTurn runs one chat turn and streams the response as SSE.
// POST /api/chat
//
// Turn pipeline rejections use the plain-text code contract rather than the
// JSON error shape: the client switches on the exact body string.
func (h *ChatHandler) StreamTurn(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req domainChat.TurnRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.UserID = userID

	if err := validateTurnRequest(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	stream, err := h.turns.StartTurn(r.Context(), &req)
	if err != nil {
		if code, status, ok := domain.ClientCode(err); ok {
			httputil.RespondCode(w, status, code)
			return
		}
		handleError(w, err)
		return
	}

	h.writeSSE(w, r, stream)
}

// writeSSE relays stream events to the client until the stream closes or
// the client disconnects. Disconnection only abandons delivery; the turn
// keeps running server-side.
func (h *ChatHandler) writeSSE(w http.ResponseWriter, r *http.Request, stream *domainChat.TurnStream) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httputil.RespondError(w, http.StatusInternalServerError, "streaming not supported")
		stream.Abandon()
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			stream.Abandon()
			return

		case ev, open := <-stream.Events():
			if !open {
				return
			}

			payload, err := chatModels.FormatSSE(ev.Type, ev.Data)
			if err != nil {
				h.logger.Error("failed to format SSE event", "type", ev.Type, "error", err)
				continue
			}
			if _, err := w.Write([]byte(payload)); err != nil {
				stream.Abandon()
				return
			}
			flusher.Flush()
		}
	}
}
