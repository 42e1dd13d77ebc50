package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	domainChat "prism/internal/domain/services/chat"
	"prism/internal/httputil"
)

// stubTurnService either fails StartTurn or returns a stream pre-loaded
// with the given events.
type stubTurnService struct {
	startErr error
	events   []domainChat.TurnEvent

	gotReq *domainChat.TurnRequest
}

func (s *stubTurnService) StartTurn(ctx context.Context, req *domainChat.TurnRequest) (*domainChat.TurnStream, error) {
	s.gotReq = req
	if s.startErr != nil {
		return nil, s.startErr
	}
	stream := domainChat.NewTurnStream()
	go func() {
		for _, ev := range s.events {
			stream.Emit(ev)
		}
		stream.Close()
	}()
	return stream, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postTurn(t *testing.T, h *ChatHandler, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewReader(payload))
	req = httputil.WithUserID(req, "u1")
	rec := httptest.NewRecorder()
	h.StreamTurn(rec, req)
	return rec
}

func TestStreamTurn_RelaysEventsAsSSE(t *testing.T) {
	svc := &stubTurnService{events: []domainChat.TurnEvent{
		{Type: chatModels.SSEEventStart, Data: chatModels.StartEvent{ConversationID: "c1", Model: "claude-sonnet-4-5"}},
		{Type: chatModels.SSEEventText, Data: chatModels.TextEvent{Delta: "Hello"}},
		{Type: chatModels.SSEEventDone, Data: chatModels.DoneEvent{MessageID: "m1", Title: "Greeting"}},
	}}
	h := NewChatHandler(svc, discardLogger())

	rec := postTurn(t, h, map[string]string{"model": "claude-sonnet-4-5", "text": "hi"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"event: start\n",
		`data: {"conversation_id":"c1","model":"claude-sonnet-4-5"}`,
		"event: text\n",
		`data: {"delta":"Hello"}`,
		"event: done\n",
		`data: {"message_id":"m1","title":"Greeting"}`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	if svc.gotReq.UserID != "u1" {
		t.Errorf("UserID = %q, want session user", svc.gotReq.UserID)
	}
}

func TestStreamTurn_PipelineErrorsUsePlainTextCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{"invalid model", domain.ErrInvalidModel, http.StatusBadRequest, "Invalid model"},
		{"out of messages", domain.ErrOutOfMessages, http.StatusForbidden, "Out of available messages"},
		{"locked", domain.ErrConversationLocked, http.StatusConflict, "conversation_locked"},
		{"file too large", domain.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
		{"content filter", domain.ErrContentFilter, http.StatusBadRequest, "content_filter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewChatHandler(&stubTurnService{startErr: tt.err}, discardLogger())

			rec := postTurn(t, h, map[string]string{"model": "claude-sonnet-4-5", "text": "hi"})

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			// Exact body match: the client switches on the code string.
			if got := rec.Body.String(); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
			if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
				t.Errorf("Content-Type = %q, want text/plain", ct)
			}
		})
	}
}

func TestStreamTurn_ValidatesRequest(t *testing.T) {
	h := NewChatHandler(&stubTurnService{}, discardLogger())

	rec := postTurn(t, h, map[string]string{"text": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing model: status = %d, want 400", rec.Code)
	}

	rec = postTurn(t, h, map[string]string{"model": "claude-sonnet-4-5"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing text: status = %d, want 400", rec.Code)
	}
}

func TestStreamTurn_StreamErrorEventReachesClient(t *testing.T) {
	svc := &stubTurnService{events: []domainChat.TurnEvent{
		{Type: chatModels.SSEEventStart, Data: chatModels.StartEvent{ConversationID: "c1", Model: "claude-sonnet-4-5"}},
		{Type: chatModels.SSEEventError, Data: chatModels.ErrorEvent{Code: "stream_error"}},
	}}
	h := NewChatHandler(svc, discardLogger())

	rec := postTurn(t, h, map[string]string{"model": "claude-sonnet-4-5", "text": "hi"})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (error arrives as an event)", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "event: error\n") || !strings.Contains(body, `data: {"code":"stream_error"}`) {
		t.Errorf("body missing error event:\n%s", body)
	}
}
