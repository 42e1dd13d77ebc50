package chat

import (
	"context"

	chatModels "prism/internal/domain/models/chat"
)

// TurnRequest is one user turn submitted to the orchestrator.
type TurnRequest struct {
	ConversationID string                  `json:"conversation_id"`
	UserID         string                  `json:"-"`
	Model          string                  `json:"model"`
	Text           string                  `json:"text"`
	Attachments    []chatModels.Attachment `json:"attachments,omitempty"`
	AcademicMode   bool                    `json:"academic_mode,omitempty"`
	Browse         bool                    `json:"browse,omitempty"`
}

// TurnEvent is one server-sent event of an in-flight turn, ready for SSE
// formatting by the handler.
type TurnEvent struct {
	Type string
	Data interface{}
}

// TurnStream is the client's view of one running turn. The orchestrator
// keeps generating and committing even after the client abandons the
// stream; abandonment only stops event delivery.
type TurnStream struct {
	events    chan TurnEvent
	abandoned chan struct{}
}

// NewTurnStream creates a stream with a small event buffer.
func NewTurnStream() *TurnStream {
	return &TurnStream{
		events:    make(chan TurnEvent, 64),
		abandoned: make(chan struct{}),
	}
}

// Events returns the channel the handler reads until it closes.
func (s *TurnStream) Events() <-chan TurnEvent {
	return s.events
}

// Abandon marks the client as gone. Safe to call multiple times.
// Generation and commit continue server-side regardless.
func (s *TurnStream) Abandon() {
	select {
	case <-s.abandoned:
	default:
		close(s.abandoned)
	}
}

// Emit delivers an event unless the client abandoned the stream.
// Never blocks past abandonment, so the commit path cannot be wedged by a
// dead client connection.
func (s *TurnStream) Emit(ev TurnEvent) {
	select {
	case s.events <- ev:
	case <-s.abandoned:
	}
}

// Close ends the stream after the terminal event.
func (s *TurnStream) Close() {
	close(s.events)
}

// TurnService is the streaming orchestrator entry point. StartTurn performs
// all early rejections synchronously (invalid model, exhausted quota, lock
// contention, oversized attachments map to domain sentinels) and returns a
// stream once generation has begun.
type TurnService interface {
	StartTurn(ctx context.Context, req *TurnRequest) (*TurnStream, error)
}

// ConversationService is the CRUD surface of the conversation endpoints.
type ConversationService interface {
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]chatModels.Conversation, error)
	GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, error)
	ListMessages(ctx context.Context, conversationID, userID string) ([]chatModels.Message, error)
	UpdateConversation(ctx context.Context, conversationID, userID string, title, model *string) (*chatModels.Conversation, error)
	DeleteConversation(ctx context.Context, conversationID, userID string) error
}

// MemoryService manages the user's long-lived memory blob.
type MemoryService interface {
	GetMemory(ctx context.Context, userID string) (*chatModels.User, error)
	UpdateMemory(ctx context.Context, userID string, memory *string, enabled bool) error
}
