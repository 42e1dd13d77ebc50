package chat

import (
	"encoding/json"
	"fmt"
)

// SSE event type constants for the turn stream.
// Reasoning and source events are distinct from plain text so the client
// can render them incrementally in separate regions.
const (
	SSEEventStart     = "start"     // Assistant generation has begun
	SSEEventText      = "text"      // Incremental text content
	SSEEventReasoning = "reasoning" // Incremental reasoning content
	SSEEventSource    = "source"    // One citation obtained during generation
	SSEEventDone      = "done"      // Turn committed successfully
	SSEEventError     = "error"     // Turn failed; no assistant message persisted
)

// StartEvent signals that streaming has begun for a turn
type StartEvent struct {
	ConversationID string `json:"conversation_id"`
	Model          string `json:"model"`
}

// TextEvent carries an incremental chunk of assistant text
type TextEvent struct {
	Delta string `json:"delta"`
}

// ReasoningEvent carries an incremental chunk of reasoning content
type ReasoningEvent struct {
	Delta string `json:"delta"`
}

// SourceEvent carries one citation attached to the in-flight message
type SourceEvent struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// DoneEvent signals that the turn committed; Title is set when the first
// exchange renamed the conversation.
type DoneEvent struct {
	MessageID string `json:"message_id"`
	Title     string `json:"title,omitempty"`
}

// ErrorEvent signals a stream-level failure after generation started
type ErrorEvent struct {
	Code string `json:"code"`
}

// FormatSSE formats an event for transmission:
//
//	event: event_name
//	data: {"field": "value"}
func FormatSSE(eventType string, data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal SSE event data: %w", err)
	}

	return fmt.Sprintf("event: %s\ndata: %s\n\n", eventType, string(jsonData)), nil
}
