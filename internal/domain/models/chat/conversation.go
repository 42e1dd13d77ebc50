package chat

import (
	"time"
)

// DefaultTitle is the placeholder title a conversation carries until its
// first exchange completes and a generated title replaces it.
const DefaultTitle = "New Chat"

// Conversation represents a chat session owned by a single user.
// Turns within one conversation are serialized by the Locked flag; the flag
// is set and cleared only by the turn orchestrator.
type Conversation struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"user_id" db:"user_id"`
	Title         string    `json:"title" db:"title"`
	Model         string    `json:"model" db:"model"` // last-used model id
	Locked        bool      `json:"-" db:"locked"`
	LastMessageAt time.Time `json:"last_message_at" db:"last_message_at"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// HasDefaultTitle reports whether the conversation is still untitled,
// which marks the first exchange for title generation.
func (c *Conversation) HasDefaultTitle() bool {
	return c.Title == "" || c.Title == DefaultTitle
}
