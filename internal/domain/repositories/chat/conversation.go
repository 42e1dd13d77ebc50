package chat

import (
	"context"
	"time"

	chatModels "prism/internal/domain/models/chat"
)

// ConversationRepository persists conversations and implements the keyed
// compare-and-set the lock manager builds on. All reads are owner-scoped:
// a conversation is only visible to its owning user.
type ConversationRepository interface {
	// CreateConversation inserts a new conversation row.
	CreateConversation(ctx context.Context, conv *chatModels.Conversation) error

	// GetConversation retrieves a conversation by ID, scoped to its owner.
	GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, error)

	// ListConversations returns a page of the user's conversations ordered
	// by last_message_at descending.
	ListConversations(ctx context.Context, userID string, limit, offset int) ([]chatModels.Conversation, error)

	// UpdateConversation updates title and model.
	UpdateConversation(ctx context.Context, conv *chatModels.Conversation) error

	// UpdateTitle sets only the title.
	UpdateTitle(ctx context.Context, conversationID, title string) error

	// TouchLastMessage advances last_message_at and records the last-used model.
	TouchLastMessage(ctx context.Context, conversationID, model string, at time.Time) error

	// DeleteConversation removes a conversation and its messages.
	DeleteConversation(ctx context.Context, conversationID, userID string) error

	// TryLock performs the atomic "set locked=true where locked=false"
	// conditional update. Returns true only for the caller that won.
	TryLock(ctx context.Context, conversationID string) (bool, error)

	// Unlock clears the lock flag unconditionally.
	Unlock(ctx context.Context, conversationID string) error
}
