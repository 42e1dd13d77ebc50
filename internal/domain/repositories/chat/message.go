package chat

import (
	"context"

	chatModels "prism/internal/domain/models/chat"
)

// MessageRepository persists messages. Messages are append-only once
// committed, except for post-hoc source annotations on assistant messages.
type MessageRepository interface {
	// CreateMessage inserts a message with its parts and attachment
	// references serialized as JSONB.
	CreateMessage(ctx context.Context, msg *chatModels.Message) error

	// ListMessages returns all messages of a conversation ordered by
	// created_at ascending, with legacy rows normalized into parts.
	ListMessages(ctx context.Context, conversationID string) ([]chatModels.Message, error)

	// AppendSources appends source parts to an existing message.
	AppendSources(ctx context.Context, messageID string, sources []chatModels.Source) error

	// CountMessages returns the number of messages in a conversation.
	CountMessages(ctx context.Context, conversationID string) (int, error)
}
