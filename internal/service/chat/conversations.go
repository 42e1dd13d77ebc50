package chat

import (
	"context"
	"log/slog"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	"prism/internal/domain/repositories"
	chatRepo "prism/internal/domain/repositories/chat"
	domainChat "prism/internal/domain/services/chat"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ConversationService implements the conversation read/update/delete surface.
// All operations are owner-scoped through the repository; the service never
// performs authorization beyond trusting the session-resolved user ID.
type ConversationService struct {
	conversations chatRepo.ConversationRepository
	messages      chatRepo.MessageRepository
	txManager     repositories.TransactionManager
	logger        *slog.Logger
}

// NewConversationService creates a ConversationService.
func NewConversationService(conversations chatRepo.ConversationRepository, messages chatRepo.MessageRepository, txManager repositories.TransactionManager, logger *slog.Logger) domainChat.ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		txManager:     txManager,
		logger:        logger,
	}
}

// ListConversations returns a page of the user's conversations, newest
// activity first.
func (s *ConversationService) ListConversations(ctx context.Context, userID string, limit, offset int) ([]chatModels.Conversation, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return s.conversations.ListConversations(ctx, userID, limit, offset)
}

// GetConversation returns one conversation scoped to its owner.
func (s *ConversationService) GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, error) {
	return s.conversations.GetConversation(ctx, conversationID, userID)
}

// ListMessages returns a conversation's messages in creation order after
// verifying ownership.
func (s *ConversationService) ListMessages(ctx context.Context, conversationID, userID string) ([]chatModels.Message, error) {
	if _, err := s.conversations.GetConversation(ctx, conversationID, userID); err != nil {
		return nil, err
	}
	return s.messages.ListMessages(ctx, conversationID)
}

// UpdateConversation applies a partial update of title and model. The
// read-modify-write runs in one transaction so concurrent updates cannot
// interleave.
func (s *ConversationService) UpdateConversation(ctx context.Context, conversationID, userID string, title, model *string) (*chatModels.Conversation, error) {
	var conv *chatModels.Conversation

	err := s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		var err error
		conv, err = s.conversations.GetConversation(txCtx, conversationID, userID)
		if err != nil {
			return err
		}

		if title != nil {
			if *title == "" {
				return &domain.ValidationError{Message: "title cannot be empty"}
			}
			conv.Title = *title
		}
		if model != nil {
			conv.Model = *model
		}

		return s.conversations.UpdateConversation(txCtx, conv)
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// DeleteConversation removes a conversation and its messages atomically.
func (s *ConversationService) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	return s.txManager.ExecTx(ctx, func(txCtx context.Context) error {
		return s.conversations.DeleteConversation(txCtx, conversationID, userID)
	})
}
