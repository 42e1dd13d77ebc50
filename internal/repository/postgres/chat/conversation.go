package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	"prism/internal/repository/postgres"
)

// PostgresConversationRepository implements the ConversationRepository interface using PostgreSQL
type PostgresConversationRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewConversationRepository creates a new PostgresConversationRepository
func NewConversationRepository(config *postgres.RepositoryConfig) chatRepo.ConversationRepository {
	return &PostgresConversationRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateConversation inserts a new conversation row
func (r *PostgresConversationRepository) CreateConversation(ctx context.Context, conv *chatModels.Conversation) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, user_id, title, model, locked, last_message_at, created_at)
		VALUES ($1, $2, $3, $4, false, $5, $6)
		RETURNING created_at
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.Model,
		conv.LastMessageAt,
		conv.CreatedAt,
	).Scan(&conv.CreatedAt)

	if err != nil {
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("conversation %s already exists", conv.ID),
				ResourceType: "conversation",
				ResourceID:   conv.ID,
			}
		}
		return fmt.Errorf("create conversation: %w", err)
	}

	return nil
}

// GetConversation retrieves a conversation by ID, scoped to its owner
func (r *PostgresConversationRepository) GetConversation(ctx context.Context, conversationID, userID string) (*chatModels.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, model, locked, last_message_at, created_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Conversations)

	var conv chatModels.Conversation
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, conversationID, userID).Scan(
		&conv.ID,
		&conv.UserID,
		&conv.Title,
		&conv.Model,
		&conv.Locked,
		&conv.LastMessageAt,
		&conv.CreatedAt,
	)

	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &conv, nil
}

// ListConversations returns a page of the user's conversations ordered by
// last_message_at descending
func (r *PostgresConversationRepository) ListConversations(ctx context.Context, userID string, limit, offset int) ([]chatModels.Conversation, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, title, model, locked, last_message_at, created_at
		FROM %s
		WHERE user_id = $1
		ORDER BY last_message_at DESC
		LIMIT $2 OFFSET $3
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var convs []chatModels.Conversation
	for rows.Next() {
		var conv chatModels.Conversation
		err := rows.Scan(
			&conv.ID,
			&conv.UserID,
			&conv.Title,
			&conv.Model,
			&conv.Locked,
			&conv.LastMessageAt,
			&conv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}

	// Return empty slice instead of nil
	if convs == nil {
		convs = []chatModels.Conversation{}
	}

	return convs, nil
}

// UpdateConversation updates title and model
func (r *PostgresConversationRepository) UpdateConversation(ctx context.Context, conv *chatModels.Conversation) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET title = $1, model = $2
		WHERE id = $3 AND user_id = $4
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		conv.Title,
		conv.Model,
		conv.ID,
		conv.UserID,
	)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conv.ID, domain.ErrNotFound)
	}

	return nil
}

// UpdateTitle sets only the title
func (r *PostgresConversationRepository) UpdateTitle(ctx context.Context, conversationID, title string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET title = $1 WHERE id = $2
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, title, conversationID)
	if err != nil {
		return fmt.Errorf("update title: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}

// TouchLastMessage advances last_message_at and records the last-used model.
// last_message_at only moves forward, keeping list ordering monotonic even
// if commits race across processes.
func (r *PostgresConversationRepository) TouchLastMessage(ctx context.Context, conversationID, model string, at time.Time) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET model = $1, last_message_at = GREATEST(last_message_at, $2)
		WHERE id = $3
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, model, at, conversationID)
	if err != nil {
		return fmt.Errorf("touch last_message_at: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}

// DeleteConversation removes a conversation and its messages
func (r *PostgresConversationRepository) DeleteConversation(ctx context.Context, conversationID, userID string) error {
	msgQuery := fmt.Sprintf(`
		DELETE FROM %s
		WHERE conversation_id = $1
		  AND EXISTS (SELECT 1 FROM %s WHERE id = $1 AND user_id = $2)
	`, r.tables.Messages, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, msgQuery, conversationID, userID); err != nil {
		return fmt.Errorf("delete conversation messages: %w", err)
	}

	query := fmt.Sprintf(`
		DELETE FROM %s WHERE id = $1 AND user_id = $2
	`, r.tables.Conversations)

	result, err := executor.Exec(ctx, query, conversationID, userID)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("conversation %s: %w", conversationID, domain.ErrNotFound)
	}

	return nil
}

// TryLock performs the atomic compare-and-set on the lock flag. Exactly one
// of any set of concurrent callers observes a row update and wins.
func (r *PostgresConversationRepository) TryLock(ctx context.Context, conversationID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s SET locked = true
		WHERE id = $1 AND locked = false
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, conversationID)
	if err != nil {
		return false, fmt.Errorf("acquire conversation lock: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// Unlock clears the lock flag unconditionally
func (r *PostgresConversationRepository) Unlock(ctx context.Context, conversationID string) error {
	query := fmt.Sprintf(`
		UPDATE %s SET locked = false WHERE id = $1
	`, r.tables.Conversations)

	executor := postgres.GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, conversationID); err != nil {
		return fmt.Errorf("release conversation lock: %w", err)
	}

	return nil
}
