package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	"prism/internal/repository/postgres"
)

// PostgresMessageRepository implements the MessageRepository interface using PostgreSQL
type PostgresMessageRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewMessageRepository creates a new PostgresMessageRepository
func NewMessageRepository(config *postgres.RepositoryConfig) chatRepo.MessageRepository {
	return &PostgresMessageRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateMessage inserts a message with its parts and attachments as JSONB
func (r *PostgresMessageRepository) CreateMessage(ctx context.Context, msg *chatModels.Message) error {
	partsJSON, err := marshalNullable(msg.Parts)
	if err != nil {
		return fmt.Errorf("marshal message parts: %w", err)
	}
	attachmentsJSON, err := marshalNullable(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal message attachments: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, conversation_id, role, content, parts, attachments, input_tokens, output_tokens, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	err = executor.QueryRow(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.Role,
		msg.Content,
		partsJSON,
		attachmentsJSON,
		msg.InputTokens,
		msg.OutputTokens,
		msg.CreatedAt,
	).Scan(&msg.CreatedAt)

	if err != nil {
		if postgres.IsPgForeignKeyError(err) {
			return fmt.Errorf("conversation %s: %w", msg.ConversationID, domain.ErrNotFound)
		}
		if postgres.IsPgDuplicateError(err) {
			return &domain.ConflictError{
				Message:      fmt.Sprintf("message %s already exists", msg.ID),
				ResourceType: "message",
				ResourceID:   msg.ID,
			}
		}
		return fmt.Errorf("create message: %w", err)
	}

	return nil
}

// ListMessages returns a conversation's messages in chronological order.
// Legacy rows written before the parts column existed are normalized into
// the parts representation during scanning.
func (r *PostgresMessageRepository) ListMessages(ctx context.Context, conversationID string) ([]chatModels.Message, error) {
	query := fmt.Sprintf(`
		SELECT id, conversation_id, role, content, reasoning, signature, parts, attachments, input_tokens, output_tokens, created_at
		FROM %s
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []chatModels.Message
	for rows.Next() {
		var (
			msg             chatModels.Message
			legacyReasoning *string
			legacySignature *string
			partsJSON       []byte
			attachmentsJSON []byte
		)
		err := rows.Scan(
			&msg.ID,
			&msg.ConversationID,
			&msg.Role,
			&msg.Content,
			&legacyReasoning,
			&legacySignature,
			&partsJSON,
			&attachmentsJSON,
			&msg.InputTokens,
			&msg.OutputTokens,
			&msg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		if len(partsJSON) > 0 {
			if err := json.Unmarshal(partsJSON, &msg.Parts); err != nil {
				return nil, fmt.Errorf("unmarshal message parts: %w", err)
			}
		}
		if len(attachmentsJSON) > 0 {
			if err := json.Unmarshal(attachmentsJSON, &msg.Attachments); err != nil {
				return nil, fmt.Errorf("unmarshal message attachments: %w", err)
			}
		}

		msg.NormalizeParts(legacyReasoning, legacySignature)
		msgs = append(msgs, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	if msgs == nil {
		msgs = []chatModels.Message{}
	}

	return msgs, nil
}

// AppendSources adds citation parts to an already-committed assistant message
func (r *PostgresMessageRepository) AppendSources(ctx context.Context, messageID string, sources []chatModels.Source) error {
	if len(sources) == 0 {
		return nil
	}

	parts := make([]chatModels.Part, 0, len(sources))
	for i := range sources {
		parts = append(parts, chatModels.Part{
			Type:   chatModels.PartTypeSource,
			Source: &sources[i],
		})
	}
	partsJSON, err := json.Marshal(parts)
	if err != nil {
		return fmt.Errorf("marshal source parts: %w", err)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET parts = COALESCE(parts, '[]'::jsonb) || $1::jsonb
		WHERE id = $2
	`, r.tables.Messages)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, partsJSON, messageID)
	if err != nil {
		return fmt.Errorf("append sources: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, domain.ErrNotFound)
	}

	return nil
}

// CountMessages returns the number of messages in a conversation
func (r *PostgresMessageRepository) CountMessages(ctx context.Context, conversationID string) (int, error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*) FROM %s WHERE conversation_id = $1
	`, r.tables.Messages)

	var count int
	executor := postgres.GetExecutor(ctx, r.pool)
	if err := executor.QueryRow(ctx, query, conversationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}

	return count, nil
}

// marshalNullable encodes v as JSON, mapping empty slices to SQL NULL so
// the jsonb columns stay NULL for rows without the field.
func marshalNullable(v interface{}) ([]byte, error) {
	switch val := v.(type) {
	case []chatModels.Part:
		if len(val) == 0 {
			return nil, nil
		}
	case []chatModels.Attachment:
		if len(val) == 0 {
			return nil, nil
		}
	}
	return json.Marshal(v)
}
