package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"prism/internal/domain"
	chatModels "prism/internal/domain/models/chat"
	chatRepo "prism/internal/domain/repositories/chat"
	"prism/internal/repository/postgres"
)

// PostgresUserRepository implements the UserRepository interface using PostgreSQL
type PostgresUserRepository struct {
	pool   *pgxpool.Pool
	tables *postgres.TableNames
	logger *slog.Logger
}

// NewUserRepository creates a new PostgresUserRepository
func NewUserRepository(config *postgres.RepositoryConfig) chatRepo.UserRepository {
	return &PostgresUserRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetUser retrieves a user by ID
func (r *PostgresUserRepository) GetUser(ctx context.Context, userID string) (*chatModels.User, error) {
	query := fmt.Sprintf(`
		SELECT id, tier, free_messages, memory, memory_enabled, billing_customer_id, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Users)

	var user chatModels.User
	executor := postgres.GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID).Scan(
		&user.ID,
		&user.Tier,
		&user.FreeMessages,
		&user.Memory,
		&user.MemoryEnabled,
		&user.BillingCustomerID,
		&user.CreatedAt,
	)

	if err != nil {
		if postgres.IsPgNoRowsError(err) {
			return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return &user, nil
}

// DecrementFreeMessages consumes one metering unit. The guard in the WHERE
// clause keeps the counter non-negative under concurrent turns; a zero-row
// update means the balance was already exhausted.
func (r *PostgresUserRepository) DecrementFreeMessages(ctx context.Context, userID string) (bool, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET free_messages = free_messages - 1
		WHERE id = $1 AND free_messages > 0
	`, r.tables.Users)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, userID)
	if err != nil {
		return false, fmt.Errorf("decrement free messages: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// CreditFreeMessages adds metering units to a user's balance
func (r *PostgresUserRepository) CreditFreeMessages(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return &domain.ValidationError{Message: "credit amount must be positive"}
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET free_messages = free_messages + $1
		WHERE id = $2
	`, r.tables.Users)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("credit free messages: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	return nil
}

// UpdateMemory replaces the memory blob and enabled flag
func (r *PostgresUserRepository) UpdateMemory(ctx context.Context, userID string, memory *string, enabled bool) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET memory = $1, memory_enabled = $2
		WHERE id = $3
	`, r.tables.Users)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, memory, enabled, userID)
	if err != nil {
		return fmt.Errorf("update memory: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	return nil
}

// AppendMemory appends a fact to the memory blob, newline separated
func (r *PostgresUserRepository) AppendMemory(ctx context.Context, userID, fact string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET memory = CASE
			WHEN memory IS NULL OR memory = '' THEN $1
			ELSE memory || E'\n' || $1
		END
		WHERE id = $2
	`, r.tables.Users)

	executor := postgres.GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, fact, userID)
	if err != nil {
		return fmt.Errorf("append memory: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}

	return nil
}
