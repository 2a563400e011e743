package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/models"
)

// MessageRepository persists conversation turns for the per-user ConversationHistory.
// specialists.Memory keeps the authoritative bounded in-memory deque; this
// repository is its durable append-only mirror. Nothing reads it back on
// process restart, and the repeated-query escalation check uses the
// in-memory confidence.RepeatedQueryTracker instead.
type MessageRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(pool *pgxpool.Pool, log *logrus.Logger) *MessageRepository {
	return &MessageRepository{pool: pool, log: log}
}

// Append records one conversation turn (user query and the assistant's reply).
func (r *MessageRepository) Append(ctx context.Context, msg *models.ConversationMessage) error {
	query := `
		INSERT INTO conversation_messages (user_id, session_id, role, content, department, language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	err := r.pool.QueryRow(ctx, query,
		msg.UserID, msg.SessionID, msg.Role, msg.Content, msg.Department, msg.Language,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append conversation message: %w", err)
	}
	return nil
}

// Recent returns the last n messages for a user, oldest first.
func (r *MessageRepository) Recent(ctx context.Context, userID string, n int) ([]*models.ConversationMessage, error) {
	if n <= 0 {
		n = 10
	}
	query := `
		SELECT id, user_id, session_id, role, content, department, language, created_at
		FROM conversation_messages
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent messages: %w", err)
	}
	defer rows.Close()

	var out []*models.ConversationMessage
	for rows.Next() {
		m := &models.ConversationMessage{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &m.Department, &m.Language, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error reading conversation messages: %w", err)
	}

	// reverse to oldest-first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentQueries returns the raw query text of a user's last n turns.
func (r *MessageRepository) RecentQueries(ctx context.Context, userID string, n int) ([]string, error) {
	query := `
		SELECT content FROM conversation_messages
		WHERE user_id = $1 AND role = 'user'
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, n)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query recent user queries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("failed to scan query content: %w", err)
		}
		out = append(out, content)
	}
	return out, rows.Err()
}
