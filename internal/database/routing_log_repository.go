package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/models"
)

// RoutingLogRepository persists one record per query describing the routing
// decision and resulting confidence, independent of the conversation message
// text. This is the append_routing_log collaborator: it lets an operator
// reconstruct why a query went where it went without replaying the whole
// orchestration pipeline.
type RoutingLogRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewRoutingLogRepository creates a new RoutingLogRepository.
func NewRoutingLogRepository(pool *pgxpool.Pool, log *logrus.Logger) *RoutingLogRepository {
	return &RoutingLogRepository{pool: pool, log: log}
}

// Append records a single routing decision and its outcome.
func (r *RoutingLogRepository) Append(ctx context.Context, entry *models.RoutingLogEntry) error {
	deptsJSON, err := json.Marshal(entry.Departments)
	if err != nil {
		return fmt.Errorf("failed to marshal departments: %w", err)
	}
	intentsJSON, err := json.Marshal(entry.MatchedIntents)
	if err != nil {
		return fmt.Errorf("failed to marshal matched intents: %w", err)
	}

	query := `
		INSERT INTO routing_log (
			user_id, query, departments, matched_rule, matched_intents,
			classifier_confidence, final_confidence, confidence_level,
			escalated, escalation_reason, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	err = r.pool.QueryRow(ctx, query,
		entry.UserID, entry.Query, deptsJSON, entry.MatchedRule, intentsJSON,
		entry.ClassifierConfidence, entry.FinalConfidence, entry.ConfidenceLevel,
		entry.Escalated, entry.EscalationReason,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append routing log entry: %w", err)
	}
	return nil
}

// RecentByUser returns the most recent routing log entries for a user,
// newest first, bounded by limit.
func (r *RoutingLogRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]*models.RoutingLogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, user_id, query, departments, matched_rule, matched_intents,
		       classifier_confidence, final_confidence, confidence_level,
		       escalated, escalation_reason, created_at
		FROM routing_log
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query routing log: %w", err)
	}
	defer rows.Close()

	var out []*models.RoutingLogEntry
	for rows.Next() {
		e := &models.RoutingLogEntry{}
		var deptsJSON, intentsJSON []byte
		if err := rows.Scan(
			&e.ID, &e.UserID, &e.Query, &deptsJSON, &e.MatchedRule, &intentsJSON,
			&e.ClassifierConfidence, &e.FinalConfidence, &e.ConfidenceLevel,
			&e.Escalated, &e.EscalationReason, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan routing log entry: %w", err)
		}
		if err := json.Unmarshal(deptsJSON, &e.Departments); err != nil {
			return nil, fmt.Errorf("failed to unmarshal departments: %w", err)
		}
		if err := json.Unmarshal(intentsJSON, &e.MatchedIntents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matched intents: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
