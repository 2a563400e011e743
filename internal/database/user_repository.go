package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"dev.helix.onboarding/internal/models"
)

// UserRepository is the relational store collaborator's get_user(user_id)
// and list_tasks(user_id) surface (spec §6). It never touches retrieval or
// cache state. The orchestrator does not use it: the caller's profile and
// onboarding task list arrive with each request.
type UserRepository struct {
	pool *pgxpool.Pool
	log  *logrus.Logger
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool *pgxpool.Pool, log *logrus.Logger) *UserRepository {
	return &UserRepository{pool: pool, log: log}
}

// GetUser retrieves the caller's profile by user ID.
func (r *UserRepository) GetUser(ctx context.Context, userID string) (*models.UserProfile, error) {
	query := `
		SELECT user_id, name, role, department, type, language
		FROM users
		WHERE user_id = $1
	`

	u := &models.UserProfile{}
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&u.UserID, &u.Name, &u.Role, &u.Department, &u.Type, &u.Language,
	)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("user not found: %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListTasks returns a user's onboarding task list, feeding the Progress
// handler's state (spec §4.8 Progress handler special case).
func (r *UserRepository) ListTasks(ctx context.Context, userID string) ([]models.Task, error) {
	query := `
		SELECT id, title, status, due_date
		FROM onboarding_tasks
		WHERE user_id = $1
		ORDER BY due_date NULLS LAST, id
	`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Status, &t.DueDate); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
