package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

// CompletionRepository remembers which students have been declared cleared.
type CompletionRepository struct {
	db *sqlx.DB
}

// NewCompletionRepository constructs the repository.
func NewCompletionRepository(db *sqlx.DB) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// MarkCompleted inserts the completion row and reports whether this call created it.
func (r *CompletionRepository) MarkCompleted(ctx context.Context, studentID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO clearance_completions (student_id, completed_at) VALUES ($1, $2) ON CONFLICT (student_id) DO NOTHING`, studentID, at)
	if err != nil {
		return false, fmt.Errorf("mark clearance completed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark clearance completed: %w", err)
	}
	return affected == 1, nil
}

// Get returns the completion row or nil when the student is not cleared yet.
func (r *CompletionRepository) Get(ctx context.Context, studentID string) (*models.ClearanceCompletion, error) {
	var completion models.ClearanceCompletion
	if err := r.db.GetContext(ctx, &completion, `SELECT student_id, completed_at FROM clearance_completions WHERE student_id = $1`, studentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get clearance completion: %w", err)
	}
	return &completion, nil
}
