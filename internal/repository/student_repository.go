package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clearance-api/internal/models"
)

const studentColumns = `id, application_id, full_name, email, department, created_at`

// StudentRepository reads student identities.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetByID returns sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*models.Student, error) {
	var student models.Student
	if err := r.db.GetContext(ctx, &student, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ListIDsByDepartments returns the ids of students in any of departments.
func (r *StudentRepository) ListIDsByDepartments(ctx context.Context, departments []string) ([]string, error) {
	if len(departments) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM students WHERE department = ANY($1) ORDER BY id`, pq.Array(departments)); err != nil {
		return nil, fmt.Errorf("list students by department: %w", err)
	}
	return ids, nil
}

// Count counts students, optionally limited to departments.
func (r *StudentRepository) Count(ctx context.Context, departments []string) (int, error) {
	query := `SELECT COUNT(*) FROM students`
	args := []interface{}{}
	if len(departments) > 0 {
		query += ` WHERE department = ANY($1)`
		args = append(args, pq.Array(departments))
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count students: %w", err)
	}
	return count, nil
}
