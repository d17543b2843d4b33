package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clearance-api/internal/models"
)

const staffColumns = `id, full_name, email, department, managed_departments, created_at`

// StaffRepository looks up reviewers. Recipient lookups return the earliest
// created match, ties broken by id, so the chosen staff member is stable.
type StaffRepository struct {
	db *sqlx.DB
}

// NewStaffRepository constructs the repository.
func NewStaffRepository(db *sqlx.DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// GetByID returns sql.ErrNoRows when the staff member does not exist.
func (r *StaffRepository) GetByID(ctx context.Context, id string) (*models.Staff, error) {
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, `SELECT `+staffColumns+` FROM staff WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &staff, nil
}

// FirstByDepartment returns the first staff member of department, or nil.
func (r *StaffRepository) FirstByDepartment(ctx context.Context, department string) (*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff WHERE department = $1 ORDER BY created_at, id LIMIT 1`
	return r.first(ctx, query, department)
}

// FirstSchoolOfficerFor returns the staff member acting as School Officer for
// studentDepartment. Members of the "School Officer" department win; otherwise
// the lookup falls back to anyone managing studentDepartment whose own
// department is neither a fixed office nor a head-of-department post, matching
// how principals resolve to the School Officer role.
func (r *StaffRepository) FirstSchoolOfficerFor(ctx context.Context, studentDepartment string, fixedDepartments []string) (*models.Staff, error) {
	query := `SELECT ` + staffColumns + ` FROM staff
	WHERE $1 = ANY(managed_departments) AND NOT (department = ANY($2)) AND department NOT LIKE $3
	ORDER BY (department = $4) DESC, created_at, id LIMIT 1`
	return r.first(ctx, query, studentDepartment, pq.Array(fixedDepartments), "%"+models.HODSuffix, models.DepartmentSchoolOfficer)
}

func (r *StaffRepository) first(ctx context.Context, query string, args ...interface{}) (*models.Staff, error) {
	var staff models.Staff
	if err := r.db.GetContext(ctx, &staff, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find staff: %w", err)
	}
	return &staff, nil
}
