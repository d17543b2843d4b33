package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
)

const formColumns = `id, student_id, kind, details, submitted, submitted_at,
	deputy_registrar_approved, deputy_registrar_approved_by, deputy_registrar_approved_at, deputy_registrar_comment,
	school_officer_approved, school_officer_approved_by, school_officer_approved_at, school_officer_comment,
	approvals, approved, approved_by, approved_at, approval_comment,
	overall_approved, overall_approved_at, created_at, updated_at`

// FormRepository stores every form kind in clearance_forms.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

// GetByID fetches a form. Returns sql.ErrNoRows when absent.
func (r *FormRepository) GetByID(ctx context.Context, id string) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM clearance_forms WHERE id = $1`
	var form models.Form
	if err := r.db.GetContext(ctx, &form, query, id); err != nil {
		return nil, err
	}
	return &form, nil
}

// GetByStudentAndKind fetches a student's instance of kind. Returns sql.ErrNoRows when absent.
func (r *FormRepository) GetByStudentAndKind(ctx context.Context, studentID string, kind models.FormKind) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM clearance_forms WHERE student_id = $1 AND kind = $2`
	var form models.Form
	if err := r.db.GetContext(ctx, &form, query, studentID, kind); err != nil {
		return nil, err
	}
	return &form, nil
}

// ListByStudent returns every form the student has.
func (r *FormRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM clearance_forms WHERE student_id = $1 ORDER BY created_at`
	var forms []models.Form
	if err := r.db.SelectContext(ctx, &forms, query, studentID); err != nil {
		return nil, fmt.Errorf("list student forms: %w", err)
	}
	return forms, nil
}

// Submit creates the form or submits an existing unsubmitted one in a single
// statement. Existing approval slots are kept. Returns sql.ErrNoRows when the
// form was already submitted.
func (r *FormRepository) Submit(ctx context.Context, form *models.Form) (*models.Form, error) {
	now := time.Now().UTC()
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	if len(form.Details) == 0 {
		form.Details = []byte("{}")
	}
	form.Submitted = true
	form.SubmittedAt = &now
	form.CreatedAt = now
	form.UpdatedAt = now

	const upsert = `INSERT INTO clearance_forms (id, student_id, kind, details, submitted, submitted_at, approvals, created_at, updated_at)
	VALUES (:id, :student_id, :kind, :details, TRUE, :submitted_at, :approvals, :created_at, :updated_at)
	ON CONFLICT (student_id, kind) DO UPDATE SET
		details = EXCLUDED.details,
		submitted = TRUE,
		submitted_at = EXCLUDED.submitted_at,
		approvals = CASE WHEN jsonb_array_length(clearance_forms.approvals) = 0 THEN EXCLUDED.approvals ELSE clearance_forms.approvals END,
		updated_at = EXCLUDED.updated_at
	WHERE clearance_forms.submitted = FALSE
	RETURNING ` + formColumns
	query, args, err := r.db.BindNamed(upsert, form)
	if err != nil {
		return nil, fmt.Errorf("bind form submission: %w", err)
	}
	var stored models.Form
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("submit form: %w", err)
	}
	return &stored, nil
}

// UpdateWithLock loads the form FOR UPDATE, applies mutate and writes the
// approval columns back inside one transaction. Returns sql.ErrNoRows when
// the form does not exist. An error from mutate rolls back.
func (r *FormRepository) UpdateWithLock(ctx context.Context, id string, mutate func(*models.Form) error) (form *models.Form, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin form transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Form
	if err = tx.GetContext(ctx, &current, `SELECT `+formColumns+` FROM clearance_forms WHERE id = $1 FOR UPDATE`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("lock form: %w", err)
	}

	if err = mutate(&current); err != nil {
		return nil, err
	}
	current.UpdatedAt = time.Now().UTC()

	const update = `UPDATE clearance_forms SET
		deputy_registrar_approved = :deputy_registrar_approved,
		deputy_registrar_approved_by = :deputy_registrar_approved_by,
		deputy_registrar_approved_at = :deputy_registrar_approved_at,
		deputy_registrar_comment = :deputy_registrar_comment,
		school_officer_approved = :school_officer_approved,
		school_officer_approved_by = :school_officer_approved_by,
		school_officer_approved_at = :school_officer_approved_at,
		school_officer_comment = :school_officer_comment,
		approvals = :approvals,
		approved = :approved,
		approved_by = :approved_by,
		approved_at = :approved_at,
		approval_comment = :approval_comment,
		overall_approved = :overall_approved,
		overall_approved_at = :overall_approved_at,
		updated_at = :updated_at
	WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, update, &current); err != nil {
		return nil, fmt.Errorf("update form approvals: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit form approvals: %w", err)
	}
	return &current, nil
}

// PendingCondition selects forms whose slot is waiting on a role.
type PendingCondition struct {
	Kind     models.FormKind
	Topology models.Topology
	// Slot is the dual slot key or the approval-set role; ignored for single forms.
	Slot string
}

func (c PendingCondition) clause(args *[]interface{}) (string, error) {
	switch c.Topology {
	case models.TopologyDual:
		switch c.Slot {
		case models.SlotDeputyRegistrar:
			return "f.deputy_registrar_approved = FALSE", nil
		case models.SlotSchoolOfficer:
			return "f.deputy_registrar_approved = TRUE AND f.school_officer_approved = FALSE", nil
		}
	case models.TopologySet:
		match, err := json.Marshal([]map[string]interface{}{{"role": c.Slot, "approved": false}})
		if err != nil {
			return "", err
		}
		*args = append(*args, string(match))
		return fmt.Sprintf("f.approvals @> $%d::jsonb", len(*args)), nil
	case models.TopologySingle:
		return "f.approved = FALSE", nil
	}
	return "", fmt.Errorf("unsupported pending condition %s/%s", c.Topology, c.Slot)
}

// ListPending returns submitted forms matching cond. A non-empty departments
// list restricts results to students in those departments.
func (r *FormRepository) ListPending(ctx context.Context, cond PendingCondition, departments []string) ([]dto.PendingItem, error) {
	args := []interface{}{cond.Kind}
	clause, err := cond.clause(&args)
	if err != nil {
		return nil, err
	}
	builder := strings.Builder{}
	builder.WriteString(`SELECT f.id AS form_id, f.kind, f.student_id, s.full_name AS student_name, s.application_id, s.department, f.submitted_at
	FROM clearance_forms f JOIN students s ON s.id = f.student_id
	WHERE f.kind = $1 AND f.submitted = TRUE AND `)
	builder.WriteString(clause)
	if len(departments) > 0 {
		args = append(args, pq.Array(departments))
		builder.WriteString(fmt.Sprintf(" AND s.department = ANY($%d)", len(args)))
	}
	builder.WriteString(" ORDER BY f.submitted_at, f.id")

	var items []dto.PendingItem
	if err := r.db.SelectContext(ctx, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list pending forms: %w", err)
	}
	return items, nil
}

// ApprovedFormRow is a form joined with its student's identity.
type ApprovedFormRow struct {
	models.Form
	StudentName   string `db:"student_name"`
	ApplicationID string `db:"application_id"`
	Department    string `db:"department"`
}

// ListApprovedBy returns forms on which staffID signed any slot.
func (r *FormRepository) ListApprovedBy(ctx context.Context, staffID string) ([]ApprovedFormRow, error) {
	match, err := json.Marshal([]map[string]interface{}{{"approvedBy": staffID, "approved": true}})
	if err != nil {
		return nil, fmt.Errorf("build approval match: %w", err)
	}
	query := `SELECT ` + prefixed("f.", formColumns) + `, s.full_name AS student_name, s.application_id, s.department
	FROM clearance_forms f JOIN students s ON s.id = f.student_id
	WHERE f.deputy_registrar_approved_by = $1 OR f.school_officer_approved_by = $1 OR f.approved_by = $1 OR f.approvals @> $2::jsonb
	ORDER BY f.updated_at DESC`
	var rows []ApprovedFormRow
	if err := r.db.SelectContext(ctx, &rows, query, staffID, string(match)); err != nil {
		return nil, fmt.Errorf("list approved forms: %w", err)
	}
	return rows, nil
}

// CountOverallApproved counts fully approved forms, optionally limited to
// students in departments.
func (r *FormRepository) CountOverallApproved(ctx context.Context, departments []string) (int, error) {
	query := `SELECT COUNT(*) FROM clearance_forms f JOIN students s ON s.id = f.student_id WHERE f.overall_approved = TRUE`
	args := []interface{}{}
	if len(departments) > 0 {
		query += ` AND s.department = ANY($1)`
		args = append(args, pq.Array(departments))
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count approved forms: %w", err)
	}
	return count, nil
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = prefix + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
