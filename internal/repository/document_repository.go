package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/clearance-api/internal/models"
)

const documentColumns = `id, student_id, type, file_ref, status, reviewed_by, reviewed_at, feedback, uploaded_at, updated_at`

// DocumentRepository stores document review records.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// Upsert records an upload. Re-uploading a type resets it to pending review.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *models.Document) (*models.Document, error) {
	now := time.Now().UTC()
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.Status = models.DocumentPending
	doc.UploadedAt = now
	doc.UpdatedAt = now

	const upsert = `INSERT INTO documents (id, student_id, type, file_ref, status, uploaded_at, updated_at)
	VALUES (:id, :student_id, :type, :file_ref, :status, :uploaded_at, :updated_at)
	ON CONFLICT (student_id, type) DO UPDATE SET
		file_ref = EXCLUDED.file_ref,
		status = EXCLUDED.status,
		reviewed_by = NULL,
		reviewed_at = NULL,
		feedback = NULL,
		uploaded_at = EXCLUDED.uploaded_at,
		updated_at = EXCLUDED.updated_at
	RETURNING ` + documentColumns
	query, args, err := r.db.BindNamed(upsert, doc)
	if err != nil {
		return nil, fmt.Errorf("bind document upsert: %w", err)
	}
	var stored models.Document
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		return nil, fmt.Errorf("upsert document: %w", err)
	}
	return &stored, nil
}

// GetByID returns sql.ErrNoRows when the document does not exist.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByStudent returns every document record of a student.
func (r *DocumentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Document, error) {
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, `SELECT `+documentColumns+` FROM documents WHERE student_id = $1 ORDER BY type`, studentID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// ReviewParams holds a reviewer's decision.
type ReviewParams struct {
	ID         string
	Status     models.DocumentStatus
	ReviewerID string
	Feedback   *string
	ReviewedAt time.Time
}

// Review stamps the decision. Returns sql.ErrNoRows when the document does not exist.
func (r *DocumentRepository) Review(ctx context.Context, params ReviewParams) (*models.Document, error) {
	const query = `UPDATE documents SET status = $1, reviewed_by = $2, reviewed_at = $3, feedback = $4, updated_at = $3
	WHERE id = $5 RETURNING ` + documentColumns
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, params.Status, params.ReviewerID, params.ReviewedAt, params.Feedback, params.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("review document: %w", err)
	}
	return &doc, nil
}
