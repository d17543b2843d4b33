package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type documentStore interface {
	Upsert(ctx context.Context, doc *models.Document) (*models.Document, error)
	GetByID(ctx context.Context, id string) (*models.Document, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Document, error)
	Review(ctx context.Context, params repository.ReviewParams) (*models.Document, error)
}

type documentNotifier interface {
	NotifyDocumentReviewed(ctx context.Context, doc *models.Document) error
}

// DocumentServiceDeps groups the collaborators of DocumentService.
type DocumentServiceDeps struct {
	Documents  documentStore
	Students   studentReader
	Notifier   documentNotifier
	Audit      auditRecorder
	Completion completionChecker
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// DocumentService records uploaded documents and their review decisions.
type DocumentService struct {
	documents  documentStore
	students   studentReader
	notifier   documentNotifier
	audit      auditRecorder
	completion completionChecker
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewDocumentService constructs a DocumentService.
func NewDocumentService(deps DocumentServiceDeps) *DocumentService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &DocumentService{
		documents:  deps.Documents,
		students:   deps.Students,
		notifier:   deps.Notifier,
		audit:      deps.Audit,
		completion: deps.Completion,
		cache:      deps.Cache,
		metrics:    deps.Metrics,
		validator:  deps.Validator,
		logger:     deps.Logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Record registers an uploaded file for review. Students record their own
// documents; staff may record on behalf of req.StudentID.
func (s *DocumentService) Record(ctx context.Context, p models.Principal, req dto.RecordDocumentRequest) (*models.Document, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid document payload")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", req.Type))
	}

	studentID := p.ID
	if p.IsStaff() {
		if req.StudentID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
		}
		studentID = req.StudentID
	} else if req.StudentID != "" && req.StudentID != p.ID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "cannot record documents for another student")
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	doc, err := s.documents.Upsert(ctx, &models.Document{StudentID: studentID, Type: req.Type, FileRef: req.FileRef})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record document")
	}

	s.record(ctx, models.AuditRecord{
		SubjectKey: student.ApplicationID,
		Action:     models.AuditActionDocumentRecorded,
		ActorID:    p.ID,
		Details:    string(doc.Type),
	})
	s.cache.InvalidateStudent(ctx, studentID)
	return doc, nil
}

// Review approves or rejects a document. Only the Registrar's deputy or an
// admin may review.
func (s *DocumentService) Review(ctx context.Context, p models.Principal, documentID string, req dto.ReviewDocumentRequest) (*models.Document, error) {
	if !p.IsAdmin() && ResolvePrincipal(p).Role != models.RoleDeputyRegistrar {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "only the registrar may review documents")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	existing, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	var feedback *string
	if req.Feedback != "" {
		fb := req.Feedback
		feedback = &fb
	}
	doc, err := s.documents.Review(ctx, repository.ReviewParams{
		ID:         existing.ID,
		Status:     req.Status,
		ReviewerID: p.ID,
		Feedback:   feedback,
		ReviewedAt: s.now(),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review document")
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyDocumentReviewed(ctx, doc); err != nil {
			s.metrics.RecordSideEffectFailure("notifications")
			s.logger.Warn("document review notification failed", zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
	if student, err := s.students.GetByID(ctx, doc.StudentID); err == nil {
		s.record(ctx, models.AuditRecord{
			SubjectKey: student.ApplicationID,
			Action:     models.AuditActionDocumentReviewed,
			ActorID:    p.ID,
			Details:    fmt.Sprintf("%s %s", doc.Type, doc.Status),
		})
	}
	s.cache.InvalidateStudent(ctx, doc.StudentID)
	if s.completion != nil {
		if _, err := s.completion.CheckCompletion(ctx, doc.StudentID); err != nil {
			s.metrics.RecordSideEffectFailure("completion")
			s.logger.Warn("completion check failed", zap.String("student_id", doc.StudentID), zap.Error(err))
		}
	}
	return doc, nil
}

// List returns the document records of studentID. Students may only list their own.
func (s *DocumentService) List(ctx context.Context, p models.Principal, studentID string) ([]models.Document, error) {
	if !p.IsStaff() && p.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "cannot read another student's documents")
	}
	docs, err := s.documents.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

func (s *DocumentService) record(ctx context.Context, rec models.AuditRecord) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.metrics.RecordSideEffectFailure("audit")
		s.logger.Warn("audit side effect failed", zap.String("action", rec.Action), zap.Error(err))
	}
}
