package service

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/tracing"
)

type studentFormLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Form, error)
}

type studentDocumentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Document, error)
}

type completionStore interface {
	MarkCompleted(ctx context.Context, studentID string, at time.Time) (bool, error)
	Get(ctx context.Context, studentID string) (*models.ClearanceCompletion, error)
}

type completionNotifier interface {
	NotifyClearanceComplete(ctx context.Context, student *models.Student) error
}

// ClearanceServiceDeps groups the collaborators of the aggregator.
// Notifier, Audit and Completions are optional. Without Completions the
// completion milestone is never recorded or announced.
type ClearanceServiceDeps struct {
	Students    studentReader
	Forms       studentFormLister
	Documents   studentDocumentLister
	Completions completionStore
	Notifier    completionNotifier
	Audit       auditRecorder
	Cache       *CacheService
	Metrics     *MetricsService
	CacheTTL    time.Duration
	Logger      *zap.Logger
}

// ClearanceService aggregates forms and documents into a student's clearance
// verdict and fires the one-time completion side effects.
type ClearanceService struct {
	students    studentReader
	forms       studentFormLister
	documents   studentDocumentLister
	completions completionStore
	notifier    completionNotifier
	audit       auditRecorder
	cache       *CacheService
	metrics     *MetricsService
	cacheTTL    time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewClearanceService constructs the aggregator.
func NewClearanceService(deps ClearanceServiceDeps) *ClearanceService {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &ClearanceService{
		students:    deps.Students,
		forms:       deps.Forms,
		documents:   deps.Documents,
		completions: deps.Completions,
		notifier:    deps.Notifier,
		audit:       deps.Audit,
		cache:       deps.Cache,
		metrics:     deps.Metrics,
		cacheTTL:    deps.CacheTTL,
		logger:      deps.Logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// BuildClearanceStatus derives the clearance verdict from a student's forms
// and document records. Missing forms and documents count as not submitted.
func BuildClearanceStatus(studentID string, forms []models.Form, documents []models.Document) dto.ClearanceStatus {
	byKind := make(map[models.FormKind]*models.Form, len(forms))
	for i := range forms {
		byKind[forms[i].Kind] = &forms[i]
	}
	byType := make(map[models.DocumentType]*models.Document, len(documents))
	for i := range documents {
		byType[documents[i].Type] = &documents[i]
	}

	status := dto.ClearanceStatus{StudentID: studentID}
	descriptors := models.FormDescriptors()
	submitted, approved := 0, 0
	for _, desc := range descriptors {
		state := dto.FormState{Kind: desc.Kind, Title: desc.Title}
		if form, ok := byKind[desc.Kind]; ok {
			state.Exists = true
			state.Submitted = form.Submitted
			state.SubmittedAt = form.SubmittedAt
			state.Approved = form.Submitted && form.IsApproved()
			if state.Approved {
				state.ApprovedAt = form.OverallApprovedAt
				if state.ApprovedAt == nil {
					state.ApprovedAt = form.ApprovedAt
				}
			} else if form.Submitted {
				state.NextRole = form.NextPendingRole()
			}
		}
		if state.Submitted {
			submitted++
		}
		if state.Approved {
			approved++
		}
		status.Forms = append(status.Forms, state)
	}

	required := models.RequiredDocumentTypes()
	uploaded, docsApproved := 0, 0
	for _, t := range required {
		state := dto.DocumentState{Type: t, Label: t.Label(), Status: models.DocumentNotUploaded}
		if doc, ok := byType[t]; ok {
			state.Uploaded = true
			state.Status = doc.Status
			state.Approved = doc.Status == models.DocumentApproved
		}
		if state.Uploaded {
			uploaded++
		}
		if state.Approved {
			docsApproved++
		}
		status.Documents = append(status.Documents, state)
	}

	formTotal, docTotal := float64(len(descriptors)), float64(len(required))
	status.AllFormsSubmitted = submitted == len(descriptors)
	status.AllFormsApproved = approved == len(descriptors)
	status.AllDocumentsApproved = docsApproved == len(required)
	status.ClearanceComplete = status.AllFormsApproved && status.AllDocumentsApproved

	// Forms and documents weigh half each; within each half submission is a
	// third and approval two thirds.
	formScore := float64(submitted)/formTotal*100/3 + float64(approved)/formTotal*100*2/3
	docScore := float64(uploaded)/docTotal*100/3 + float64(docsApproved)/docTotal*100*2/3
	status.CompletionPercentage = int(math.Round(formScore*0.5 + docScore*0.5))
	return status
}

// Status returns the clearance verdict for studentID. Students may only read
// their own.
func (s *ClearanceService) Status(ctx context.Context, p models.Principal, studentID string) (result *dto.ClearanceStatus, err error) {
	ctx, span := tracing.StartSpan(ctx, "clearance.status", attribute.String("student.id", studentID))
	defer func() { tracing.End(span, err) }()

	if !p.IsStaff() && p.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "cannot read another student's clearance")
	}
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}

	var cached dto.ClearanceStatus
	if hit, _ := s.cache.Get(ctx, statusCacheKey(studentID), &cached); hit {
		return &cached, nil
	}

	status, err := s.compute(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if s.completions != nil {
		completion, err := s.completions.Get(ctx, studentID)
		if err != nil {
			s.logger.Warn("failed to load completion marker", zap.String("student_id", studentID), zap.Error(err))
		} else if completion != nil {
			at := completion.CompletedAt
			status.CompletedAt = &at
		}
	}
	_ = s.cache.Set(ctx, statusCacheKey(studentID), status, s.cacheTTL)
	return status, nil
}

// CheckCompletion evaluates clearance afresh and, the first time it is
// complete, notifies the student and audits the milestone. It reports
// whether clearance is complete.
func (s *ClearanceService) CheckCompletion(ctx context.Context, studentID string) (bool, error) {
	status, err := s.compute(ctx, studentID)
	if err != nil {
		return false, err
	}
	if !status.ClearanceComplete {
		return false, nil
	}

	// Without a completion store the milestone cannot fire exactly once.
	if s.completions == nil {
		return true, nil
	}

	first, err := s.completions.MarkCompleted(ctx, studentID, s.now())
	if err != nil {
		return true, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark clearance complete")
	}
	if !first {
		return true, nil
	}

	s.metrics.RecordClearanceCompleted()
	s.cache.InvalidateStudent(ctx, studentID)
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		s.logger.Warn("completed student not loadable", zap.String("student_id", studentID), zap.Error(err))
		return true, nil
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyClearanceComplete(ctx, student); err != nil {
			s.metrics.RecordSideEffectFailure("notifications")
			s.logger.Warn("clearance completion notification failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, models.AuditRecord{
			SubjectKey: student.ApplicationID,
			Action:     models.AuditActionClearanceCompleted,
			Details:    "all forms and documents approved",
		}); err != nil {
			s.metrics.RecordSideEffectFailure("audit")
			s.logger.Warn("clearance completion audit failed", zap.String("student_id", studentID), zap.Error(err))
		}
	}
	s.logger.Info("clearance completed", zap.String("student_id", studentID))
	return true, nil
}

func (s *ClearanceService) compute(ctx context.Context, studentID string) (*dto.ClearanceStatus, error) {
	forms, err := s.forms.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load forms")
	}
	documents, err := s.documents.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load documents")
	}
	status := BuildClearanceStatus(studentID, forms, documents)
	return &status, nil
}

func (s *ClearanceService) loadStudent(ctx context.Context, studentID string) (*models.Student, error) {
	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}
