package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/repository"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/tracing"
)

type formStore interface {
	GetByID(ctx context.Context, id string) (*models.Form, error)
	GetByStudentAndKind(ctx context.Context, studentID string, kind models.FormKind) (*models.Form, error)
	Submit(ctx context.Context, form *models.Form) (*models.Form, error)
	UpdateWithLock(ctx context.Context, id string, mutate func(*models.Form) error) (*models.Form, error)
	ListPending(ctx context.Context, cond repository.PendingCondition, departments []string) ([]dto.PendingItem, error)
	ListApprovedBy(ctx context.Context, staffID string) ([]repository.ApprovedFormRow, error)
}

type studentReader interface {
	GetByID(ctx context.Context, id string) (*models.Student, error)
}

type formNotifier interface {
	NotifySubmitted(ctx context.Context, student *models.Student, desc models.FormDescriptor) error
	NotifyApproved(ctx context.Context, student *models.Student, desc models.FormDescriptor, full bool) error
	RequestReview(ctx context.Context, student *models.Student, desc models.FormDescriptor, role models.Role) error
}

type auditRecorder interface {
	Record(ctx context.Context, rec models.AuditRecord) error
}

type completionChecker interface {
	CheckCompletion(ctx context.Context, studentID string) (bool, error)
}

// ApprovalEngineDeps groups the collaborators of the engine. Notifier, Audit,
// Completion, Cache and Metrics are optional.
type ApprovalEngineDeps struct {
	Forms      formStore
	Students   studentReader
	Notifier   formNotifier
	Audit      auditRecorder
	Completion completionChecker
	Cache      *CacheService
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// ApprovalEngine runs form submission and slot approval. Side effects after a
// successful write are best effort: their failures are logged and counted
// but never undo or fail the write.
type ApprovalEngine struct {
	forms      formStore
	students   studentReader
	notifier   formNotifier
	audit      auditRecorder
	completion completionChecker
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewApprovalEngine constructs the engine.
func NewApprovalEngine(deps ApprovalEngineDeps) *ApprovalEngine {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Validator == nil {
		deps.Validator = validator.New()
	}
	return &ApprovalEngine{
		forms:      deps.Forms,
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

// Submit stores the student's payload for kind and marks the form submitted.
func (e *ApprovalEngine) Submit(ctx context.Context, studentID string, kind models.FormKind, payload []byte) (result *dto.SubmitResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.submit",
		attribute.String("form.kind", string(kind)),
		attribute.String("student.id", studentID),
	)
	defer func() { tracing.End(span, err) }()

	desc, ok := models.LookupForm(kind)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown form kind %q", kind))
	}

	student, err := e.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if desc.Gated {
		gate, err := e.forms.GetByStudentAndKind(ctx, studentID, models.FormNewClearance)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load new clearance form")
		}
		if !gate.GateOpen() {
			return nil, appErrors.Clone(appErrors.ErrGateNotSatisfied, fmt.Sprintf("%s requires an approved New Clearance Form", desc.Title))
		}
	}

	existing, err := e.forms.GetByStudentAndKind(ctx, studentID, kind)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if existing != nil && existing.Submitted {
		return nil, appErrors.Clone(appErrors.ErrAlreadySubmitted, fmt.Sprintf("%s already submitted", desc.Title))
	}

	submission, err := dto.DecodeSubmission(kind, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}
	if err := e.validator.Struct(submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	details, err := json.Marshal(submission)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode form payload")
	}
	now := e.now()
	form, err := e.forms.Submit(ctx, &models.Form{
		StudentID:   studentID,
		Kind:        kind,
		Details:     details,
		Submitted:   true,
		SubmittedAt: &now,
		Approvals:   models.SeedApprovals(kind),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrAlreadySubmitted, fmt.Sprintf("%s already submitted", desc.Title))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit form")
	}

	e.metrics.RecordSubmission(kind)
	if e.notifier != nil {
		e.sideEffect("notifications", e.notifier.NotifySubmitted(ctx, student, desc), zap.String("form_id", form.ID))
	}
	e.record(ctx, models.AuditRecord{
		SubjectKey: student.ApplicationID,
		Action:     models.AuditActionFormSubmitted,
		ActorID:    studentID,
		Details:    fmt.Sprintf("%s submitted", kind),
	})
	e.cache.InvalidateStudent(ctx, studentID)

	e.logger.Info("form submitted",
		zap.String("form_id", form.ID),
		zap.String("kind", string(kind)),
		zap.String("student_id", studentID),
	)
	return &dto.SubmitResult{Form: form}, nil
}

// Approve signs one slot of a form on behalf of p. kind, when non-empty, must
// match the stored form.
func (e *ApprovalEngine) Approve(ctx context.Context, p models.Principal, formID string, kind models.FormKind, req dto.ApproveRequest) (result *dto.ApprovalResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "approval.approve",
		attribute.String("form.id", formID),
		attribute.String("form.slot", req.Slot),
		attribute.String("staff.id", p.ID),
	)
	defer func() { tracing.End(span, err) }()

	if !p.IsStaff() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "only staff may approve forms")
	}
	if err := e.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}

	form, err := e.forms.GetByID(ctx, formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	if kind != "" && form.Kind != kind {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
	}
	desc, err := form.Descriptor()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "form has unknown kind")
	}
	if !form.Submitted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "form has not been submitted")
	}

	slotRole, err := form.SlotRole(req.Slot)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInvalidApprovalType.Code, appErrors.ErrInvalidApprovalType.Status, fmt.Sprintf("invalid approval type %q for %s", req.Slot, desc.Title))
	}

	student, err := e.students.GetByID(ctx, form.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if !p.IsAdmin() {
		res := ResolvePrincipal(p)
		if res.Role != slotRole {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, fmt.Sprintf("approval of %s requires the %s role", desc.Title, slotRole))
		}
		if !res.Covers(student.Department) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "student is outside your departments")
		}
	}

	var signed, completedNow bool
	updated, err := e.forms.UpdateWithLock(ctx, formID, func(f *models.Form) error {
		var approveErr error
		signed, completedNow, approveErr = f.Approve(req.Slot, p.ID, req.Comments, e.now())
		return approveErr
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		if errors.Is(err, models.ErrUnknownSlot) {
			return nil, appErrors.Wrap(err, appErrors.ErrInvalidApprovalType.Code, appErrors.ErrInvalidApprovalType.Status, "invalid approval type")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve form")
	}

	slot := models.NormalizeSlotKey(req.Slot)
	if desc.Topology == models.TopologySingle {
		slot = models.SlotApproved
	}
	e.metrics.RecordApproval(updated.Kind, completedNow)
	e.afterApproval(ctx, p, student, desc, updated, slotRole, signed, completedNow)

	e.logger.Info("form approved",
		zap.String("form_id", updated.ID),
		zap.String("kind", string(updated.Kind)),
		zap.String("slot", slot),
		zap.String("staff_id", p.ID),
		zap.Bool("overall_approved", updated.OverallApproved),
		zap.Bool("completed_now", completedNow),
	)

	return &dto.ApprovalResult{
		Form:            updated,
		Slot:            slot,
		OverallApproved: updated.OverallApproved,
		CompletedNow:    completedNow,
		NextRole:        updated.NextPendingRole(),
	}, nil
}

// afterApproval runs the best-effort side effects of an approval. Notices go
// out only when the slot was newly signed; re-stamping a signed slot is
// audited but stays silent.
func (e *ApprovalEngine) afterApproval(ctx context.Context, p models.Principal, student *models.Student, desc models.FormDescriptor, form *models.Form, slotRole models.Role, signed, completedNow bool) {
	fields := zap.String("form_id", form.ID)
	if e.notifier != nil && signed {
		switch {
		case completedNow:
			e.sideEffect("notifications", e.notifier.NotifyApproved(ctx, student, desc, true), fields)
		case !form.OverallApproved:
			e.sideEffect("notifications", e.notifier.NotifyApproved(ctx, student, desc, false), fields)
		}

		if !form.OverallApproved {
			switch desc.Topology {
			case models.TopologyDual:
				if slotRole == models.RoleDeputyRegistrar && !form.SchoolOfficerApproved {
					e.sideEffect("notifications", e.notifier.RequestReview(ctx, student, desc, models.RoleSchoolOfficer), fields)
				}
			case models.TopologySet:
				if next := form.NextPendingRole(); next != models.RoleUnresolved {
					e.sideEffect("notifications", e.notifier.RequestReview(ctx, student, desc, next), fields)
				}
			}
		}
	}

	e.record(ctx, models.AuditRecord{
		SubjectKey: student.ApplicationID,
		Action:     models.AuditActionFormApproved,
		ActorID:    p.ID,
		Details:    fmt.Sprintf("%s %s overall=%t", form.Kind, slotRole, form.OverallApproved),
	})
	e.cache.InvalidateStudent(ctx, student.ID)

	if e.completion != nil {
		if _, err := e.completion.CheckCompletion(ctx, student.ID); err != nil {
			e.sideEffect("completion", err, fields)
		}
	}
}

// PendingFor lists submitted forms still waiting on p's role, restricted to
// p's departments for scoped roles.
func (e *ApprovalEngine) PendingFor(ctx context.Context, p models.Principal) ([]dto.PendingItem, error) {
	res := ResolvePrincipal(p)
	if !res.Resolved() {
		return []dto.PendingItem{}, nil
	}

	items := make([]dto.PendingItem, 0)
	seen := make(map[string]struct{})
	for _, cond := range PendingConditions(res.Role) {
		desc, _ := models.LookupForm(cond.Kind)
		rows, err := e.forms.ListPending(ctx, cond, res.Departments)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending forms")
		}
		for _, row := range rows {
			if _, dup := seen[row.FormID]; dup {
				continue
			}
			seen[row.FormID] = struct{}{}
			row.Title = desc.Title
			row.Slot = cond.Slot
			if desc.Topology == models.TopologySingle {
				row.Slot = models.SlotApproved
			}
			items = append(items, row)
		}
	}
	return items, nil
}

// PendingConditions maps a role to the per-form predicates that make a form
// pending for it.
func PendingConditions(role models.Role) []repository.PendingCondition {
	var out []repository.PendingCondition
	for _, desc := range models.FormDescriptors() {
		if !desc.HasSlotFor(role) {
			continue
		}
		cond := repository.PendingCondition{Kind: desc.Kind, Topology: desc.Topology}
		switch desc.Topology {
		case models.TopologyDual:
			if role == models.RoleDeputyRegistrar {
				cond.Slot = models.SlotDeputyRegistrar
			} else {
				cond.Slot = models.SlotSchoolOfficer
			}
		case models.TopologySet:
			cond.Slot = string(role)
		}
		out = append(out, cond)
	}
	return out
}

// ApprovedBy lists every slot p has signed.
func (e *ApprovalEngine) ApprovedBy(ctx context.Context, p models.Principal) ([]dto.ApprovedItem, error) {
	rows, err := e.forms.ListApprovedBy(ctx, p.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	items := make([]dto.ApprovedItem, 0, len(rows))
	for i := range rows {
		row := rows[i]
		desc, _ := models.LookupForm(row.Kind)
		for _, slot := range row.SlotsApprovedBy(p.ID) {
			items = append(items, dto.ApprovedItem{
				FormID:        row.ID,
				Kind:          row.Kind,
				Title:         desc.Title,
				Slot:          slot.Slot,
				StudentID:     row.StudentID,
				StudentName:   row.StudentName,
				ApplicationID: row.ApplicationID,
				ApprovedAt:    slot.ApprovedAt,
			})
		}
	}
	return items, nil
}

// Form returns one form. Students may only read their own.
func (e *ApprovalEngine) Form(ctx context.Context, p models.Principal, studentID string, kind models.FormKind) (*models.Form, error) {
	if !p.IsStaff() && p.ID != studentID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "cannot read another student's form")
	}
	if _, ok := models.LookupForm(kind); !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown form kind %q", kind))
	}
	form, err := e.forms.GetByStudentAndKind(ctx, studentID, kind)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

func (e *ApprovalEngine) record(ctx context.Context, rec models.AuditRecord) {
	if e.audit == nil {
		return
	}
	e.sideEffect("audit", e.audit.Record(ctx, rec), zap.String("action", rec.Action))
}

func (e *ApprovalEngine) sideEffect(collaborator string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}
	e.metrics.RecordSideEffectFailure(collaborator)
	e.logger.Warn(collaborator+" side effect failed", append(fields, zap.Error(err))...)
}
