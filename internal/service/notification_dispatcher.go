package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/messaging"
)

type notificationSink interface {
	Create(ctx context.Context, n *models.Notification) error
}

type staffDirectory interface {
	FirstByDepartment(ctx context.Context, department string) (*models.Staff, error)
	FirstSchoolOfficerFor(ctx context.Context, studentDepartment string, fixedDepartments []string) (*models.Staff, error)
}

type notificationPublisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}

// NotificationDispatcher writes workflow notifications to recipients' inboxes
// and mirrors them onto the message bus when one is configured. Errors are
// returned as ErrCollaboratorUnavailable for the caller to absorb.
type NotificationDispatcher struct {
	sink      notificationSink
	staff     staffDirectory
	publisher notificationPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationDispatcher constructs a dispatcher. publisher may be nil.
func NewNotificationDispatcher(sink notificationSink, staff staffDirectory, publisher notificationPublisher, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationDispatcher{
		sink:      sink,
		staff:     staff,
		publisher: publisher,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NotifySubmitted tells the form's intake department about a new submission.
func (d *NotificationDispatcher) NotifySubmitted(ctx context.Context, student *models.Student, desc models.FormDescriptor) error {
	department := desc.SubmitRecipient
	if department == "" {
		department = student.Department
	}
	recipient, err := d.staff.FirstByDepartment(ctx, department)
	if err != nil {
		return d.unavailable(err, "resolve submission recipient")
	}
	if recipient == nil {
		d.logger.Warn("no staff to notify of submission",
			zap.String("department", department),
			zap.String("kind", string(desc.Kind)),
		)
		return nil
	}
	return d.deliver(ctx, &models.Notification{
		RecipientID: recipient.ID,
		Title:       fmt.Sprintf("New %s submission", desc.Title),
		Description: fmt.Sprintf("%s (%s) submitted the %s for review.", student.FullName, student.ApplicationID, desc.Title),
		Status:      models.NotificationInfo,
		Category:    models.CategoryFormSubmission,
	})
}

// NotifyApproved tells the student about an approval on one of their forms.
// full is true only for the approval that completed the form.
func (d *NotificationDispatcher) NotifyApproved(ctx context.Context, student *models.Student, desc models.FormDescriptor, full bool) error {
	n := &models.Notification{
		RecipientID: student.ID,
		Category:    models.CategoryFormApproval,
	}
	if full {
		n.Title = fmt.Sprintf("%s approved", desc.Title)
		n.Description = fmt.Sprintf("Your %s has been fully approved.", desc.Title)
		n.Status = models.NotificationSuccess
	} else {
		n.Title = fmt.Sprintf("%s partially approved", desc.Title)
		n.Description = fmt.Sprintf("Your %s received an approval and is awaiting further review.", desc.Title)
		n.Status = models.NotificationInfo
	}
	return d.deliver(ctx, n)
}

// RequestReview asks the staff member holding role for the student to review the form.
func (d *NotificationDispatcher) RequestReview(ctx context.Context, student *models.Student, desc models.FormDescriptor, role models.Role) error {
	recipient, err := d.staffForRole(ctx, role, student.Department)
	if err != nil {
		return d.unavailable(err, "resolve reviewer")
	}
	if recipient == nil {
		d.logger.Warn("no reviewer found",
			zap.String("role", string(role)),
			zap.String("student_department", student.Department),
			zap.String("kind", string(desc.Kind)),
		)
		return nil
	}
	return d.deliver(ctx, &models.Notification{
		RecipientID: recipient.ID,
		Title:       fmt.Sprintf("%s awaiting your review", desc.Title),
		Description: fmt.Sprintf("%s (%s) has a %s ready for your approval.", student.FullName, student.ApplicationID, desc.Title),
		Status:      models.NotificationInfo,
		Category:    models.CategoryReviewRequest,
	})
}

// NotifyDocumentReviewed tells the student the outcome of a document review.
func (d *NotificationDispatcher) NotifyDocumentReviewed(ctx context.Context, doc *models.Document) error {
	n := &models.Notification{
		RecipientID: doc.StudentID,
		Category:    models.CategoryDocument,
	}
	label := doc.Type.Label()
	if doc.Status == models.DocumentApproved {
		n.Title = fmt.Sprintf("%s approved", label)
		n.Description = fmt.Sprintf("Your %s has been approved.", label)
		n.Status = models.NotificationSuccess
	} else {
		n.Title = fmt.Sprintf("%s rejected", label)
		n.Description = fmt.Sprintf("Your %s was rejected. Please upload a new copy.", label)
		n.Status = models.NotificationWarning
	}
	if doc.Feedback != nil && *doc.Feedback != "" {
		n.Description += " Feedback: " + *doc.Feedback
	}
	return d.deliver(ctx, n)
}

// NotifyClearanceComplete congratulates the student once everything is approved.
func (d *NotificationDispatcher) NotifyClearanceComplete(ctx context.Context, student *models.Student) error {
	return d.deliver(ctx, &models.Notification{
		RecipientID: student.ID,
		Title:       "Clearance Process Completed",
		Description: "Congratulations! All your forms and documents have been approved. Your clearance certificate is ready.",
		Status:      models.NotificationSuccess,
		Category:    models.CategoryClearance,
	})
}

func (d *NotificationDispatcher) staffForRole(ctx context.Context, role models.Role, studentDepartment string) (*models.Staff, error) {
	if role == models.RoleSchoolOfficer {
		return d.staff.FirstSchoolOfficerFor(ctx, studentDepartment, FixedDepartments())
	}
	department, ok := DepartmentForRole(role, studentDepartment)
	if !ok {
		return nil, nil
	}
	return d.staff.FirstByDepartment(ctx, department)
}

func (d *NotificationDispatcher) deliver(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = d.now()
	}
	if err := d.sink.Create(ctx, n); err != nil {
		return d.unavailable(err, "store notification")
	}
	if d.publisher != nil {
		event := messaging.Event{
			NotificationID: n.ID,
			RecipientID:    n.RecipientID,
			Title:          n.Title,
			Description:    n.Description,
			Status:         string(n.Status),
			Category:       n.Category,
			CreatedAt:      n.CreatedAt.Format(time.RFC3339),
		}
		if err := d.publisher.Publish(ctx, event); err != nil {
			d.logger.Warn("notification publish failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	return nil
}

func (d *NotificationDispatcher) unavailable(err error, action string) error {
	return appErrors.Wrap(err, appErrors.ErrCollaboratorUnavailable.Code, appErrors.ErrCollaboratorUnavailable.Status, "notifications: "+action)
}
