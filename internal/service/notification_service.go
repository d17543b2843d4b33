package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type notificationInbox interface {
	List(ctx context.Context, filter models.NotificationFilter) ([]models.Notification, int, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
}

// NotificationListRequest pages through the caller's inbox.
type NotificationListRequest struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// NotificationService is the read side of notifications.
type NotificationService struct {
	inbox notificationInbox
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(inbox notificationInbox) *NotificationService {
	return &NotificationService{inbox: inbox}
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, p models.Principal, req NotificationListRequest) ([]models.Notification, *models.Pagination, error) {
	page := req.Page
	if page <= 0 {
		page = 1
	}
	size := req.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 200 {
		size = 200
	}
	items, total, err := s.inbox.List(ctx, models.NotificationFilter{
		RecipientID: p.ID,
		UnreadOnly:  req.UnreadOnly,
		Limit:       size,
		Offset:      (page - 1) * size,
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// MarkRead flags one of the caller's notifications as read. Notifications of
// other recipients are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, p models.Principal, id string) error {
	if err := s.inbox.MarkRead(ctx, id, p.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags every unread notification of the caller and returns the count.
func (s *NotificationService) MarkAllRead(ctx context.Context, p models.Principal) (int64, error) {
	n, err := s.inbox.MarkAllRead(ctx, p.ID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return n, nil
}
