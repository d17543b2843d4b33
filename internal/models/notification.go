package models

import "time"

// NotificationStatus tags the tone of a notification.
type NotificationStatus string

const (
	NotificationSuccess NotificationStatus = "success"
	NotificationInfo    NotificationStatus = "info"
	NotificationWarning NotificationStatus = "warning"
	NotificationError   NotificationStatus = "error"
)

// Notification categories.
const (
	CategoryFormSubmission = "form_submission"
	CategoryFormApproval   = "form_approval"
	CategoryReviewRequest  = "review_request"
	CategoryDocument       = "document_review"
	CategoryClearance      = "clearance"
)

// Notification is write-once apart from Read.
type Notification struct {
	ID          string             `db:"id" json:"id"`
	RecipientID string             `db:"recipient_id" json:"recipientId"`
	Title       string             `db:"title" json:"title"`
	Description string             `db:"description" json:"description"`
	Status      NotificationStatus `db:"status" json:"status"`
	Category    string             `db:"category" json:"category"`
	Read        bool               `db:"read" json:"read"`
	CreatedAt   time.Time          `db:"created_at" json:"createdAt"`
}

// NotificationFilter narrows a recipient's inbox.
type NotificationFilter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
	Offset      int
}
