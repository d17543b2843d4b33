package dto

import (
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// ApproveRequest names the slot being signed.
type ApproveRequest struct {
	// Slot is a role name for approval-set forms, deputyRegistrar or
	// schoolOfficer for the new clearance form, and optional otherwise.
	Slot     string `json:"slot" validate:"omitempty,max=64"`
	Comments string `json:"comments" validate:"omitempty,max=2000"`
}

// ApprovalResult is returned after a successful approval.
type ApprovalResult struct {
	Form            *models.Form `json:"form"`
	Slot            string       `json:"slot"`
	OverallApproved bool         `json:"overallApproved"`
	CompletedNow    bool         `json:"completedNow"`
	NextRole        models.Role  `json:"nextRole,omitempty"`
}

// SubmitResult is returned after a successful submission.
type SubmitResult struct {
	Form *models.Form `json:"form"`
}

// PendingItem is a form waiting on the caller's signature.
type PendingItem struct {
	FormID        string          `db:"form_id" json:"formId"`
	Kind          models.FormKind `db:"kind" json:"kind"`
	Title         string          `db:"-" json:"title"`
	Slot          string          `db:"-" json:"slot"`
	StudentID     string          `db:"student_id" json:"studentId"`
	StudentName   string          `db:"student_name" json:"studentName"`
	ApplicationID string          `db:"application_id" json:"applicationId"`
	Department    string          `db:"department" json:"department"`
	SubmittedAt   *time.Time      `db:"submitted_at" json:"submittedAt,omitempty"`
}

// ApprovedItem is a slot the caller has already signed.
type ApprovedItem struct {
	FormID        string          `json:"formId"`
	Kind          models.FormKind `json:"kind"`
	Title         string          `json:"title"`
	Slot          string          `json:"slot"`
	StudentID     string          `json:"studentId"`
	StudentName   string          `json:"studentName"`
	ApplicationID string          `json:"applicationId"`
	ApprovedAt    *time.Time      `json:"approvedAt,omitempty"`
}
