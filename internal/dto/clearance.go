package dto

import (
	"time"

	"github.com/noah-isme/clearance-api/internal/models"
)

// FormState summarises one form for the clearance overview.
type FormState struct {
	Kind        models.FormKind `json:"kind"`
	Title       string          `json:"title"`
	Exists      bool            `json:"exists"`
	Submitted   bool            `json:"submitted"`
	Approved    bool            `json:"approved"`
	NextRole    models.Role     `json:"nextRole,omitempty"`
	ApprovedAt  *time.Time      `json:"approvedAt,omitempty"`
	SubmittedAt *time.Time      `json:"submittedAt,omitempty"`
}

// DocumentState summarises one required document.
type DocumentState struct {
	Type     models.DocumentType   `json:"type"`
	Label    string                `json:"label"`
	Uploaded bool                  `json:"uploaded"`
	Approved bool                  `json:"approved"`
	Status   models.DocumentStatus `json:"status"`
}

// ClearanceStatus is the aggregated verdict for one student.
type ClearanceStatus struct {
	StudentID            string          `json:"studentId"`
	Forms                []FormState     `json:"forms"`
	Documents            []DocumentState `json:"documents"`
	AllFormsSubmitted    bool            `json:"allFormsSubmitted"`
	AllFormsApproved     bool            `json:"allFormsApproved"`
	AllDocumentsApproved bool            `json:"allDocumentsApproved"`
	ClearanceComplete    bool            `json:"clearanceComplete"`
	CompletionPercentage int             `json:"completionPercentage"`
	CompletedAt          *time.Time      `json:"completedAt,omitempty"`
}

// RecordDocumentRequest registers an uploaded file for review.
type RecordDocumentRequest struct {
	StudentID string              `json:"studentId" validate:"omitempty,max=64"`
	Type      models.DocumentType `json:"type" validate:"required"`
	FileRef   string              `json:"fileRef" validate:"required,max=512"`
}

// ReviewDocumentRequest records a reviewer's decision.
type ReviewDocumentRequest struct {
	Status   models.DocumentStatus `json:"status" validate:"required,oneof=approved rejected"`
	Feedback string                `json:"feedback" validate:"omitempty,max=2000"`
}

// CertificateLink points at a stored clearance certificate.
type CertificateLink struct {
	StudentID   string    `json:"studentId"`
	DownloadURL string    `json:"downloadUrl"`
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IssueCertificateRequest targets a student; students may leave it empty.
type IssueCertificateRequest struct {
	StudentID string `json:"studentId"`
}
