package models

import "time"

// DocumentType is one of the uploads every student must have approved.
type DocumentType string

const (
	DocumentJAMBAdmissionLetter  DocumentType = "jambAdmissionLetter"
	DocumentJAMBResult           DocumentType = "jambResult"
	DocumentOLevelResult         DocumentType = "oLevelResult"
	DocumentBirthCertificate     DocumentType = "birthCertificate"
	DocumentStateOfOrigin        DocumentType = "stateOfOrigin"
	DocumentPassportPhoto        DocumentType = "passportPhoto"
	DocumentAcceptanceFeeReceipt DocumentType = "acceptanceFeeReceipt"
	DocumentMedicalReport        DocumentType = "medicalReport"
)

var requiredDocuments = []struct {
	Type  DocumentType
	Label string
}{
	{DocumentJAMBAdmissionLetter, "JAMB Admission Letter"},
	{DocumentJAMBResult, "JAMB Result"},
	{DocumentOLevelResult, "O'Level Result"},
	{DocumentBirthCertificate, "Birth Certificate"},
	{DocumentStateOfOrigin, "State of Origin"},
	{DocumentPassportPhoto, "Passport Photograph"},
	{DocumentAcceptanceFeeReceipt, "Acceptance Fee Receipt"},
	{DocumentMedicalReport, "Medical Report"},
}

// RequiredDocumentTypes lists the required set in display order.
func RequiredDocumentTypes() []DocumentType {
	types := make([]DocumentType, len(requiredDocuments))
	for i, d := range requiredDocuments {
		types[i] = d.Type
	}
	return types
}

// Valid reports whether t belongs to the required set.
func (t DocumentType) Valid() bool {
	for _, d := range requiredDocuments {
		if d.Type == t {
			return true
		}
	}
	return false
}

// Label is the human readable document name.
func (t DocumentType) Label() string {
	for _, d := range requiredDocuments {
		if d.Type == t {
			return d.Label
		}
	}
	return string(t)
}

// DocumentStatus is the review state of an uploaded document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
	// DocumentNotUploaded is reported for required types with no record.
	DocumentNotUploaded DocumentStatus = "not_uploaded"
)

// Document is the review record of one uploaded file. The file itself lives
// in external storage referenced by FileRef.
type Document struct {
	ID         string         `db:"id" json:"id"`
	StudentID  string         `db:"student_id" json:"studentId"`
	Type       DocumentType   `db:"type" json:"type"`
	FileRef    string         `db:"file_ref" json:"fileRef"`
	Status     DocumentStatus `db:"status" json:"status"`
	ReviewedBy *string        `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt *time.Time     `db:"reviewed_at" json:"reviewedAt,omitempty"`
	Feedback   *string        `db:"feedback" json:"feedback,omitempty"`
	UploadedAt time.Time      `db:"uploaded_at" json:"uploadedAt"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updatedAt"`
}

// ClearanceCompletion marks the first time a student was found fully cleared.
type ClearanceCompletion struct {
	StudentID   string    `db:"student_id" json:"studentId"`
	CompletedAt time.Time `db:"completed_at" json:"completedAt"`
}
