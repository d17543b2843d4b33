package models

import "time"

// Audit actions written to the ledger.
const (
	AuditActionFormSubmitted      = "FORM_SUBMITTED"
	AuditActionFormApproved       = "FORM_APPROVED"
	AuditActionDocumentRecorded   = "DOCUMENT_RECORDED"
	AuditActionDocumentReviewed   = "DOCUMENT_REVIEWED"
	AuditActionClearanceCompleted = "CLEARANCE_COMPLETED"
)

// Audit delivery states.
const (
	AuditStatusRecorded = "RECORDED"
	AuditStatusFailed   = "FAILED"
	AuditStatusSkipped  = "SKIPPED"
)

// AuditRecord is one action handed to the external ledger.
type AuditRecord struct {
	SubjectKey string `json:"subjectKey"`
	Action     string `json:"action"`
	ActorID    string `json:"actorId,omitempty"`
	Details    string `json:"details"`
}

// LedgerReceipt is what the ledger returns for an accepted record.
type LedgerReceipt struct {
	TransactionRef string `json:"transactionRef"`
	BlockNumber    *int64 `json:"blockNumber,omitempty"`
}

// AuditLog keeps a local trace of every ledger delivery attempt.
type AuditLog struct {
	ID             string    `db:"id" json:"id"`
	SubjectKey     string    `db:"subject_key" json:"subjectKey"`
	Action         string    `db:"action" json:"action"`
	ActorID        *string   `db:"actor_id" json:"actorId,omitempty"`
	Details        string    `db:"details" json:"details"`
	Status         string    `db:"status" json:"status"`
	TransactionRef *string   `db:"transaction_ref" json:"transactionRef,omitempty"`
	BlockNumber    *int64    `db:"block_number" json:"blockNumber,omitempty"`
	Error          *string   `db:"error" json:"error,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}
