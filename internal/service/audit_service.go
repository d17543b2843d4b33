package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/jobs"
)

// LedgerClient appends records to the external tamper-evident ledger.
type LedgerClient interface {
	RecordAction(ctx context.Context, rec models.AuditRecord) (*models.LedgerReceipt, error)
}

type auditLogStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

type auditEnqueuer interface {
	Enqueue(job jobs.Job) error
}

const auditJobType = "audit.record"

// AuditService hands workflow actions to the ledger and keeps a local log of
// every attempt. With a queue attached, Record only enqueues.
type AuditService struct {
	ledger  LedgerClient
	store   auditLogStore
	queue   auditEnqueuer
	timeout time.Duration
	metrics *MetricsService
	logger  *zap.Logger
	now     func() time.Time
}

// NewAuditService constructs the service. A nil ledger records every action as skipped.
func NewAuditService(ledger LedgerClient, store auditLogStore, timeout time.Duration, metrics *MetricsService, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &AuditService{
		ledger:  ledger,
		store:   store,
		timeout: timeout,
		metrics: metrics,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// UseQueue routes Record through q. q must run Handle.
func (s *AuditService) UseQueue(q auditEnqueuer) {
	s.queue = q
}

// Record submits rec for delivery.
func (s *AuditService) Record(ctx context.Context, rec models.AuditRecord) error {
	if s.queue == nil {
		return s.deliver(ctx, rec)
	}
	if err := s.queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: auditJobType, Payload: rec}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrCollaboratorUnavailable.Code, appErrors.ErrCollaboratorUnavailable.Status, "audit queue unavailable")
	}
	return nil
}

// Handle is the jobs.Handler delivering queued records.
func (s *AuditService) Handle(ctx context.Context, job jobs.Job) error {
	rec, ok := job.Payload.(models.AuditRecord)
	if !ok {
		s.logger.Error("unexpected audit job payload", zap.String("job_id", job.ID), zap.String("type", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	return s.deliver(ctx, rec)
}

func (s *AuditService) deliver(ctx context.Context, rec models.AuditRecord) error {
	entry := &models.AuditLog{
		ID:         uuid.NewString(),
		SubjectKey: rec.SubjectKey,
		Action:     rec.Action,
		Details:    rec.Details,
		CreatedAt:  s.now(),
	}
	if rec.ActorID != "" {
		actor := rec.ActorID
		entry.ActorID = &actor
	}

	var deliveryErr error
	if s.ledger == nil {
		entry.Status = models.AuditStatusSkipped
	} else {
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		receipt, err := s.ledger.RecordAction(callCtx, rec)
		cancel()
		if err != nil {
			msg := err.Error()
			entry.Status = models.AuditStatusFailed
			entry.Error = &msg
			deliveryErr = appErrors.Wrap(err, appErrors.ErrCollaboratorUnavailable.Code, appErrors.ErrCollaboratorUnavailable.Status, "audit ledger unavailable")
			s.logger.Warn("audit ledger delivery failed",
				zap.String("subject", rec.SubjectKey),
				zap.String("action", rec.Action),
				zap.Error(err),
			)
		} else {
			entry.Status = models.AuditStatusRecorded
			ref := receipt.TransactionRef
			entry.TransactionRef = &ref
			entry.BlockNumber = receipt.BlockNumber
		}
	}
	s.metrics.RecordAuditDelivery(entry.Status)

	if s.store != nil {
		if err := s.store.Create(ctx, entry); err != nil {
			s.logger.Warn("failed to persist audit log", zap.String("action", rec.Action), zap.Error(err))
		}
	}
	return deliveryErr
}
