package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/jobs"
)

type ledgerStub struct {
	mu       sync.Mutex
	calls    int
	failures int
	block    int64
}

func (l *ledgerStub) RecordAction(ctx context.Context, rec models.AuditRecord) (*models.LedgerReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.failures {
		return nil, errors.New("ledger unavailable")
	}
	block := l.block
	return &models.LedgerReceipt{TransactionRef: "0xabc", BlockNumber: &block}, nil
}

func (l *ledgerStub) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

type auditLogStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (s *auditLogStub) Create(ctx context.Context, log *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, log)
	return s.err
}

func (s *auditLogStub) statuses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.logs))
	for i, l := range s.logs {
		out[i] = l.Status
	}
	return out
}

var sampleRecord = models.AuditRecord{SubjectKey: "APP-CS-1", Action: models.AuditActionFormApproved, ActorID: "staff-registrar", Details: "new_clearance deputyRegistrar"}

func TestAuditRecordInlineSuccess(t *testing.T) {
	ledger, store := &ledgerStub{block: 42}, &auditLogStub{}
	svc := NewAuditService(ledger, store, time.Second, NewMetricsService(), nil)

	require.NoError(t, svc.Record(context.Background(), sampleRecord))
	require.Len(t, store.logs, 1)
	log := store.logs[0]
	assert.Equal(t, models.AuditStatusRecorded, log.Status)
	require.NotNil(t, log.TransactionRef)
	assert.Equal(t, "0xabc", *log.TransactionRef)
	require.NotNil(t, log.BlockNumber)
	assert.EqualValues(t, 42, *log.BlockNumber)
	require.NotNil(t, log.ActorID)
	assert.Equal(t, "staff-registrar", *log.ActorID)
}

func TestAuditRecordInlineFailureIsLogged(t *testing.T) {
	ledger, store := &ledgerStub{failures: 1}, &auditLogStub{}
	svc := NewAuditService(ledger, store, time.Second, nil, nil)

	err := svc.Record(context.Background(), sampleRecord)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrCollaboratorUnavailable.Code, errCode(err))
	assert.Equal(t, []string{models.AuditStatusFailed}, store.statuses())
	require.NotNil(t, store.logs[0].Error)
}

func TestAuditRecordWithoutLedgerIsSkipped(t *testing.T) {
	store := &auditLogStub{err: errors.New("insert failed")}
	svc := NewAuditService(nil, store, 0, nil, nil)

	require.NoError(t, svc.Record(context.Background(), models.AuditRecord{SubjectKey: "APP-1", Action: models.AuditActionClearanceCompleted}))
	assert.Equal(t, []string{models.AuditStatusSkipped}, store.statuses())
	assert.Nil(t, store.logs[0].ActorID)
}

func TestAuditQueueRetriesFailedDeliveries(t *testing.T) {
	ledger, store := &ledgerStub{failures: 2}, &auditLogStub{}
	svc := NewAuditService(ledger, store, time.Second, nil, nil)
	queue := jobs.NewQueue("audit", svc.Handle, jobs.QueueConfig{Workers: 1, MaxRetries: 3, RetryDelay: 5 * time.Millisecond})
	queue.Start(context.Background())
	svc.UseQueue(queue)

	require.NoError(t, svc.Record(context.Background(), sampleRecord))
	assert.Eventually(t, func() bool { return ledger.callCount() == 3 }, 2*time.Second, 5*time.Millisecond)
	queue.Stop()

	assert.Equal(t, []string{models.AuditStatusFailed, models.AuditStatusFailed, models.AuditStatusRecorded}, store.statuses())
}

func TestAuditQueueStoppedIsCollaboratorUnavailable(t *testing.T) {
	svc := NewAuditService(&ledgerStub{}, &auditLogStub{}, time.Second, nil, nil)
	svc.UseQueue(jobs.NewQueue("audit", svc.Handle, jobs.QueueConfig{}))

	err := svc.Record(context.Background(), sampleRecord)
	assert.Equal(t, appErrors.ErrCollaboratorUnavailable.Code, errCode(err))
}

func TestAuditHandleIgnoresForeignPayload(t *testing.T) {
	store := &auditLogStub{}
	svc := NewAuditService(&ledgerStub{}, store, time.Second, nil, nil)

	require.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "1", Type: auditJobType, Payload: "oops"}))
	assert.Empty(t, store.logs)
}
