package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

type queueStub struct {
	pending  []dto.PendingItem
	approved []dto.ApprovedItem
	err      error
}

func (s *queueStub) PendingFor(ctx context.Context, p models.Principal) ([]dto.PendingItem, error) {
	return s.pending, s.err
}

func (s *queueStub) ApprovedBy(ctx context.Context, p models.Principal) ([]dto.ApprovedItem, error) {
	return s.approved, s.err
}

type exporterStub struct {
	err error
}

func (s exporterStub) PendingCSV(ctx context.Context, p models.Principal) (string, []byte, error) {
	if s.err != nil {
		return "", nil, s.err
	}
	return "pending-approvals.csv", []byte("form_id,kind\nf1,affidavit\n"), nil
}

func TestApprovalPendingIncludesCount(t *testing.T) {
	h := NewApprovalHandler(&queueStub{pending: []dto.PendingItem{{FormID: "f1"}, {FormID: "f2"}}}, exporterStub{}, nil)
	c, rec := newContext(http.MethodGet, "/approvals/pending", nil, staffClaims)

	h.Pending(c)

	require.Equal(t, http.StatusOK, rec.Code)
	env := decode(t, rec)
	assert.EqualValues(t, 2, env.Meta["count"])
	assert.Contains(t, string(env.Data), `"formId":"f2"`)
}

func TestApprovalPendingPropagatesErrors(t *testing.T) {
	h := NewApprovalHandler(&queueStub{err: appErrors.Clone(appErrors.ErrUnauthorized, "students have no approval queue")}, exporterStub{}, nil)
	c, rec := newContext(http.MethodGet, "/approvals/pending", nil, studentClaims)

	h.Pending(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestApprovalExportStreamsCSV(t *testing.T) {
	h := NewApprovalHandler(&queueStub{}, exporterStub{}, nil)
	c, rec := newContext(http.MethodGet, "/approvals/pending/export", nil, staffClaims)

	h.ExportPending(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "pending-approvals.csv")
	assert.Contains(t, rec.Body.String(), "f1,affidavit")

	h = NewApprovalHandler(&queueStub{}, exporterStub{err: errors.New("boom")}, nil)
	c, rec = newContext(http.MethodGet, "/approvals/pending/export", nil, staffClaims)
	h.ExportPending(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestApprovalHistory(t *testing.T) {
	h := NewApprovalHandler(&queueStub{approved: []dto.ApprovedItem{{FormID: "f9", Slot: "approved"}}}, exporterStub{}, nil)
	c, rec := newContext(http.MethodGet, "/approvals/history", nil, staffClaims)

	h.History(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), `"f9"`)
}

type authorityStub struct {
	scope service.StudentScope
	err   error
}

func (s authorityStub) StudentsUnderAuthority(ctx context.Context, p models.Principal) (service.StudentScope, error) {
	return s.scope, s.err
}

func TestApprovalStudentsUnderAuthority(t *testing.T) {
	h := NewApprovalHandler(&queueStub{}, exporterStub{}, authorityStub{scope: service.StudentScope{StudentIDs: []string{"stu-cs"}}})
	c, rec := newContext(http.MethodGet, "/approvals/students", nil, staffClaims)
	h.Students(c)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"global":false,"studentIds":["stu-cs"]}`, string(decode(t, rec).Data))

	h = NewApprovalHandler(&queueStub{}, exporterStub{}, authorityStub{scope: service.StudentScope{All: true}})
	c, rec = newContext(http.MethodGet, "/approvals/students", nil, staffClaims)
	h.Students(c)
	assert.JSONEq(t, `{"global":true,"studentIds":[]}`, string(decode(t, rec).Data))

	c, rec = newContext(http.MethodGet, "/approvals/students", nil, studentClaims)
	h.Students(c)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	h = NewApprovalHandler(&queueStub{}, exporterStub{}, authorityStub{err: errors.New("db down")})
	c, rec = newContext(http.MethodGet, "/approvals/students", nil, staffClaims)
	h.Students(c)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
