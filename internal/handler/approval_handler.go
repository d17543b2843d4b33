package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	"github.com/noah-isme/clearance-api/internal/service"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type approvalQueue interface {
	PendingFor(ctx context.Context, p models.Principal) ([]dto.PendingItem, error)
	ApprovedBy(ctx context.Context, p models.Principal) ([]dto.ApprovedItem, error)
}

type pendingExporter interface {
	PendingCSV(ctx context.Context, p models.Principal) (string, []byte, error)
}

type authorityResolver interface {
	StudentsUnderAuthority(ctx context.Context, p models.Principal) (service.StudentScope, error)
}

// ApprovalHandler serves a reviewer's queue, history and scope.
type ApprovalHandler struct {
	queue     approvalQueue
	exporter  pendingExporter
	authority authorityResolver
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(queue approvalQueue, exporter pendingExporter, authority authorityResolver) *ApprovalHandler {
	return &ApprovalHandler{queue: queue, exporter: exporter, authority: authority}
}

// Pending godoc
// @Summary Forms awaiting the caller's approval
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	start := time.Now()
	items, err := h.queue.PendingFor(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	meta := middleware.ResponseMeta(c, start)
	meta["count"] = len(items)
	response.JSON(c, http.StatusOK, items, nil, meta)
}

// ExportPending godoc
// @Summary Download the pending queue as CSV
// @Tags Approvals
// @Produce text/csv
// @Success 200 {file} file
// @Router /approvals/pending/export [get]
func (h *ApprovalHandler) ExportPending(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	filename, data, err := h.exporter.PendingCSV(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv", data)
}

// History godoc
// @Summary Slots the caller has signed
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/history [get]
func (h *ApprovalHandler) History(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	items, err := h.queue.ApprovedBy(c.Request.Context(), p)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Students godoc
// @Summary Students under the caller's authority
// @Description Administrative roles are campus-wide and report global=true with no ids.
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /approvals/students [get]
func (h *ApprovalHandler) Students(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	if !p.IsStaff() {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "students have no review authority"))
		return
	}
	scope, err := h.authority.StudentsUnderAuthority(c.Request.Context(), p)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve authority"))
		return
	}
	ids := scope.StudentIDs
	if ids == nil {
		ids = []string{}
	}
	response.JSON(c, http.StatusOK, gin.H{"global": scope.All, "studentIds": ids}, nil)
}
