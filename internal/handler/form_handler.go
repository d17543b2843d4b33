package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type formEngine interface {
	Submit(ctx context.Context, studentID string, kind models.FormKind, payload []byte) (*dto.SubmitResult, error)
	Approve(ctx context.Context, p models.Principal, formID string, kind models.FormKind, req dto.ApproveRequest) (*dto.ApprovalResult, error)
	Form(ctx context.Context, p models.Principal, studentID string, kind models.FormKind) (*models.Form, error)
}

// FormHandler exposes form submission and approval.
type FormHandler struct {
	engine formEngine
}

// NewFormHandler constructs the handler.
func NewFormHandler(engine formEngine) *FormHandler {
	return &FormHandler{engine: engine}
}

// Submit godoc
// @Summary Submit a clearance form
// @Description The body is the form's own payload, validated per kind.
// @Tags Forms
// @Accept json
// @Produce json
// @Param kind path string true "Form kind" Enums(new_clearance, provisional_admission, personal_record, personal_record2, affidavit)
// @Param payload body object true "Form payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /forms/{kind} [post]
func (h *FormHandler) Submit(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	if p.IsStaff() {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "only students submit forms"))
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable payload"))
		return
	}

	res, err := h.engine.Submit(c.Request.Context(), p.ID, kind, raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Approve godoc
// @Summary Approve one slot of a form
// @Tags Forms
// @Accept json
// @Produce json
// @Param kind path string true "Form kind"
// @Param id path string true "Form ID"
// @Param payload body dto.ApproveRequest true "Approval"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{kind}/{id}/approve [post]
func (h *FormHandler) Approve(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	var req dto.ApproveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid approval payload"))
			return
		}
	}

	res, err := h.engine.Approve(c.Request.Context(), p, c.Param("id"), kind, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// Get godoc
// @Summary Read a form
// @Description Students read their own; staff pass studentId.
// @Tags Forms
// @Produce json
// @Param kind path string true "Form kind"
// @Param studentId query string false "Student ID (staff only)"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /forms/{kind} [get]
func (h *FormHandler) Get(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	kind, ok := parseKind(c)
	if !ok {
		return
	}
	studentID := p.ID
	if p.IsStaff() {
		studentID = strings.TrimSpace(c.Query("studentId"))
		if studentID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "studentId is required"))
			return
		}
	}

	form, err := h.engine.Form(c.Request.Context(), p, studentID, kind)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, form, nil)
}
