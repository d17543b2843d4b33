package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/middleware"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

type clearanceStatusReader interface {
	Status(ctx context.Context, p models.Principal, studentID string) (*dto.ClearanceStatus, error)
}

type certificateIssuer interface {
	Issue(ctx context.Context, p models.Principal, studentID string) (*dto.CertificateLink, error)
	Download(token string) (string, []byte, error)
}

// ClearanceHandler serves clearance status and certificates.
type ClearanceHandler struct {
	status       clearanceStatusReader
	certificates certificateIssuer
}

// NewClearanceHandler constructs the handler.
func NewClearanceHandler(status clearanceStatusReader, certificates certificateIssuer) *ClearanceHandler {
	return &ClearanceHandler{status: status, certificates: certificates}
}

// OwnStatus godoc
// @Summary The caller's clearance status
// @Tags Clearance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /clearance/status [get]
func (h *ClearanceHandler) OwnStatus(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	h.writeStatus(c, p, p.ID)
}

// Status godoc
// @Summary A student's clearance status
// @Tags Clearance
// @Produce json
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /clearance/status/{studentId} [get]
func (h *ClearanceHandler) Status(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	h.writeStatus(c, p, c.Param("studentId"))
}

func (h *ClearanceHandler) writeStatus(c *gin.Context, p models.Principal, studentID string) {
	start := time.Now()
	status, err := h.status.Status(c.Request.Context(), p, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil, middleware.ResponseMeta(c, start))
}

// IssueCertificate godoc
// @Summary Issue a signed certificate download link
// @Description Students omit studentId; staff must supply it.
// @Tags Clearance
// @Accept json
// @Produce json
// @Param payload body dto.IssueCertificateRequest false "Target student"
// @Success 201 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Router /clearance/certificate [post]
func (h *ClearanceHandler) IssueCertificate(c *gin.Context) {
	p, ok := principalFromContext(c)
	if !ok {
		return
	}
	var req dto.IssueCertificateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid certificate payload"))
			return
		}
	}
	studentID := strings.TrimSpace(req.StudentID)
	if studentID == "" {
		studentID = p.ID
	}

	link, err := h.certificates.Issue(c.Request.Context(), p, studentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// DownloadCertificate godoc
// @Summary Download a certificate PDF
// @Description The signed token is the only credential.
// @Tags Clearance
// @Produce application/pdf
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Router /certificates/download [get]
func (h *ClearanceHandler) DownloadCertificate(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	filename, data, err := h.certificates.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", data)
}
