package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
	"github.com/noah-isme/clearance-api/pkg/storage"
)

type certificateStorage interface {
	Save(name string, data []byte) (string, error)
	Read(name string) ([]byte, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type certificateRenderer interface {
	Render(cert export.Certificate) ([]byte, error)
}

type clearanceStatusSource interface {
	Status(ctx context.Context, p models.Principal, studentID string) (*dto.ClearanceStatus, error)
}

// CertificateConfig tunes certificate links.
type CertificateConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// CertificateService renders clearance certificates for cleared students and
// hands out signed download links.
type CertificateService struct {
	status   clearanceStatusSource
	students studentReader
	storage  certificateStorage
	renderer certificateRenderer
	signer   *storage.SignedURLSigner
	cfg      CertificateConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewCertificateService constructs a CertificateService. renderer defaults to
// the gofpdf certificate layout.
func NewCertificateService(status clearanceStatusSource, students studentReader, store certificateStorage, signer *storage.SignedURLSigner, renderer certificateRenderer, cfg CertificateConfig, logger *zap.Logger) *CertificateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if renderer == nil {
		renderer = export.NewCertificateRenderer("")
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 7 * 24 * time.Hour
	}
	return &CertificateService{
		status:   status,
		students: students,
		storage:  store,
		renderer: renderer,
		signer:   signer,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Issue renders and stores the certificate of studentID and returns a signed
// link to it. Incomplete clearance fails with ErrGateNotSatisfied.
func (s *CertificateService) Issue(ctx context.Context, p models.Principal, studentID string) (*dto.CertificateLink, error) {
	status, err := s.status.Status(ctx, p, studentID)
	if err != nil {
		return nil, err
	}
	if !status.ClearanceComplete {
		return nil, appErrors.Clone(appErrors.ErrGateNotSatisfied, fmt.Sprintf("clearance is %d%% complete", status.CompletionPercentage))
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	issuedAt := s.now()
	completedAt := issuedAt
	if status.CompletedAt != nil {
		completedAt = *status.CompletedAt
	}
	payload, err := s.renderer.Render(export.Certificate{
		StudentName:   student.FullName,
		ApplicationID: student.ApplicationID,
		Department:    student.Department,
		CompletedAt:   completedAt,
		IssuedAt:      issuedAt,
		Sections:      certificateSections(status),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	relPath, err := s.storage.Save(certificateFilename(student), payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}

	token, expiresAt, err := s.signer.Generate(student.ID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign certificate link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("certificate issued", zap.String("student_id", student.ID), zap.String("path", relPath))
	return &dto.CertificateLink{
		StudentID:   student.ID,
		DownloadURL: fmt.Sprintf("%s/certificates/download?token=%s", prefix, token),
		Token:       token,
		ExpiresAt:   expiresAt,
	}, nil
}

// Download resolves a signed token to the stored certificate.
func (s *CertificateService) Download(token string) (filename string, data []byte, err error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrTokenExpired):
			return "", nil, appErrors.Clone(appErrors.ErrUnauthenticated, "download link expired")
		default:
			return "", nil, appErrors.Wrap(err, appErrors.ErrUnauthenticated.Code, appErrors.ErrUnauthenticated.Status, "invalid download link")
		}
	}
	data, err = s.storage.Read(relPath)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "certificate not found")
	}
	return path.Base(relPath), data, nil
}

// Cleanup removes certificates older than ttl, or the configured TTL when ttl <= 0.
func (s *CertificateService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func certificateSections(status *dto.ClearanceStatus) []export.CertificateSection {
	forms := export.Dataset{Headers: []string{"Form", "Submitted", "Approved"}}
	for _, f := range status.Forms {
		forms.Rows = append(forms.Rows, map[string]string{
			"Form":      f.Title,
			"Submitted": stamp(f.SubmittedAt),
			"Approved":  stamp(f.ApprovedAt),
		})
	}
	documents := export.Dataset{Headers: []string{"Document", "Status"}}
	for _, d := range status.Documents {
		documents.Rows = append(documents.Rows, map[string]string{
			"Document": d.Label,
			"Status":   string(d.Status),
		})
	}
	return []export.CertificateSection{
		{Title: "Forms", Data: forms},
		{Title: "Documents", Data: documents},
	}
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func certificateFilename(student *models.Student) string {
	return fmt.Sprintf("clearance_%s.pdf", sanitizeFilename(student.ApplicationID))
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
