package service

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/export"
)

type pendingSource interface {
	PendingFor(ctx context.Context, p models.Principal) ([]dto.PendingItem, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

var pendingExportHeaders = []string{
	"form_id", "kind", "title", "slot", "student_id", "student_name", "application_id", "department", "submitted_at",
}

// ExportService renders a reviewer's queue as CSV.
type ExportService struct {
	pending pendingSource
	csv     csvRenderer
	now     func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(pending pendingSource, csv csvRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	return &ExportService{pending: pending, csv: csv, now: func() time.Time { return time.Now().UTC() }}
}

// PendingCSV returns the caller's pending queue as a CSV file.
func (s *ExportService) PendingCSV(ctx context.Context, p models.Principal) (filename string, data []byte, err error) {
	items, err := s.pending.PendingFor(ctx, p)
	if err != nil {
		return "", nil, err
	}
	dataset := export.Dataset{Headers: pendingExportHeaders}
	for _, item := range items {
		submittedAt := ""
		if item.SubmittedAt != nil {
			submittedAt = item.SubmittedAt.UTC().Format(time.RFC3339)
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"form_id":        item.FormID,
			"kind":           string(item.Kind),
			"title":          item.Title,
			"slot":           item.Slot,
			"student_id":     item.StudentID,
			"student_name":   item.StudentName,
			"application_id": item.ApplicationID,
			"department":     item.Department,
			"submitted_at":   submittedAt,
		})
	}
	data, err = s.csv.Render(dataset)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	filename = fmt.Sprintf("pending_%s_%s.csv", sanitizeFilename(p.ID), s.now().Format("20060102_150405"))
	return filename, data, nil
}
