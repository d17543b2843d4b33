package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
)

func TestPendingCSVExport(t *testing.T) {
	submitted := time.Date(2026, 9, 30, 8, 15, 0, 0, time.UTC)
	queue := &fakeQueue{pending: []dto.PendingItem{{
		FormID:        "form-1",
		Kind:          models.FormNewClearance,
		Title:         "New Clearance Form",
		Slot:          models.SlotSchoolOfficer,
		StudentID:     csStudent.ID,
		StudentName:   csStudent.FullName,
		ApplicationID: csStudent.ApplicationID,
		Department:    csStudent.Department,
		SubmittedAt:   &submitted,
	}}}
	svc := NewExportService(queue, nil)
	svc.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }

	name, data, err := svc.PendingCSV(context.Background(), csOfficer)
	require.NoError(t, err)
	assert.Equal(t, "pending_staff-officer_20261001_120000.csv", name)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, pendingExportHeaders, records[0])
	assert.Equal(t, "form-1", records[1][0])
	assert.Equal(t, "schoolOfficer", records[1][3])
	assert.Equal(t, "2026-09-30T08:15:00Z", records[1][8])
}

func TestPendingCSVExportEmptyQueue(t *testing.T) {
	h := newEngineHarness()
	svc := NewExportService(h.engine, nil)

	_, data, err := svc.PendingCSV(context.Background(), legalStaff)
	require.NoError(t, err)
	assert.Equal(t, strings.Join(pendingExportHeaders, ","), strings.TrimSpace(string(data)))
}

func TestPendingCSVExportPropagatesErrors(t *testing.T) {
	svc := NewExportService(&fakeQueue{err: errors.New("db down")}, nil)
	_, _, err := svc.PendingCSV(context.Background(), legalStaff)
	assert.Error(t, err)
}
