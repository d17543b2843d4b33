package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/dto"
	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

var fixedNow = time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

func submittedForm(kind models.FormKind) models.Form {
	at := fixedNow
	return models.Form{ID: string(kind), StudentID: csStudent.ID, Kind: kind, Submitted: true, SubmittedAt: &at, Approvals: models.SeedApprovals(kind)}
}

func approvedForm(t *testing.T, kind models.FormKind) models.Form {
	t.Helper()
	f := submittedForm(kind)
	desc, _ := models.LookupForm(kind)
	for _, role := range desc.Slots {
		slot := string(role)
		if desc.Topology == models.TopologySingle {
			slot = models.SlotApproved
		}
		_, _, err := f.Approve(slot, "staff", "", fixedNow)
		require.NoError(t, err)
	}
	require.True(t, f.IsApproved())
	return f
}

func allApprovedForms(t *testing.T) []models.Form {
	var out []models.Form
	for _, kind := range models.FormKinds() {
		out = append(out, approvedForm(t, kind))
	}
	return out
}

func documentsWith(status models.DocumentStatus, n int) []models.Document {
	var out []models.Document
	for i, typ := range models.RequiredDocumentTypes() {
		if i >= n {
			break
		}
		out = append(out, models.Document{ID: string(typ), StudentID: csStudent.ID, Type: typ, Status: status})
	}
	return out
}

func TestBuildClearanceStatusEmpty(t *testing.T) {
	status := BuildClearanceStatus(csStudent.ID, nil, nil)

	assert.Equal(t, 0, status.CompletionPercentage)
	assert.False(t, status.ClearanceComplete)
	require.Len(t, status.Forms, 5)
	require.Len(t, status.Documents, 8)
	for _, doc := range status.Documents {
		assert.Equal(t, models.DocumentNotUploaded, doc.Status)
		assert.False(t, doc.Uploaded)
	}
	for _, form := range status.Forms {
		assert.False(t, form.Exists)
	}
}

func TestBuildClearanceStatusCompleteRequiresEveryDocument(t *testing.T) {
	docs := documentsWith(models.DocumentApproved, 8)
	docs[7].Status = models.DocumentPending

	status := BuildClearanceStatus(csStudent.ID, allApprovedForms(t), docs)
	assert.True(t, status.AllFormsApproved)
	assert.False(t, status.AllDocumentsApproved)
	assert.False(t, status.ClearanceComplete)
	assert.Equal(t, 96, status.CompletionPercentage)

	docs[7].Status = models.DocumentApproved
	status = BuildClearanceStatus(csStudent.ID, allApprovedForms(t), docs)
	assert.True(t, status.ClearanceComplete)
	assert.Equal(t, 100, status.CompletionPercentage)
}

func TestBuildClearanceStatusMissingFormBlocksCompletion(t *testing.T) {
	forms := allApprovedForms(t)[:4]
	status := BuildClearanceStatus(csStudent.ID, forms, documentsWith(models.DocumentApproved, 8))
	assert.False(t, status.AllFormsApproved)
	assert.False(t, status.ClearanceComplete)
	assert.Equal(t, 90, status.CompletionPercentage)
}

func TestBuildClearanceStatusReportsNextRole(t *testing.T) {
	pa := submittedForm(models.FormProvisionalAdmission)
	_, _, err := pa.Approve(string(models.RoleSchoolOfficer), "staff", "", fixedNow)
	require.NoError(t, err)

	status := BuildClearanceStatus(csStudent.ID, []models.Form{pa}, nil)
	var state dto.FormState
	for _, f := range status.Forms {
		if f.Kind == models.FormProvisionalAdmission {
			state = f
		}
	}
	assert.True(t, state.Submitted)
	assert.False(t, state.Approved)
	assert.Equal(t, models.RoleDeputyRegistrar, state.NextRole)
	assert.Equal(t, 3, status.CompletionPercentage)
}

func TestCompletionPercentageIsMonotonic(t *testing.T) {
	forms := make([]models.Form, 0, 5)
	docs := make([]models.Document, 0, 8)
	last := BuildClearanceStatus(csStudent.ID, forms, docs).CompletionPercentage

	step := func() {
		current := BuildClearanceStatus(csStudent.ID, forms, docs).CompletionPercentage
		assert.GreaterOrEqual(t, current, last)
		last = current
	}

	for _, kind := range models.FormKinds() {
		forms = append(forms, submittedForm(kind))
		step()
		forms[len(forms)-1] = approvedForm(t, kind)
		step()
	}
	for _, typ := range models.RequiredDocumentTypes() {
		docs = append(docs, models.Document{Type: typ, Status: models.DocumentPending})
		step()
		docs[len(docs)-1].Status = models.DocumentApproved
		step()
	}
	assert.Equal(t, 100, last)
}

func TestClearanceStatusAuthorisationAndCache(t *testing.T) {
	h := newEngineHarness()
	cache := newMemCache()
	svc := NewClearanceService(ClearanceServiceDeps{
		Students:    h.students,
		Forms:       h.forms,
		Documents:   h.documents,
		Completions: h.completions,
		Cache:       NewCacheService(cache, nil, time.Minute, nil, true),
	})
	ctx := context.Background()

	_, err := svc.Status(ctx, studentPrincipal(physicsStudent), csStudent.ID)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(err))

	_, err = svc.Status(ctx, registrarStaff, "ghost")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(err))

	status, err := svc.Status(ctx, studentPrincipal(csStudent), csStudent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CompletionPercentage)
	assert.True(t, cache.has(statusCacheKey(csStudent.ID)))

	// A cached verdict is served until invalidated.
	h.documents.seedApproved(csStudent.ID)
	status, err = svc.Status(ctx, registrarStaff, csStudent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, status.CompletionPercentage)

	NewCacheService(cache, nil, time.Minute, nil, true).InvalidateStudent(ctx, csStudent.ID)
	status, err = svc.Status(ctx, registrarStaff, csStudent.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, status.CompletionPercentage)
	assert.True(t, status.AllDocumentsApproved)
}

func TestCheckCompletionFiresOnce(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()
	h.documents.seedApproved(csStudent.ID, models.DocumentMedicalReport)
	for _, kind := range models.FormKinds() {
		f := approvedForm(t, kind)
		h.forms.byID[f.ID] = &f
		h.forms.order = append(h.forms.order, f.ID)
	}

	done, err := h.clearance.CheckCompletion(ctx, csStudent.ID)
	require.NoError(t, err)
	assert.False(t, done, "medical report still pending")
	assert.Empty(t, h.notifier.completions)

	h.documents.docs[csStudent.ID+"-"+string(models.DocumentMedicalReport)].Status = models.DocumentApproved
	for i := 0; i < 3; i++ {
		done, err = h.clearance.CheckCompletion(ctx, csStudent.ID)
		require.NoError(t, err)
		assert.True(t, done)
	}
	assert.Equal(t, []string{csStudent.ID}, h.notifier.completions)
	assert.Equal(t, []string{models.AuditActionClearanceCompleted}, h.audit.actions())

	status, err := h.clearance.Status(ctx, registrarStaff, csStudent.ID)
	require.NoError(t, err)
	require.NotNil(t, status.CompletedAt)
	assert.True(t, status.ClearanceComplete)
}

func TestCheckCompletionAbsorbsNotifierFailure(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()
	h.documents.seedApproved(csStudent.ID)
	for _, kind := range models.FormKinds() {
		f := approvedForm(t, kind)
		h.forms.byID[f.ID] = &f
		h.forms.order = append(h.forms.order, f.ID)
	}
	h.notifier.err = errors.New("inbox down")
	h.audit.err = errors.New("ledger down")

	done, err := h.clearance.CheckCompletion(ctx, csStudent.ID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Contains(t, h.completions.done, csStudent.ID)
}

func TestCheckCompletionWithoutCompletionStore(t *testing.T) {
	h := newEngineHarness()
	ctx := context.Background()
	h.documents.seedApproved(csStudent.ID)
	for _, kind := range models.FormKinds() {
		f := approvedForm(t, kind)
		h.forms.byID[f.ID] = &f
		h.forms.order = append(h.forms.order, f.ID)
	}
	svc := NewClearanceService(ClearanceServiceDeps{
		Students:  h.students,
		Forms:     h.forms,
		Documents: h.documents,
		Notifier:  h.notifier,
		Audit:     h.audit,
	})

	done, err := svc.CheckCompletion(ctx, csStudent.ID)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Empty(t, h.notifier.completions)
	assert.Empty(t, h.audit.actions())

	status, err := svc.Status(ctx, registrarStaff, csStudent.ID)
	require.NoError(t, err)
	assert.True(t, status.ClearanceComplete)
	assert.Nil(t, status.CompletedAt)
}
