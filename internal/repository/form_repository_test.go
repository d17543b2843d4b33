package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func formColumnNames() []string {
	parts := strings.Split(formColumns, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// formRow builds a row for kind with the given dual flags and approvals JSON.
func formRow(id, studentID string, kind models.FormKind, submitted, drApproved, soApproved bool, approvals string) []driver.Value {
	now := time.Now()
	return []driver.Value{
		id, studentID, string(kind), []byte(`{}`), submitted, now,
		drApproved, nil, nil, nil,
		soApproved, nil, nil, nil,
		[]byte(approvals), false, nil, nil, nil,
		false, nil, now, now,
	}
}

func TestFormRepositoryGetByStudentAndKind(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows(formColumnNames()).AddRow(formRow("form-1", "stu-1", models.FormNewClearance, true, true, false, `[]`)...)
	mock.ExpectQuery(regexp.QuoteMeta("FROM clearance_forms WHERE student_id = $1 AND kind = $2")).
		WithArgs("stu-1", string(models.FormNewClearance)).
		WillReturnRows(rows)

	form, err := NewFormRepository(db).GetByStudentAndKind(context.Background(), "stu-1", models.FormNewClearance)
	require.NoError(t, err)
	assert.Equal(t, "form-1", form.ID)
	assert.True(t, form.DeputyRegistrarApproved)
	assert.False(t, form.GateOpen())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositorySubmitInsertsAndDetectsDuplicates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	seeded := `[{"role":"schoolOfficer","approved":false},{"role":"deputyRegistrar","approved":false}]`
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO clearance_forms")).
		WillReturnRows(sqlmock.NewRows(formColumnNames()).AddRow(formRow("form-2", "stu-1", models.FormProvisionalAdmission, true, false, false, seeded)...))

	form := &models.Form{StudentID: "stu-1", Kind: models.FormProvisionalAdmission, Approvals: models.SeedApprovals(models.FormProvisionalAdmission)}
	stored, err := repo.Submit(context.Background(), form)
	require.NoError(t, err)
	assert.True(t, stored.Submitted)
	assert.Len(t, stored.Approvals, 2)
	assert.NotEmpty(t, form.ID)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE clearance_forms.submitted = FALSE")).
		WillReturnRows(sqlmock.NewRows(formColumnNames()))
	_, err = repo.Submit(context.Background(), &models.Form{StudentID: "stu-1", Kind: models.FormProvisionalAdmission})
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryUpdateWithLockCommits(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM clearance_forms WHERE id = $1 FOR UPDATE")).
		WithArgs("form-1").
		WillReturnRows(sqlmock.NewRows(formColumnNames()).AddRow(formRow("form-1", "stu-1", models.FormNewClearance, true, true, false, `[]`)...))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE clearance_forms SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := NewFormRepository(db).UpdateWithLock(context.Background(), "form-1", func(f *models.Form) error {
		_, _, err := f.Approve(models.SlotSchoolOfficer, "officer-1", "", time.Now())
		return err
	})
	require.NoError(t, err)
	assert.True(t, updated.OverallApproved)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryUpdateWithLockRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewFormRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows(formColumnNames()).AddRow(formRow("form-1", "stu-1", models.FormNewClearance, true, false, false, `[]`)...))
	mock.ExpectRollback()

	_, err := repo.UpdateWithLock(context.Background(), "form-1", func(f *models.Form) error {
		_, _, err := f.Approve("finance", "x", "", time.Now())
		return err
	})
	assert.ErrorIs(t, err, models.ErrUnknownSlot)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()
	_, err = repo.UpdateWithLock(context.Background(), "missing", func(*models.Form) error { return nil })
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListPendingFiltersDepartments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"form_id", "kind", "student_id", "student_name", "application_id", "department", "submitted_at"}).
		AddRow("form-1", "provisional_admission", "stu-1", "Ada", "APP-1", "Computer Science", time.Now())
	mock.ExpectQuery(`f\.approvals @> \$2::jsonb AND s\.department = ANY\(\$3\)`).
		WithArgs(string(models.FormProvisionalAdmission), `[{"approved":false,"role":"schoolOfficer"}]`, sqlmock.AnyArg()).
		WillReturnRows(rows)

	items, err := NewFormRepository(db).ListPending(context.Background(), PendingCondition{
		Kind:     models.FormProvisionalAdmission,
		Topology: models.TopologySet,
		Slot:     string(models.RoleSchoolOfficer),
	}, []string{"Computer Science"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Computer Science", items[0].Department)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListPendingDualSchoolOfficerWaitsOnRegistrar(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("f.deputy_registrar_approved = TRUE AND f.school_officer_approved = FALSE ORDER BY")).
		WithArgs(string(models.FormNewClearance)).
		WillReturnRows(sqlmock.NewRows([]string{"form_id", "kind", "student_id", "student_name", "application_id", "department", "submitted_at"}))

	items, err := NewFormRepository(db).ListPending(context.Background(), PendingCondition{
		Kind: models.FormNewClearance, Topology: models.TopologyDual, Slot: models.SlotSchoolOfficer,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = NewFormRepository(db).ListPending(context.Background(), PendingCondition{Kind: models.FormNewClearance, Topology: models.TopologyDual, Slot: "finance"}, nil)
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormRepositoryListApprovedBy(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	cols := append(formColumnNames(), "student_name", "application_id", "department")
	row := append(formRow("form-1", "stu-1", models.FormAffidavit, true, false, false, `[]`), "Ada", "APP-1", "Law")
	mock.ExpectQuery(regexp.QuoteMeta("f.approved_by = $1 OR f.approvals @> $2::jsonb")).
		WithArgs("staff-1", `[{"approved":true,"approvedBy":"staff-1"}]`).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(row...))

	rows, err := NewFormRepository(db).ListApprovedBy(context.Background(), "staff-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "APP-1", rows[0].ApplicationID)
	assert.Equal(t, models.FormAffidavit, rows[0].Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}
