package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/clearance-api/internal/models"
)

func TestResolveRole(t *testing.T) {
	cases := []struct {
		name       string
		department string
		managed    []string
		role       models.Role
		scope      []string
	}{
		{name: "registrar", department: "Registrar", role: models.RoleDeputyRegistrar},
		{name: "student support", department: "Student Support", role: models.RoleStudentSupport},
		{name: "finance", department: "Finance", role: models.RoleFinance},
		{name: "library", department: "Library", role: models.RoleLibrary},
		{name: "health", department: "Health Services", role: models.RoleHealth},
		{name: "legal", department: "Legal", role: models.RoleLegal},
		{name: "fixed wins over managed", department: "Finance", managed: []string{"Physics"}, role: models.RoleFinance},
		{name: "hod", department: "Computer Science HOD", role: models.RoleDepartmentHead, scope: []string{"Computer Science"}},
		{name: "bare hod suffix", department: " HOD"},
		{name: "school officer", department: "Faculty of Science", managed: []string{"Physics", " ", "Chemistry"}, role: models.RoleSchoolOfficer, scope: []string{"Physics", "Chemistry"}},
		{name: "unresolved", department: "Works Department"},
		{name: "blank managed", department: "Works Department", managed: []string{""}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ResolveRole(tc.department, tc.managed)
			assert.Equal(t, tc.role, res.Role)
			assert.Equal(t, tc.scope, res.Departments)
		})
	}
}

func TestRoleResolutionCovers(t *testing.T) {
	global := ResolveRole("Registrar", nil)
	assert.True(t, global.Global())
	assert.True(t, global.Covers("Anything"))

	scoped := ResolveRole("Faculty", []string{"Physics"})
	assert.False(t, scoped.Global())
	assert.True(t, scoped.Covers("Physics"))
	assert.False(t, scoped.Covers("Chemistry"))

	none := ResolveRole("", nil)
	assert.False(t, none.Resolved())
	assert.False(t, none.Covers("Physics"))
}

func TestResolvePrincipalIgnoresStudents(t *testing.T) {
	res := ResolvePrincipal(models.Principal{ID: "s-1", Role: models.PrincipalStudent, Department: "Registrar"})
	assert.False(t, res.Resolved())
}

func TestDepartmentForRole(t *testing.T) {
	dept, ok := DepartmentForRole(models.RoleDeputyRegistrar, "Physics")
	require.True(t, ok)
	assert.Equal(t, "Registrar", dept)

	dept, ok = DepartmentForRole(models.RoleDepartmentHead, "Physics")
	require.True(t, ok)
	assert.Equal(t, "Physics HOD", dept)

	_, ok = DepartmentForRole(models.RoleSchoolOfficer, "Physics")
	assert.False(t, ok)

	_, ok = DepartmentForRole(models.RoleDepartmentHead, "")
	assert.False(t, ok)

	assert.Equal(t, []string{"Finance", "Health Services", "Legal", "Library", "Registrar", "Student Support"}, FixedDepartments())
}

type studentDirectoryStub struct {
	ids         []string
	err         error
	departments []string
}

func (s *studentDirectoryStub) ListIDsByDepartments(ctx context.Context, departments []string) ([]string, error) {
	s.departments = departments
	return s.ids, s.err
}

func TestStudentsUnderAuthority(t *testing.T) {
	dir := &studentDirectoryStub{ids: []string{"s-1", "s-2"}}
	resolver := NewRoleResolver(dir)
	ctx := context.Background()

	scope, err := resolver.StudentsUnderAuthority(ctx, models.Principal{ID: "a", Role: models.PrincipalStaff, Department: "Library"})
	require.NoError(t, err)
	assert.True(t, scope.All)
	assert.Nil(t, dir.departments)

	scope, err = resolver.StudentsUnderAuthority(ctx, models.Principal{ID: "b", Role: models.PrincipalStaff, Department: "Physics HOD"})
	require.NoError(t, err)
	assert.False(t, scope.All)
	assert.Equal(t, []string{"Physics"}, dir.departments)
	assert.True(t, scope.Contains("s-2"))
	assert.False(t, scope.Contains("s-9"))

	scope, err = resolver.StudentsUnderAuthority(ctx, models.Principal{ID: "c", Role: models.PrincipalStaff, Department: "Works"})
	require.NoError(t, err)
	assert.Empty(t, scope.StudentIDs)
	assert.False(t, scope.All)

	dir.err = errors.New("db down")
	_, err = resolver.StudentsUnderAuthority(ctx, models.Principal{ID: "d", Role: models.PrincipalStaff, Department: "Faculty", ManagedDepartments: []string{"Physics"}})
	require.Error(t, err)
}
