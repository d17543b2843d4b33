package service

import (
	"context"
	"sort"
	"strings"

	"github.com/noah-isme/clearance-api/internal/models"
)

var fixedDepartmentRoles = map[string]models.Role{
	models.DepartmentRegistrar:      models.RoleDeputyRegistrar,
	models.DepartmentStudentSupport: models.RoleStudentSupport,
	models.DepartmentFinance:        models.RoleFinance,
	models.DepartmentLibrary:        models.RoleLibrary,
	models.DepartmentHealth:         models.RoleHealth,
	models.DepartmentLegal:          models.RoleLegal,
}

// RoleResolution is the approval role a staff member acts under and the
// student departments it covers. Departments is nil for campus-wide roles.
type RoleResolution struct {
	Role        models.Role `json:"role"`
	Departments []string    `json:"departments,omitempty"`
}

// Resolved reports whether the department mapped to any role.
func (r RoleResolution) Resolved() bool { return r.Role != models.RoleUnresolved }

// Global reports whether the role covers every student.
func (r RoleResolution) Global() bool { return r.Resolved() && r.Departments == nil }

// Covers reports whether a student of department falls under the role.
func (r RoleResolution) Covers(department string) bool {
	if !r.Resolved() {
		return false
	}
	if r.Departments == nil {
		return true
	}
	for _, d := range r.Departments {
		if d == department {
			return true
		}
	}
	return false
}

// ResolveRole maps a staff department, and the departments the staff member
// manages, to an approval role. Fixed departments win, then the HOD suffix,
// then a non-empty managed list.
func ResolveRole(department string, managed []string) RoleResolution {
	dept := strings.TrimSpace(department)
	if role, ok := fixedDepartmentRoles[dept]; ok {
		return RoleResolution{Role: role}
	}
	if strings.HasSuffix(dept, models.HODSuffix) {
		if scope := strings.TrimSpace(strings.TrimSuffix(dept, models.HODSuffix)); scope != "" {
			return RoleResolution{Role: models.RoleDepartmentHead, Departments: []string{scope}}
		}
	}
	scope := make([]string, 0, len(managed))
	for _, m := range managed {
		if m = strings.TrimSpace(m); m != "" {
			scope = append(scope, m)
		}
	}
	if len(scope) > 0 {
		return RoleResolution{Role: models.RoleSchoolOfficer, Departments: scope}
	}
	return RoleResolution{}
}

// ResolvePrincipal resolves the role of an authenticated staff member.
// Students never resolve.
func ResolvePrincipal(p models.Principal) RoleResolution {
	if !p.IsStaff() {
		return RoleResolution{}
	}
	return ResolveRole(p.Department, p.ManagedDepartments)
}

// DepartmentForRole is the staff department that holds role for a student of
// studentDepartment. School officers are looked up by managed department
// instead and report false here.
func DepartmentForRole(role models.Role, studentDepartment string) (string, bool) {
	if role == models.RoleDepartmentHead {
		if studentDepartment == "" {
			return "", false
		}
		return studentDepartment + models.HODSuffix, true
	}
	for dept, r := range fixedDepartmentRoles {
		if r == role {
			return dept, true
		}
	}
	return "", false
}

// FixedDepartments lists the departments with a campus-wide role, sorted.
func FixedDepartments() []string {
	out := make([]string, 0, len(fixedDepartmentRoles))
	for dept := range fixedDepartmentRoles {
		out = append(out, dept)
	}
	sort.Strings(out)
	return out
}

type studentDirectory interface {
	ListIDsByDepartments(ctx context.Context, departments []string) ([]string, error)
}

// StudentScope is the set of students under a reviewer's authority.
type StudentScope struct {
	All        bool
	StudentIDs []string
}

// Contains reports whether the scope includes studentID.
func (s StudentScope) Contains(studentID string) bool {
	if s.All {
		return true
	}
	for _, id := range s.StudentIDs {
		if id == studentID {
			return true
		}
	}
	return false
}

// RoleResolver answers authority questions that need the student directory.
type RoleResolver struct {
	students studentDirectory
}

// NewRoleResolver constructs a resolver.
func NewRoleResolver(students studentDirectory) *RoleResolver {
	return &RoleResolver{students: students}
}

// StudentsUnderAuthority lists the students p may act on. Unresolved staff get
// an empty scope.
func (r *RoleResolver) StudentsUnderAuthority(ctx context.Context, p models.Principal) (StudentScope, error) {
	if p.IsAdmin() {
		return StudentScope{All: true}, nil
	}
	res := ResolvePrincipal(p)
	if !res.Resolved() {
		return StudentScope{StudentIDs: []string{}}, nil
	}
	if res.Global() {
		return StudentScope{All: true}, nil
	}
	ids, err := r.students.ListIDsByDepartments(ctx, res.Departments)
	if err != nil {
		return StudentScope{}, err
	}
	return StudentScope{StudentIDs: ids}, nil
}
