package models

// Role is the canonical approval role a staff member acts under. The zero
// value means the department did not resolve to any role.
type Role string

const (
	RoleUnresolved      Role = ""
	RoleDeputyRegistrar Role = "deputyRegistrar"
	RoleSchoolOfficer   Role = "schoolOfficer"
	RoleDepartmentHead  Role = "departmentHead"
	RoleStudentSupport  Role = "studentSupport"
	RoleFinance         Role = "finance"
	RoleLibrary         Role = "library"
	RoleHealth          Role = "health"
	RoleLegal           Role = "legal"
)

// Department names with a fixed meaning to the approval workflow.
const (
	DepartmentRegistrar      = "Registrar"
	DepartmentStudentSupport = "Student Support"
	DepartmentFinance        = "Finance"
	DepartmentLibrary        = "Library"
	DepartmentHealth         = "Health Services"
	DepartmentLegal          = "Legal"
	DepartmentSchoolOfficer  = "School Officer"

	// HODSuffix marks a head-of-department account, e.g. "Computer Science HOD".
	HODSuffix = " HOD"
)
