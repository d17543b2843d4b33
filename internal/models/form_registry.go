package models

import "strings"

// FormKind identifies one of the five clearance forms.
type FormKind string

const (
	FormNewClearance         FormKind = "new_clearance"
	FormProvisionalAdmission FormKind = "provisional_admission"
	FormPersonalRecord       FormKind = "personal_record"
	FormPersonalRecord2      FormKind = "personal_record2"
	FormAffidavit            FormKind = "affidavit"
)

// Topology describes how a form collects approvals.
type Topology string

const (
	// TopologyDual has the two fixed deputyRegistrar and schoolOfficer slots.
	TopologyDual Topology = "dual"
	// TopologySet has one slot per seeded role.
	TopologySet Topology = "set"
	// TopologySingle has one approved flag owned by a single role.
	TopologySingle Topology = "single"
)

// Slot keys accepted by Form.Approve besides role names.
const (
	SlotDeputyRegistrar = "deputyRegistrar"
	SlotSchoolOfficer   = "schoolOfficer"
	SlotApproved        = "approved"
)

// FormDescriptor is the static definition of a form kind.
type FormDescriptor struct {
	Kind     FormKind
	Title    string
	Topology Topology
	// Gated kinds need a fully approved new clearance form before submission.
	Gated bool
	// Slots lists the roles that approve the form, in seeding order.
	Slots []Role
	// SubmitRecipient is the department told about a new submission. Empty
	// means the student's own department.
	SubmitRecipient string
}

// Owner is the role holding the only slot of a single-approval form.
func (d FormDescriptor) Owner() Role {
	if d.Topology != TopologySingle || len(d.Slots) == 0 {
		return RoleUnresolved
	}
	return d.Slots[0]
}

// HasSlotFor reports whether role approves some slot on this form.
func (d FormDescriptor) HasSlotFor(role Role) bool {
	for _, r := range d.Slots {
		if r == role {
			return true
		}
	}
	return false
}

// ProvisionalAdmissionRoles is the approval set seeded on provisional admission forms.
var ProvisionalAdmissionRoles = []Role{
	RoleSchoolOfficer,
	RoleDeputyRegistrar,
	RoleDepartmentHead,
	RoleStudentSupport,
	RoleFinance,
	RoleLibrary,
	RoleHealth,
}

var formRegistry = []FormDescriptor{
	{
		Kind:            FormNewClearance,
		Title:           "New Clearance Form",
		Topology:        TopologyDual,
		Slots:           []Role{RoleDeputyRegistrar, RoleSchoolOfficer},
		SubmitRecipient: DepartmentRegistrar,
	},
	{
		Kind:     FormProvisionalAdmission,
		Title:    "Provisional Admission Form",
		Topology: TopologySet,
		Gated:    true,
		Slots:    ProvisionalAdmissionRoles,
	},
	{
		Kind:            FormPersonalRecord,
		Title:           "Personal Record Form",
		Topology:        TopologySingle,
		Gated:           true,
		Slots:           []Role{RoleStudentSupport},
		SubmitRecipient: DepartmentStudentSupport,
	},
	{
		Kind:            FormPersonalRecord2,
		Title:           "Personal Record Form II",
		Topology:        TopologySingle,
		Gated:           true,
		Slots:           []Role{RoleDeputyRegistrar},
		SubmitRecipient: DepartmentRegistrar,
	},
	{
		Kind:            FormAffidavit,
		Title:           "Affidavit",
		Topology:        TopologySingle,
		Gated:           true,
		Slots:           []Role{RoleLegal},
		SubmitRecipient: DepartmentLegal,
	},
}

// LookupForm returns the descriptor registered for kind.
func LookupForm(kind FormKind) (FormDescriptor, bool) {
	for _, d := range formRegistry {
		if d.Kind == kind {
			return d, true
		}
	}
	return FormDescriptor{}, false
}

// FormDescriptors returns every registered form in clearance order.
func FormDescriptors() []FormDescriptor {
	out := make([]FormDescriptor, len(formRegistry))
	copy(out, formRegistry)
	return out
}

// FormKinds returns every registered kind in clearance order.
func FormKinds() []FormKind {
	kinds := make([]FormKind, len(formRegistry))
	for i, d := range formRegistry {
		kinds[i] = d.Kind
	}
	return kinds
}

// ParseFormKind accepts snake, kebab or camel case spellings of a kind.
func ParseFormKind(raw string) (FormKind, bool) {
	key := strings.ToLower(strings.NewReplacer("-", "", "_", "", " ", "").Replace(strings.TrimSpace(raw)))
	for _, d := range formRegistry {
		if strings.ReplaceAll(string(d.Kind), "_", "") == key {
			return d.Kind, true
		}
	}
	return "", false
}
