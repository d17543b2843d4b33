package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx/types"
)

var (
	// ErrUnknownSlot is returned when a slot key does not exist on the form's topology.
	ErrUnknownSlot = errors.New("unknown approval slot")
	// ErrUnknownFormKind is returned for kinds missing from the registry.
	ErrUnknownFormKind = errors.New("unknown form kind")
)

// ApprovalSlot is one role's sign-off on an approval-set form.
type ApprovalSlot struct {
	Role       Role       `json:"role"`
	Approved   bool       `json:"approved"`
	ApprovedBy *string    `json:"approvedBy,omitempty"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	Comment    string     `json:"comment,omitempty"`
}

// ApprovalSet is stored as a JSONB array.
type ApprovalSet []ApprovalSlot

// Value implements driver.Valuer.
func (s ApprovalSet) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *ApprovalSet) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("scan approval set: unsupported type %T", src)
	}
	var out ApprovalSet
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("scan approval set: %w", err)
	}
	if len(out) == 0 {
		out = nil
	}
	*s = out
	return nil
}

func (s ApprovalSet) index(role Role) int {
	for i, slot := range s {
		if slot.Role == role {
			return i
		}
	}
	return -1
}

// Form is one student's instance of a form kind. All kinds share the table;
// which approval columns matter depends on the kind's topology.
type Form struct {
	ID          string         `db:"id" json:"id"`
	StudentID   string         `db:"student_id" json:"studentId"`
	Kind        FormKind       `db:"kind" json:"kind"`
	Details     types.JSONText `db:"details" json:"details"`
	Submitted   bool           `db:"submitted" json:"submitted"`
	SubmittedAt *time.Time     `db:"submitted_at" json:"submittedAt,omitempty"`

	DeputyRegistrarApproved   bool       `db:"deputy_registrar_approved" json:"deputyRegistrarApproved"`
	DeputyRegistrarApprovedBy *string    `db:"deputy_registrar_approved_by" json:"deputyRegistrarApprovedBy,omitempty"`
	DeputyRegistrarApprovedAt *time.Time `db:"deputy_registrar_approved_at" json:"deputyRegistrarApprovedAt,omitempty"`
	DeputyRegistrarComment    *string    `db:"deputy_registrar_comment" json:"deputyRegistrarComment,omitempty"`
	SchoolOfficerApproved     bool       `db:"school_officer_approved" json:"schoolOfficerApproved"`
	SchoolOfficerApprovedBy   *string    `db:"school_officer_approved_by" json:"schoolOfficerApprovedBy,omitempty"`
	SchoolOfficerApprovedAt   *time.Time `db:"school_officer_approved_at" json:"schoolOfficerApprovedAt,omitempty"`
	SchoolOfficerComment      *string    `db:"school_officer_comment" json:"schoolOfficerComment,omitempty"`

	Approvals ApprovalSet `db:"approvals" json:"approvals,omitempty"`

	Approved        bool       `db:"approved" json:"approved"`
	ApprovedBy      *string    `db:"approved_by" json:"approvedBy,omitempty"`
	ApprovedAt      *time.Time `db:"approved_at" json:"approvedAt,omitempty"`
	ApprovalComment *string    `db:"approval_comment" json:"approvalComment,omitempty"`

	OverallApproved   bool       `db:"overall_approved" json:"overallApproved"`
	OverallApprovedAt *time.Time `db:"overall_approved_at" json:"overallApprovedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Descriptor returns the registry entry for the form's kind.
func (f *Form) Descriptor() (FormDescriptor, error) {
	d, ok := LookupForm(f.Kind)
	if !ok {
		return FormDescriptor{}, fmt.Errorf("%w: %s", ErrUnknownFormKind, f.Kind)
	}
	return d, nil
}

// NormalizeSlotKey folds the accepted spellings of a slot key, so
// "deputyRegistrarApproved" and "deputyRegistrar" name the same slot.
func NormalizeSlotKey(key string) string {
	key = strings.TrimSpace(key)
	if key == SlotApproved {
		return key
	}
	return strings.TrimSuffix(key, "Approved")
}

// SlotRole returns the role entitled to approve slot.
func (f *Form) SlotRole(slot string) (Role, error) {
	d, err := f.Descriptor()
	if err != nil {
		return RoleUnresolved, err
	}
	slot = NormalizeSlotKey(slot)
	switch d.Topology {
	case TopologyDual:
		switch slot {
		case SlotDeputyRegistrar:
			return RoleDeputyRegistrar, nil
		case SlotSchoolOfficer:
			return RoleSchoolOfficer, nil
		}
	case TopologySet:
		if f.Approvals.index(Role(slot)) >= 0 {
			return Role(slot), nil
		}
	case TopologySingle:
		if slot == "" || slot == SlotApproved || Role(slot) == d.Owner() {
			return d.Owner(), nil
		}
	}
	return RoleUnresolved, fmt.Errorf("%w: %q on %s", ErrUnknownSlot, slot, f.Kind)
}

// Approve stamps slot as approved by staffID at the given time and recomputes
// the overall flag. Re-approving a slot re-stamps it. signed is true when the
// slot was unsigned before this call; completed is true only when this call
// moved the form to overall approved.
func (f *Form) Approve(slot, staffID, comment string, at time.Time) (signed, completed bool, err error) {
	d, err := f.Descriptor()
	if err != nil {
		return false, false, err
	}
	if _, err := f.SlotRole(slot); err != nil {
		return false, false, err
	}
	slot = NormalizeSlotKey(slot)
	by, stamp := staffID, at
	note := optionalString(comment)

	switch d.Topology {
	case TopologyDual:
		if slot == SlotDeputyRegistrar {
			signed = !f.DeputyRegistrarApproved
			f.DeputyRegistrarApproved = true
			f.DeputyRegistrarApprovedBy, f.DeputyRegistrarApprovedAt, f.DeputyRegistrarComment = &by, &stamp, note
		} else {
			signed = !f.SchoolOfficerApproved
			f.SchoolOfficerApproved = true
			f.SchoolOfficerApprovedBy, f.SchoolOfficerApprovedAt, f.SchoolOfficerComment = &by, &stamp, note
		}
	case TopologySet:
		i := f.Approvals.index(Role(slot))
		signed = !f.Approvals[i].Approved
		f.Approvals[i] = ApprovalSlot{Role: Role(slot), Approved: true, ApprovedBy: &by, ApprovedAt: &stamp, Comment: comment}
	case TopologySingle:
		signed = !f.Approved
		f.Approved = true
		f.ApprovedBy, f.ApprovedAt, f.ApprovalComment = &by, &stamp, note
	}

	was := f.OverallApproved
	f.OverallApproved = f.IsApproved()
	if d.Topology != TopologySingle {
		f.Approved = f.OverallApproved
	}
	if f.OverallApproved && !was {
		f.OverallApprovedAt = &stamp
		return signed, true, nil
	}
	return signed, false, nil
}

// IsApproved evaluates the topology rule: every required slot must be true.
func (f *Form) IsApproved() bool {
	if f == nil {
		return false
	}
	d, ok := LookupForm(f.Kind)
	if !ok {
		return false
	}
	switch d.Topology {
	case TopologyDual:
		return f.DeputyRegistrarApproved && f.SchoolOfficerApproved
	case TopologySet:
		if len(f.Approvals) == 0 {
			return false
		}
		for _, slot := range f.Approvals {
			if !slot.Approved {
				return false
			}
		}
		return true
	default:
		return f.Approved
	}
}

// NextPendingRole is the first role, in slot order, still to approve.
func (f *Form) NextPendingRole() Role {
	d, ok := LookupForm(f.Kind)
	if !ok {
		return RoleUnresolved
	}
	switch d.Topology {
	case TopologyDual:
		if !f.DeputyRegistrarApproved {
			return RoleDeputyRegistrar
		}
		if !f.SchoolOfficerApproved {
			return RoleSchoolOfficer
		}
	case TopologySet:
		for _, slot := range f.Approvals {
			if !slot.Approved {
				return slot.Role
			}
		}
	case TopologySingle:
		if !f.Approved {
			return d.Owner()
		}
	}
	return RoleUnresolved
}

// SlotApproval is a slot on a form signed by a given staff member.
type SlotApproval struct {
	Slot       string     `json:"slot"`
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
}

// SlotsApprovedBy lists the slots staffID has signed on this form.
func (f *Form) SlotsApprovedBy(staffID string) []SlotApproval {
	var out []SlotApproval
	if f.DeputyRegistrarApproved && equalsPtr(f.DeputyRegistrarApprovedBy, staffID) {
		out = append(out, SlotApproval{Slot: SlotDeputyRegistrar, ApprovedAt: f.DeputyRegistrarApprovedAt})
	}
	if f.SchoolOfficerApproved && equalsPtr(f.SchoolOfficerApprovedBy, staffID) {
		out = append(out, SlotApproval{Slot: SlotSchoolOfficer, ApprovedAt: f.SchoolOfficerApprovedAt})
	}
	for _, slot := range f.Approvals {
		if slot.Approved && equalsPtr(slot.ApprovedBy, staffID) {
			out = append(out, SlotApproval{Slot: string(slot.Role), ApprovedAt: slot.ApprovedAt})
		}
	}
	if d, ok := LookupForm(f.Kind); ok && d.Topology == TopologySingle && f.Approved && equalsPtr(f.ApprovedBy, staffID) {
		out = append(out, SlotApproval{Slot: SlotApproved, ApprovedAt: f.ApprovedAt})
	}
	return out
}

// SeedApprovals returns the unapproved slot set for kind, or nil for kinds
// without an approval set.
func SeedApprovals(kind FormKind) ApprovalSet {
	d, ok := LookupForm(kind)
	if !ok || d.Topology != TopologySet {
		return nil
	}
	set := make(ApprovalSet, len(d.Slots))
	for i, role := range d.Slots {
		set[i] = ApprovalSlot{Role: role}
	}
	return set
}

// GateOpen reports whether a new clearance form unlocks the gated kinds.
func (f *Form) GateOpen() bool {
	return f != nil && f.Kind == FormNewClearance && f.DeputyRegistrarApproved && f.SchoolOfficerApproved
}

func optionalString(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func equalsPtr(p *string, v string) bool {
	return p != nil && *p == v
}
