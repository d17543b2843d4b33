package dto

import "github.com/noah-isme/clearance-api/internal/models"

// DashboardStats is the staff landing page summary.
type DashboardStats struct {
	StaffID            string                  `json:"staffId"`
	Role               models.Role             `json:"role"`
	Global             bool                    `json:"global"`
	Departments        []string                `json:"departments,omitempty"`
	PendingTotal       int                     `json:"pendingTotal"`
	PendingByKind      map[models.FormKind]int `json:"pendingByKind"`
	ApprovedTotal      int                     `json:"approvedTotal"`
	ApprovedByKind     map[models.FormKind]int `json:"approvedByKind"`
	StudentsInScope    int                     `json:"studentsInScope"`
	FullyApprovedForms int                     `json:"fullyApprovedForms"`
}
