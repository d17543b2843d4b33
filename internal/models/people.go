package models

import (
	"time"

	"github.com/lib/pq"
)

// Student owns one instance of each form kind and a set of document records.
type Student struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"applicationId"`
	FullName      string    `db:"full_name" json:"fullName"`
	Email         string    `db:"email" json:"email"`
	Department    string    `db:"department" json:"department"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Staff is a reviewer. Department acts as the primary role; managed
// departments widen a School Officer's scope.
type Staff struct {
	ID                 string         `db:"id" json:"id"`
	FullName           string         `db:"full_name" json:"fullName"`
	Email              string         `db:"email" json:"email"`
	Department         string         `db:"department" json:"department"`
	ManagedDepartments pq.StringArray `db:"managed_departments" json:"managedDepartments"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
}
