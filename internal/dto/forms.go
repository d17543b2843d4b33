package dto

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/noah-isme/clearance-api/internal/models"
)

// NewClearanceSubmission is the payload of the new clearance form.
type NewClearanceSubmission struct {
	FullName      string `json:"fullName" validate:"required,max=160"`
	JAMBRegNumber string `json:"jambRegNumber" validate:"required,alphanum,max=20"`
	Programme     string `json:"programme" validate:"required,max=160"`
	Session       string `json:"session" validate:"required,max=16"`
	PhoneNumber   string `json:"phoneNumber" validate:"required,e164"`
}

// ProvisionalAdmissionSubmission is the payload of the provisional admission form.
type ProvisionalAdmissionSubmission struct {
	Programme   string `json:"programme" validate:"required,max=160"`
	ModeOfEntry string `json:"modeOfEntry" validate:"required,oneof=UTME DE TRANSFER"`
	Session     string `json:"session" validate:"required,max=16"`
	Faculty     string `json:"faculty" validate:"omitempty,max=160"`
}

// NextOfKin is nested in the personal record form.
type NextOfKin struct {
	Name         string `json:"name" validate:"required,max=160"`
	Relationship string `json:"relationship" validate:"required,max=64"`
	PhoneNumber  string `json:"phoneNumber" validate:"required,e164"`
}

// PersonalRecordSubmission is the payload of the first personal record form.
type PersonalRecordSubmission struct {
	DateOfBirth   string    `json:"dateOfBirth" validate:"required,datetime=2006-01-02"`
	Gender        string    `json:"gender" validate:"required,oneof=male female"`
	StateOfOrigin string    `json:"stateOfOrigin" validate:"required,max=64"`
	LGA           string    `json:"lga" validate:"required,max=64"`
	HomeAddress   string    `json:"homeAddress" validate:"required,max=255"`
	NextOfKin     NextOfKin `json:"nextOfKin" validate:"required"`
}

// PersonalRecord2Submission is the payload of the second personal record form.
type PersonalRecord2Submission struct {
	MaritalStatus    string `json:"maritalStatus" validate:"required,oneof=single married divorced widowed"`
	Religion         string `json:"religion" validate:"omitempty,max=64"`
	PermanentAddress string `json:"permanentAddress" validate:"required,max=255"`
	GuardianName     string `json:"guardianName" validate:"required,max=160"`
	GuardianPhone    string `json:"guardianPhone" validate:"required,e164"`
	Sponsor          string `json:"sponsor" validate:"omitempty,max=160"`
}

// AffidavitSubmission is the payload of the affidavit of good conduct.
type AffidavitSubmission struct {
	DeclarantName string `json:"declarantName" validate:"required,max=160"`
	Declaration   string `json:"declaration" validate:"required,min=20,max=4000"`
	SwornAt       string `json:"swornAt" validate:"required,max=160"`
	SwornOn       string `json:"swornOn" validate:"required,datetime=2006-01-02"`
}

// NewSubmission returns an empty payload struct for kind.
func NewSubmission(kind models.FormKind) (interface{}, error) {
	switch kind {
	case models.FormNewClearance:
		return &NewClearanceSubmission{}, nil
	case models.FormProvisionalAdmission:
		return &ProvisionalAdmissionSubmission{}, nil
	case models.FormPersonalRecord:
		return &PersonalRecordSubmission{}, nil
	case models.FormPersonalRecord2:
		return &PersonalRecord2Submission{}, nil
	case models.FormAffidavit:
		return &AffidavitSubmission{}, nil
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnknownFormKind, kind)
}

// DecodeSubmission strictly decodes raw into the payload struct of kind.
// Fields the form does not define are rejected.
func DecodeSubmission(kind models.FormKind, raw []byte) (interface{}, error) {
	payload, err := NewSubmission(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		raw = []byte("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", kind, err)
	}
	return payload, nil
}
