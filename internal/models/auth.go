package models

import "github.com/golang-jwt/jwt/v5"

// PrincipalRole is the coarse account type carried by access tokens.
type PrincipalRole string

const (
	PrincipalStudent PrincipalRole = "student"
	PrincipalStaff   PrincipalRole = "staff"
	PrincipalAdmin   PrincipalRole = "admin"
)

// Principal is the authenticated actor an operation runs on behalf of.
type Principal struct {
	ID                 string        `json:"id"`
	Role               PrincipalRole `json:"role"`
	Department         string        `json:"department,omitempty"`
	ManagedDepartments []string      `json:"managedDepartments,omitempty"`
	ApplicationID      string        `json:"applicationId,omitempty"`
}

func (p Principal) IsStaff() bool { return p.Role == PrincipalStaff || p.Role == PrincipalAdmin }

func (p Principal) IsAdmin() bool { return p.Role == PrincipalAdmin }

// JWTClaims is the access token payload.
type JWTClaims struct {
	UserID             string        `json:"user_id"`
	Role               PrincipalRole `json:"role"`
	Department         string        `json:"department,omitempty"`
	ManagedDepartments []string      `json:"managed_departments,omitempty"`
	ApplicationID      string        `json:"application_id,omitempty"`
	jwt.RegisteredClaims
}

// Principal converts the claims into the engine's actor.
func (c *JWTClaims) Principal() Principal {
	return Principal{
		ID:                 c.UserID,
		Role:               c.Role,
		Department:         c.Department,
		ManagedDepartments: c.ManagedDepartments,
		ApplicationID:      c.ApplicationID,
	}
}

// TokenRequest describes a token to mint for development and service callers.
type TokenRequest struct {
	UserID             string        `json:"userId" validate:"required"`
	Role               PrincipalRole `json:"role" validate:"required,oneof=student staff admin"`
	Department         string        `json:"department"`
	ManagedDepartments []string      `json:"managedDepartments"`
	ApplicationID      string        `json:"applicationId"`
}

// TokenResponse carries a freshly issued access token.
type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int64  `json:"expiresIn"`
}
