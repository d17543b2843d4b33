package service

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
)

func newTestAuthService() *AuthService {
	return NewAuthService(validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "clearance-api",
	})
}

func TestIssueAndValidateToken(t *testing.T) {
	svc := newTestAuthService()

	resp, err := svc.IssueToken(models.TokenRequest{
		UserID:             "staff-officer",
		Role:               models.PrincipalStaff,
		Department:         models.DepartmentSchoolOfficer,
		ManagedDepartments: []string{"Computer Science", "Physics"},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3600, resp.ExpiresIn)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	p := claims.Principal()
	assert.Equal(t, "staff-officer", p.ID)
	assert.True(t, p.IsStaff())
	assert.Equal(t, []string{"Computer Science", "Physics"}, p.ManagedDepartments)
	assert.Equal(t, "clearance-api", claims.Issuer)
}

func TestIssueTokenValidatesRequest(t *testing.T) {
	svc := newTestAuthService()

	_, err := svc.IssueToken(models.TokenRequest{UserID: "x", Role: "dean"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errCode(err))
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	svc := newTestAuthService()
	resp, err := svc.IssueToken(models.TokenRequest{UserID: "stu-cs", Role: models.PrincipalStudent})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Hour) }
	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errCode(err))
}

func TestValidateTokenRejectsForeignSignatures(t *testing.T) {
	svc := newTestAuthService()

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{UserID: "admin-1", Role: models.PrincipalAdmin})
	signed, err := forged.SignedString([]byte("other-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errCode(err))

	noUser := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.JWTClaims{Role: models.PrincipalAdmin})
	signed, err = noUser.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errCode(err))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, &models.JWTClaims{UserID: "admin-1", Role: models.PrincipalAdmin})
	signed, err = none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errCode(err))

	_, err = svc.ValidateToken("garbage")
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, errCode(err))
}
