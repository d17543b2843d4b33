package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/clearance-api/internal/models"
	appErrors "github.com/noah-isme/clearance-api/pkg/errors"
	"github.com/noah-isme/clearance-api/pkg/response"
)

// Self lets a student through when the :studentId path parameter is their own id.
const Self = "SELF"

// RBAC enforces coarse account-type access for routes. Fine grained approval
// authority is decided by the services.
func RBAC(allowed ...string) gin.HandlerFunc {
	allowSelf := false
	allowedRoles := make(map[models.PrincipalRole]struct{})
	for _, a := range allowed {
		if a == Self {
			allowSelf = true
			continue
		}
		allowedRoles[models.PrincipalRole(a)] = struct{}{}
	}

	return func(c *gin.Context) {
		p, ok := Principal(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthenticated)
			c.Abort()
			return
		}

		if _, ok := allowedRoles[p.Role]; ok {
			c.Next()
			return
		}

		if allowSelf {
			if target := c.Param("studentId"); target != "" && target == p.ID {
				c.Next()
				return
			}
		}

		response.Error(c, appErrors.ErrUnauthorized)
		c.Abort()
	}
}

// RequireRoles is a helper that accepts a list of account types.
func RequireRoles(roles ...models.PrincipalRole) gin.HandlerFunc {
	allowed := make([]string, len(roles))
	for i, r := range roles {
		allowed[i] = string(r)
	}
	return RBAC(allowed...)
}
