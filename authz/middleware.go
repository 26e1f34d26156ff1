package authz

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/tenant"
)

// RequirePermission is the coarse-grained permission gate applied on
// route groups, ahead of any data access. It translates ErrMissingAuth
// to 401 and InsufficientPermissionsError to 403, both with stable codes
// so clients can branch without parsing messages.
func RequirePermission(permission Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, _ := tenant.SessionFromContext(c.Request.Context())
		if err := Require(session, permission); err != nil {
			code := tenant.CodeOf(err)
			c.JSON(tenant.HTTPStatus(code), gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    code,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAnyPermission passes when the session holds at least one of the
// listed permissions. Used for surfaces shared between roles.
func RequireAnyPermission(permissions ...Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := tenant.SessionFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   tenant.ErrMissingAuth.Error(),
				"code":    tenant.CodeUnauthorized,
			})
			c.Abort()
			return
		}
		if !HasAnyPermission(Role(session.Role), permissions...) {
			err := &InsufficientPermissionsError{Required: permissions[0], Role: Role(session.Role)}
			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    tenant.CodeForbidden,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
