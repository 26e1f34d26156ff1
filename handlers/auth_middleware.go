package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// AuthMiddleware resolves the session from the Authorization header and
// attaches it to the request. The session is built fresh per request
// and lives only in the request context, never in process-wide state,
// so one tenant's context cannot leak into a concurrent request.
type AuthMiddleware struct {
	Auth  *services.AuthService
	Users *services.UserService
}

func NewAuthMiddleware(auth *services.AuthService, users *services.UserService) *AuthMiddleware {
	return &AuthMiddleware{Auth: auth, Users: users}
}

// RequireAuth rejects unauthenticated requests with 401. A valid
// session without an organization passes through: that user is
// mid-onboarding and individual handlers decide whether the route needs
// a tenant (the tenant filter returns NO_ORGANIZATION when it does).
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "authorization header is required",
				"code":    tenant.CodeUnauthorized,
			})
			c.Abort()
			return
		}

		token, err := m.Auth.ExtractTokenFromHeader(authHeader)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   err.Error(),
				"code":    tenant.CodeUnauthorized,
			})
			c.Abort()
			return
		}

		session := m.Auth.Resolve(c.Request.Context(), token, m.Users.OrgForUser)
		if session == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid token",
				"code":    tenant.CodeUnauthorized,
			})
			c.Abort()
			return
		}

		// Keep gin keys for handlers and the session in the request
		// context for the tenant filter.
		c.Set("user_id", session.UserID)
		c.Set("org_id", session.OrganizationID)
		c.Set("user_role", session.Role)
		c.Request = c.Request.WithContext(tenant.WithSession(c.Request.Context(), session))

		c.Next()
	}
}
