package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/authz"
	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// AuthHandler serves registration, login and the session introspection
// endpoint.
type AuthHandler struct {
	Auth  *services.AuthService
	Users *services.UserService
}

func NewAuthHandler(auth *services.AuthService, users *services.UserService) *AuthHandler {
	return &AuthHandler{Auth: auth, Users: users}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req db.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	hash, err := h.Auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, tenant.NewInternalError("failed to hash password", err))
		return
	}

	user, err := h.Users.Create(c.Request.Context(), req, hash)
	if err != nil {
		respondError(c, err)
		return
	}

	token, err := h.Auth.MintToken(user.ID, user.Email, user.OrganizationID, user.Role)
	if err != nil {
		respondError(c, tenant.NewInternalError("failed to mint token", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "user": user, "token": token})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req db.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	user, err := h.Users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || user.PasswordHash == "" || !h.Auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "invalid email or password",
			"code":    tenant.CodeUnauthorized,
		})
		return
	}

	token, err := h.Auth.MintToken(user.ID, user.Email, user.OrganizationID, user.Role)
	if err != nil {
		respondError(c, tenant.NewInternalError("failed to mint token", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "user": user, "token": token})
}

// Me handles GET /auth/me. For users without an organization the
// response carries needs_setup so the client can route to organization
// setup instead of retrying protected endpoints.
func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"session":     session,
		"needs_setup": session.OrganizationID == "",
		"permissions": authz.Permissions(authz.Role(session.Role)),
	})
}
