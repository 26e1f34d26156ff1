package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/authz"
	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// UserHandler serves member management within an organization.
type UserHandler struct {
	Users *services.UserService
}

func NewUserHandler(users *services.UserService) *UserHandler {
	return &UserHandler{Users: users}
}

// List handles GET /users
func (h *UserHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	users, err := h.Users.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "users": users, "count": len(users)})
}

// Get handles GET /users/:id. Non-admins may only fetch themselves.
func (h *UserHandler) Get(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}
	id := c.Param("id")
	if !authz.CanAccessUserResource(session, id) {
		respondError(c, &authz.InsufficientPermissionsError{Required: authz.PermUsersRead, Role: authz.Role(session.Role)})
		return
	}

	user, err := h.Users.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	// A same-org check still applies even for admins; GetByID is not
	// organization-filtered because it backs the session refresh.
	if session.OrganizationID != user.OrganizationID && session.UserID != user.ID {
		respondError(c, tenant.ErrUserNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// Update handles PUT /users/:id
func (h *UserHandler) Update(c *gin.Context) {
	var req db.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	user, err := h.Users.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "user": user})
}

// Delete handles DELETE /users/:id
func (h *UserHandler) Delete(c *gin.Context) {
	if err := h.Users.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// UpdateOrganization handles PUT /users/:id/organization. This is the
// sanctioned cross-tenant assignment path and is always attributed to
// the calling admin.
func (h *UserHandler) UpdateOrganization(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}

	var req db.UpdateUserOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	err := h.Users.UpdateOrganization(c.Request.Context(), c.Param("id"), req.OrganizationID, session.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
