package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// ProjectHandler serves project CRUD inside the caller's organization.
type ProjectHandler struct {
	Projects *services.ProjectService
}

func NewProjectHandler(projects *services.ProjectService) *ProjectHandler {
	return &ProjectHandler{Projects: projects}
}

// Create handles POST /projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var req db.CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	project, err := h.Projects.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "project": project})
}

// Get handles GET /projects/:id
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.Projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project": project})
}

// List handles GET /projects
func (h *ProjectHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	projects, err := h.Projects.List(c.Request.Context(), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "projects": projects})
}

// Update handles PUT /projects/:id
func (h *ProjectHandler) Update(c *gin.Context) {
	var req db.UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	project, err := h.Projects.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "project": project})
}

// Delete handles DELETE /projects/:id
func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.Projects.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "project deleted"})
}

// GetAllForSystem handles GET /system/projects (admin, audited bypass).
func (h *ProjectHandler) GetAllForSystem(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}
	reason := c.Query("reason")
	if reason == "" {
		respondError(c, tenant.NewValidationError("reason query parameter is required for system access"))
		return
	}

	projects, err := h.Projects.GetAllForSystem(c.Request.Context(), session.UserID, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "projects": projects})
}
