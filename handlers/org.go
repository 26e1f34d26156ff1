package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// OrgHandler serves organization setup and the current-organization
// view.
type OrgHandler struct {
	Orgs *services.OrganizationService
}

func NewOrgHandler(orgs *services.OrganizationService) *OrgHandler {
	return &OrgHandler{Orgs: orgs}
}

// Setup handles POST /orgs/setup. Available to any authenticated user
// without an organization; this is the onboarding exit.
func (h *OrgHandler) Setup(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}

	var req db.SetupOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	org, err := h.Orgs.Setup(c.Request.Context(), session.UserID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "organization": org})
}

// Current handles GET /orgs/current
func (h *OrgHandler) Current(c *gin.Context) {
	org, err := h.Orgs.GetCurrent(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "organization": org})
}

// GetAllForSystem handles GET /system/orgs (admin, audited bypass).
func (h *OrgHandler) GetAllForSystem(c *gin.Context) {
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

	orgs, err := h.Orgs.GetAllForSystem(c.Request.Context(), session.UserID, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "organizations": orgs})
}
