package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// AuditHandler serves the audit trail. The organization filter is
// always taken from the caller's session, never from the request, so an
// org admin can only ever read their own organization's entries. The
// /system variants run against all organizations and require a reason.
type AuditHandler struct {
	Audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{Audit: audit}
}

// Logs handles GET /audit/logs
func (h *AuditHandler) Logs(c *gin.Context) {
	filter, err := h.bindFilter(c, false)
	if err != nil {
		respondError(c, err)
		return
	}

	entries, err := h.Audit.Query(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries, "count": len(entries)})
}

// Stats handles GET /audit/stats
func (h *AuditHandler) Stats(c *gin.Context) {
	filter, err := h.bindFilter(c, false)
	if err != nil {
		respondError(c, err)
		return
	}

	stats, err := h.Audit.Stats(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// Export handles GET /audit/export, streaming CSV.
func (h *AuditHandler) Export(c *gin.Context) {
	filter, err := h.bindFilter(c, false)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition",
		fmt.Sprintf(`attachment; filename="audit-export-%s.csv"`, time.Now().UTC().Format("2006-01-02")))

	if err := h.Audit.ExportCSV(c.Request.Context(), c.Writer, filter); err != nil {
		// Headers may already be out; the broken stream is the signal.
		_ = c.Error(err)
	}
}

// SystemLogs handles GET /system/audit/logs: the cross-organization
// view of the trail, with the mandatory reason.
func (h *AuditHandler) SystemLogs(c *gin.Context) {
	filter, err := h.bindFilter(c, true)
	if err != nil {
		respondError(c, err)
		return
	}
	session, _ := tenant.SessionFromContext(c.Request.Context())

	entries, err := h.Audit.Query(c.Request.Context(), filter)

	// The unfiltered read is itself a bypass and lands in the trail.
	override := tenant.SystemContext(session.UserID, c.Query("reason"))
	h.Audit.RecordAccess(c.Request.Context(), tenant.BypassAllOrganizations, session.UserID,
		db.AuditActionRead, "audit_logs", "systemLogs", len(entries), err, override)

	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "entries": entries, "count": len(entries)})
}

func (h *AuditHandler) bindFilter(c *gin.Context, system bool) (db.AuditLogFilter, error) {
	var filter db.AuditLogFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		return filter, tenant.NewValidationError("invalid filter: %v", err)
	}

	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		return filter, tenant.ErrMissingAuth
	}

	if system {
		if c.Query("reason") == "" {
			return filter, tenant.NewValidationError("reason query parameter is required for system access")
		}
		filter.OrganizationID = tenant.BypassAllOrganizations
		return filter, nil
	}

	if session.OrganizationID == "" {
		return filter, tenant.ErrNoOrganization
	}
	filter.OrganizationID = session.OrganizationID
	return filter, nil
}
