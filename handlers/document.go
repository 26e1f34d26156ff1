package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// DocumentHandler serves document CRUD, upload/download, full-text
// search and the chat mention lookup.
type DocumentHandler struct {
	Documents *services.DocumentService
	Storage   *services.StorageService
}

func NewDocumentHandler(documents *services.DocumentService, storage *services.StorageService) *DocumentHandler {
	return &DocumentHandler{Documents: documents, Storage: storage}
}

// Create handles POST /documents (metadata-only create).
func (h *DocumentHandler) Create(c *gin.Context) {
	var req db.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	doc, err := h.Documents.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "document": doc})
}

// Upload handles POST /documents/upload (multipart). The file goes to
// storage under the session's organization directory; the organization
// id is taken from the verified session, never from the form.
func (h *DocumentHandler) Upload(c *gin.Context) {
	session, ok := tenant.SessionFromContext(c.Request.Context())
	if !ok {
		respondError(c, tenant.ErrMissingAuth)
		return
	}
	if session.OrganizationID == "" {
		respondError(c, tenant.ErrNoOrganization)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, tenant.NewValidationError("file is required"))
		return
	}

	title := c.PostForm("title")
	if title == "" {
		title = fileHeader.Filename
	}

	f, err := fileHeader.Open()
	if err != nil {
		respondError(c, tenant.NewInternalError("failed to read upload", err))
		return
	}
	defer f.Close()

	storedPath, size, err := h.Storage.Save(session.OrganizationID, fileHeader.Filename, f)
	if err != nil {
		respondError(c, err)
		return
	}

	doc, err := h.Documents.Create(c.Request.Context(), db.CreateDocumentRequest{
		Title:       title,
		ProjectID:   c.PostForm("project_id"),
		FileName:    fileHeader.Filename,
		FilePath:    storedPath,
		FileSize:    size,
		ContentType: fileHeader.Header.Get("Content-Type"),
	})
	if err != nil {
		// The row is the source of truth; clean up the orphan file.
		_ = h.Storage.Delete(session.OrganizationID, storedPath)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "document": doc})
}

// Get handles GET /documents/:id
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.Documents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document": doc})
}

// Download handles GET /documents/:id/download
func (h *DocumentHandler) Download(c *gin.Context) {
	doc, err := h.Documents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if doc.FilePath == "" {
		respondError(c, tenant.ErrNotFound)
		return
	}

	f, err := h.Storage.Open(doc.OrganizationID, doc.FilePath)
	if err != nil {
		respondError(c, err)
		return
	}
	defer f.Close()

	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	c.DataFromReader(http.StatusOK, doc.FileSize, contentType, f, nil)
}

// List handles GET /documents
func (h *DocumentHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	docs, err := h.Documents.List(c.Request.Context(), c.Query("project_id"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documents": docs})
}

// Update handles PUT /documents/:id
func (h *DocumentHandler) Update(c *gin.Context) {
	var req db.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, tenant.NewValidationError("invalid request: %v", err))
		return
	}

	doc, err := h.Documents.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "document": doc})
}

// Delete handles DELETE /documents/:id
func (h *DocumentHandler) Delete(c *gin.Context) {
	id := c.Param("id")

	doc, err := h.Documents.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.Documents.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if doc.FilePath != "" {
		_ = h.Storage.Delete(doc.OrganizationID, doc.FilePath)
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "document deleted"})
}

// Search handles GET /search?q=
func (h *DocumentHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	docs, err := h.Documents.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documents": docs})
}

// Mentions handles GET /chat/mentions?q= for the chat @-mention picker.
func (h *DocumentHandler) Mentions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	mentions, err := h.Documents.SearchMentions(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "mentions": mentions})
}

// GetAllForSystem handles GET /system/documents, the admin-only
// cross-tenant listing. The bypass reason is required so the audit
// trail records why the filter was lifted.
func (h *DocumentHandler) GetAllForSystem(c *gin.Context) {
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

	docs, err := h.Documents.GetAllForSystem(c.Request.Context(), session.UserID, reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "documents": docs})
}
