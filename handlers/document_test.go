package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/services"
	"github.com/docvaulthq/docvault/tenant"
)

// sessionInjector stands in for the auth middleware.
func sessionInjector(session *tenant.Session) gin.HandlerFunc {
	return func(c *gin.Context) {
		if session != nil {
			c.Request = c.Request.WithContext(tenant.WithSession(c.Request.Context(), session))
		}
		c.Next()
	}
}

func newDocumentTestServer(t *testing.T, session *tenant.Session) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })

	docs := services.NewDocumentService(mockDB, services.NewAuditService(mockDB), nil)
	handler := NewDocumentHandler(docs, services.NewStorageService(t.TempDir()))

	r := gin.New()
	r.Use(sessionInjector(session))
	r.GET("/documents/:id", handler.Get)
	r.POST("/documents", handler.Create)
	r.GET("/search", handler.Search)
	r.GET("/system/documents", handler.GetAllForSystem)
	return r, mock
}

func mockDocumentRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "project_id", "title", "file_name", "file_path",
		"file_size", "content_type", "content", "summary", "tags", "analysis_status",
		"uploaded_by", "created_at", "updated_at",
	}).AddRow(
		"doc-1", "org-1", nil, "Q3 Report", "q3.pdf", nil,
		int64(10), "application/pdf", "numbers", nil, pq.StringArray{}, db.AnalysisPending,
		"user-1", now, now,
	)
}

func orgSession() *tenant.Session {
	return &tenant.Session{UserID: "user-1", Email: "a@example.com", OrganizationID: "org-1", Role: "member"}
}

func TestDocumentGet_OK(t *testing.T) {
	r, mock := newDocumentTestServer(t, orgSession())

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("doc-1", "org-1").
		WillReturnRows(mockDocumentRows())
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"Q3 Report"`)
}

func TestDocumentGet_CrossTenantIs404(t *testing.T) {
	r, mock := newDocumentTestServer(t, orgSession())

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("doc-other-org", "org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-other-org", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), string(tenant.CodeNotFound))
}

func TestDocumentGet_NoOrganizationIs409(t *testing.T) {
	session := &tenant.Session{UserID: "user-1", Role: "viewer"}
	r, _ := newDocumentTestServer(t, session)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), string(tenant.CodeNoOrganization))
}

func TestDocumentGet_NoSessionIs401(t *testing.T) {
	r, _ := newDocumentTestServer(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/documents/doc-1", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDocumentCreate_InternalErrorMasked(t *testing.T) {
	r, mock := newDocumentTestServer(t, orgSession())

	mock.ExpectExec("INSERT INTO documents").
		WillReturnError(assert.AnError)
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ := json.Marshal(db.CreateDocumentRequest{Title: "Plan"})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/documents", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal error")
	assert.NotContains(t, w.Body.String(), assert.AnError.Error())
}

func TestDocumentSearch_MissingQueryIs400(t *testing.T) {
	r, _ := newDocumentTestServer(t, orgSession())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/search", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), string(tenant.CodeValidation))
}

func TestDocumentGetAllForSystem_RequiresReason(t *testing.T) {
	r, _ := newDocumentTestServer(t, &tenant.Session{UserID: "admin-1", OrganizationID: "org-1", Role: "admin"})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/system/documents", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "reason")
}

func TestDocumentGetAllForSystem_WithReason(t *testing.T) {
	r, mock := newDocumentTestServer(t, &tenant.Session{UserID: "admin-1", OrganizationID: "org-1", Role: "admin"})

	mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY created_at DESC").
		WillReturnRows(mockDocumentRows())
	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/system/documents?reason=compliance+export", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
