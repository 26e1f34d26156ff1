package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

func newDocumentServiceWithMock(t *testing.T) (*DocumentService, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	svc := NewDocumentService(mockDB, NewAuditService(mockDB), nil)
	return svc, mock, func() { mockDB.Close() }
}

func memberCtx(orgID string) context.Context {
	return tenant.WithSession(context.Background(), &tenant.Session{
		UserID:         "user-1",
		Email:          "a@example.com",
		OrganizationID: orgID,
		Role:           "member",
	})
}

func documentRows() *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "organization_id", "project_id", "title", "file_name", "file_path",
		"file_size", "content_type", "content", "summary", "tags", "analysis_status",
		"uploaded_by", "created_at", "updated_at",
	}).AddRow(
		"doc-1", "org-1", nil, "Q3 Report", "q3.pdf", nil,
		int64(1024), "application/pdf", "quarterly numbers", nil, pq.StringArray{"finance"},
		db.AnalysisCompleted, "user-1", now, now,
	)
}

func expectAuditInsert(mock sqlmock.Sqlmock) {
	mock.ExpectExec("INSERT INTO audit_logs").
		WillReturnResult(sqlmock.NewResult(0, 1))
}

func TestDocumentGetByID_ScopedToOrganization(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1 AND organization_id = \\$2").
		WithArgs("doc-1", "org-1").
		WillReturnRows(documentRows())
	expectAuditInsert(mock)

	doc, err := svc.GetByID(memberCtx("org-1"), "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "doc-1" || doc.OrganizationID != "org-1" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentGetByID_CrossTenantLooksLikeNotFound(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	// The row exists under org-1 but the caller is scoped to org-2, so
	// the predicate matches nothing.
	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("doc-1", "org-2").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	expectAuditInsert(mock)

	_, err := svc.GetByID(memberCtx("org-2"), "doc-1")
	if !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("cross-tenant read must surface as not-found, got %v", err)
	}
}

func TestDocumentGetByID_NoSession(t *testing.T) {
	svc, _, done := newDocumentServiceWithMock(t)
	defer done()

	_, err := svc.GetByID(context.Background(), "doc-1")
	if !errors.Is(err, tenant.ErrMissingOrgContext) {
		t.Fatalf("expected ErrMissingOrgContext, got %v", err)
	}
}

func TestDocumentGetByID_NoOrganization(t *testing.T) {
	svc, _, done := newDocumentServiceWithMock(t)
	defer done()

	ctx := tenant.WithSession(context.Background(), &tenant.Session{UserID: "user-1"})
	_, err := svc.GetByID(ctx, "doc-1")
	if !errors.Is(err, tenant.ErrNoOrganization) {
		t.Fatalf("expected ErrNoOrganization, got %v", err)
	}
}

func TestDocumentCreate_ForgedOrganizationIgnored(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO documents").
		WithArgs(sqlmock.AnyArg(), "org-1", nil, "Launch Plan", "", nil, int64(0), nil, "",
			nil, sqlmock.AnyArg(), db.AnalysisPending, "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)

	// The request claims org-2; the persisted row must carry the
	// session's org-1.
	doc, err := svc.Create(memberCtx("org-1"), db.CreateDocumentRequest{
		Title:          "Launch Plan",
		OrganizationID: "org-2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.OrganizationID != "org-1" {
		t.Fatalf("forged organization id leaked into the document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentCreate_RequiresTitle(t *testing.T) {
	svc, _, done := newDocumentServiceWithMock(t)
	defer done()

	_, err := svc.Create(memberCtx("org-1"), db.CreateDocumentRequest{Title: "   "})
	if tenant.CodeOf(err) != tenant.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDocumentUpdate_ZeroRowsIsNotFound(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	title := "Renamed"
	mock.ExpectExec("UPDATE documents SET").
		WillReturnResult(sqlmock.NewResult(0, 0))
	expectAuditInsert(mock)

	_, err := svc.Update(memberCtx("org-1"), "doc-9", db.UpdateDocumentRequest{Title: &title})
	if !errors.Is(err, tenant.ErrNotFound) {
		t.Fatalf("update missing zero rows must be not-found, got %v", err)
	}
}

func TestDocumentDelete_Scoped(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM documents WHERE id = \\$1 AND organization_id = \\$2").
		WithArgs("doc-1", "org-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)

	if err := svc.Delete(memberCtx("org-1"), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentSearch_CarriesOrganizationPredicate(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM documents").
		WithArgs("quarterly", "org-1", 20).
		WillReturnRows(documentRows())
	expectAuditInsert(mock)

	docs, err := svc.Search(memberCtx("org-1"), "quarterly", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentGetAllForSystem_Unfiltered(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	// No WHERE clause and no organization argument: the bypass query
	// reads across all tenants.
	mock.ExpectQuery("SELECT (.+) FROM documents ORDER BY created_at DESC").
		WillReturnRows(documentRows())
	expectAuditInsert(mock)

	docs, err := svc.GetAllForSystem(context.Background(), "admin-1", "compliance export")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected one document, got %d", len(docs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentSetAnalysisStatus_WorkerOverride(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectExec("UPDATE documents SET analysis_status = \\$1(.+) WHERE id = (.+) AND organization_id = ").
		WillReturnResult(sqlmock.NewResult(0, 1))
	expectAuditInsert(mock)

	override := &tenant.Context{OrganizationID: "org-1", UserID: "analysis-worker"}
	err := svc.SetAnalysisStatus(context.Background(), override, "doc-1", db.AnalysisCompleted, []string{"finance"}, "summary")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentSetAnalysisStatus_RejectsBadStatus(t *testing.T) {
	svc, _, done := newDocumentServiceWithMock(t)
	defer done()

	override := &tenant.Context{OrganizationID: "org-1", UserID: "analysis-worker"}
	err := svc.SetAnalysisStatus(context.Background(), override, "doc-1", "done", nil, "")
	if tenant.CodeOf(err) != tenant.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDocumentSearchMentions_ScopedAndAudited(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT id, title FROM documents WHERE title ILIKE \\$1 AND organization_id = \\$2").
		WithArgs("rep%", "org-1", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow("doc-1", "Report"))
	expectAuditInsert(mock)

	mentions, err := svc.SearchMentions(memberCtx("org-1"), "rep", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(mentions) != 1 || mentions[0].Title != "Report" {
		t.Fatalf("unexpected mentions: %+v", mentions)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestDocumentGetForAnalysis_OverrideScopedAndAudited(t *testing.T) {
	svc, mock, done := newDocumentServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT (.+) FROM documents WHERE id = \\$1 AND organization_id = \\$2").
		WithArgs("doc-1", "org-1").
		WillReturnRows(documentRows())
	expectAuditInsert(mock)

	override := &tenant.Context{OrganizationID: "org-1", UserID: "analysis-worker"}
	doc, err := svc.GetForAnalysis(context.Background(), override, "doc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != "doc-1" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
