package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/docvaulthq/docvault/tenant"
)

func newOrgServiceWithMock(t *testing.T) (*OrganizationService, sqlmock.Sqlmock, func()) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	svc := NewOrganizationService(mockDB, NewAuditService(mockDB), nil)
	return svc, mock, func() { mockDB.Close() }
}

func TestOrganizationSetup_PromotesCreatorToAdmin(t *testing.T) {
	svc, mock, done := newOrgServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT organization_id FROM users WHERE id = \\$1").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").
		WithArgs(sqlmock.AnyArg(), "Acme Corp", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE users SET organization_id = \\$2, role = \\$3").
		WithArgs("user-1", sqlmock.AnyArg(), "admin", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectAuditInsert(mock)

	org, err := svc.Setup(context.Background(), "user-1", "  Acme Corp ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.Name != "Acme Corp" || org.OwnerID != "user-1" {
		t.Fatalf("unexpected organization: %+v", org)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrganizationSetup_AlreadyInOrganization(t *testing.T) {
	svc, mock, done := newOrgServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT organization_id FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow("org-1"))

	_, err := svc.Setup(context.Background(), "user-1", "Second Org")
	if tenant.CodeOf(err) != tenant.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestOrganizationSetup_DuplicateNameRollsBack(t *testing.T) {
	svc, mock, done := newOrgServiceWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT organization_id FROM users").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"organization_id"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO organizations").
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := svc.Setup(context.Background(), "user-1", "Taken Name")
	if tenant.CodeOf(err) != tenant.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrganizationSetup_RequiresName(t *testing.T) {
	svc, _, done := newOrgServiceWithMock(t)
	defer done()

	_, err := svc.Setup(context.Background(), "user-1", "   ")
	if tenant.CodeOf(err) != tenant.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrganizationGetCurrent(t *testing.T) {
	svc, mock, done := newOrgServiceWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, owner_id, created_at, updated_at").
		WithArgs("org-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at", "updated_at"}).
			AddRow("org-1", "Acme Corp", "user-1", now, now))
	expectAuditInsert(mock)

	org, err := svc.GetCurrent(memberCtx("org-1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if org.ID != "org-1" || org.Name != "Acme Corp" {
		t.Fatalf("unexpected organization: %+v", org)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestOrganizationGetCurrent_NoOrganization(t *testing.T) {
	svc, _, done := newOrgServiceWithMock(t)
	defer done()

	ctx := tenant.WithSession(context.Background(), &tenant.Session{UserID: "user-1"})
	_, err := svc.GetCurrent(ctx)
	if !errors.Is(err, tenant.ErrNoOrganization) {
		t.Fatalf("expected ErrNoOrganization, got %v", err)
	}
}

func TestOrganizationGetAllForSystem_AuditsBypass(t *testing.T) {
	svc, mock, done := newOrgServiceWithMock(t)
	defer done()

	now := time.Now().UTC()
	mock.ExpectQuery("SELECT id, name, owner_id, created_at, updated_at").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "owner_id", "created_at", "updated_at"}).
			AddRow("org-1", "Acme", "u1", now, now).
			AddRow("org-2", "Globex", "u2", now, now))
	mock.ExpectExec("INSERT INTO audit_logs").
		WithArgs(sqlmock.AnyArg(), "admin-1", nil, sqlmock.AnyArg(), "organizations", 2,
			"getAllForSystem", true, "support ticket 4711", "admin-1", true, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	orgs, err := svc.GetAllForSystem(context.Background(), "admin-1", "support ticket 4711")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orgs) != 2 {
		t.Fatalf("expected two organizations, got %d", len(orgs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
