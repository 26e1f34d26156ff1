package services

import (
	"context"
	"database/sql"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docvaulthq/docvault/authz"
	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

// OrganizationService owns tenant lifecycle: setup during onboarding and
// reads of the caller's own organization.
type OrganizationService struct {
	PG    *sql.DB
	Audit *AuditService
	Auth  *AuthService
}

func NewOrganizationService(pg *sql.DB, audit *AuditService, auth *AuthService) *OrganizationService {
	return &OrganizationService{PG: pg, Audit: audit, Auth: auth}
}

// Setup creates an organization for a user who does not have one yet
// and promotes them to admin of that organization, not to any global
// role. Runs in one transaction so a failed
// membership write never leaves an orphan organization.
func (s *OrganizationService) Setup(ctx context.Context, userID, name string) (*db.Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, tenant.NewValidationError("organization name is required")
	}

	var currentOrg sql.NullString
	err := s.PG.QueryRowContext(ctx,
		`SELECT organization_id FROM users WHERE id = $1`, userID).Scan(&currentOrg)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrUserNotFound
		}
		return nil, tenant.NewInternalError("failed to look up user", err)
	}
	if currentOrg.String != "" {
		return nil, &tenant.Error{Code: tenant.CodeConflict, Message: "user already belongs to an organization"}
	}

	now := time.Now().UTC()
	org := &db.Organization{
		ID:        uuid.New().String(),
		Name:      name,
		OwnerID:   userID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, tenant.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organizations (id, name, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`, org.ID, org.Name, org.OwnerID, org.CreatedAt, org.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &tenant.Error{Code: tenant.CodeConflict, Message: "organization name already taken"}
		}
		return nil, tenant.NewInternalError("failed to create organization", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE users SET organization_id = $2, role = $3, updated_at = $4 WHERE id = $1
	`, userID, org.ID, string(authz.RoleAdmin), now)
	if err != nil {
		return nil, tenant.NewInternalError("failed to assign organization", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, tenant.NewInternalError("failed to commit organization setup", err)
	}

	log.Printf("SECURITY: organization created org=%s name=%q owner=%s (owner promoted to admin)",
		org.ID, org.Name, userID)

	_ = s.Audit.Record(ctx, &db.AuditLog{
		UserID:         userID,
		OrganizationID: org.ID,
		Action:         db.AuditActionInsert,
		TableName:      "organizations",
		RecordCount:    1,
		Query:          "setup name=" + org.Name,
		Success:        true,
	})

	if s.Auth != nil {
		s.Auth.InvalidateOrgCache(ctx, userID)
	}
	return org, nil
}

// GetCurrent returns the caller's own organization.
func (s *OrganizationService) GetCurrent(ctx context.Context) (*db.Organization, error) {
	var org *db.Organization
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{}
		conds := []string{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "id", organizationID)
		if len(conds) == 0 {
			// Unreachable outside bypass; organizations are read by id.
			return tenant.NewValidationError("organization context required")
		}

		row := s.PG.QueryRowContext(ctx, `
			SELECT id, name, owner_id, created_at, updated_at
			FROM organizations WHERE `+strings.Join(conds, " AND "), args...)

		var o db.Organization
		err := row.Scan(&o.ID, &o.Name, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt)
		if err == sql.ErrNoRows {
			err = tenant.ErrNotFound
		} else if err != nil {
			err = tenant.NewInternalError("failed to get organization", err)
		}
		count := 0
		if err == nil {
			count = 1
		}
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "organizations",
			"getCurrent", count, ignoreNotFound(err), nil)
		if err != nil {
			return err
		}
		org = &o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetAllForSystem lists every organization through an explicit, audited
// bypass context, for system dashboards.
func (s *OrganizationService) GetAllForSystem(ctx context.Context, requestedBy, reason string) ([]db.Organization, error) {
	override := tenant.SystemContext(requestedBy, reason)

	var orgs []db.Organization
	err := tenant.WithOrganizationContext(ctx, override, func(ctx context.Context, organizationID, userID string) error {
		rows, err := s.PG.QueryContext(ctx, `
			SELECT id, name, owner_id, created_at, updated_at
			FROM organizations ORDER BY created_at DESC`)
		if err != nil {
			return tenant.NewInternalError("failed to list organizations", err)
		}
		defer rows.Close()

		orgs = make([]db.Organization, 0)
		for rows.Next() {
			var o db.Organization
			if err := rows.Scan(&o.ID, &o.Name, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt); err != nil {
				return tenant.NewInternalError("failed to scan organization", err)
			}
			orgs = append(orgs, o)
		}
		err = rows.Err()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "organizations",
			"getAllForSystem", len(orgs), err, override)
		return err
	})
	if err != nil {
		return nil, err
	}
	return orgs, nil
}
