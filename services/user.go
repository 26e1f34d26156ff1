package services

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/docvaulthq/docvault/authz"
	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

// UserService manages users. Users are cross-organization identities, so
// unlike documents and projects this service is not tenant-scoped as a
// whole; the operations that list or mutate other users still run
// through the organization context so an org admin only ever sees their
// own members.
type UserService struct {
	PG    *sql.DB
	Audit *AuditService
	Auth  *AuthService
}

func NewUserService(pg *sql.DB, audit *AuditService, auth *AuthService) *UserService {
	return &UserService{PG: pg, Audit: audit, Auth: auth}
}

const userColumns = `id, email, name, password_hash, organization_id, role, created_at, updated_at`

// Create registers a new user. New users start with no organization and
// the least-privilege role; they are elevated to admin of their own
// organization at setup time, never by default.
func (s *UserService) Create(ctx context.Context, req db.RegisterRequest, passwordHash string) (*db.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, tenant.NewValidationError("email is required")
	}

	now := time.Now().UTC()
	user := &db.User{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         req.Name,
		PasswordHash: passwordHash,
		Role:         string(authz.DefaultRole),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, organization_id, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NULL, $5, $6, $7)
	`, user.ID, user.Email, user.Name, nullIfEmpty(user.PasswordHash), user.Role, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, &tenant.Error{Code: tenant.CodeConflict, Message: "email already registered"}
		}
		return nil, tenant.NewInternalError("failed to create user", err)
	}
	return user, nil
}

// GetByID looks a user up by id. System-level: used by the session
// refresh and by handlers that already passed an ownership check.
func (s *UserService) GetByID(ctx context.Context, id string) (*db.User, error) {
	row := s.PG.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err != nil {
		if tenant.CodeOf(err) == tenant.CodeNotFound {
			return nil, tenant.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// GetByEmail is the login lookup.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := s.PG.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		if tenant.CodeOf(err) == tenant.CodeNotFound {
			return nil, tenant.ErrUserNotFound
		}
		return nil, err
	}
	return user, nil
}

// OrgForUser is the read-only lookup behind the stale-token refresh.
func (s *UserService) OrgForUser(ctx context.Context, userID string) (string, string, error) {
	var orgID sql.NullString
	var role string
	err := s.PG.QueryRowContext(ctx,
		`SELECT organization_id, role FROM users WHERE id = $1`, userID).Scan(&orgID, &role)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", "", tenant.ErrUserNotFound
		}
		return "", "", tenant.NewInternalError("failed to look up user organization", err)
	}
	return orgID.String, role, nil
}

// List returns the members of the caller's organization.
func (s *UserService) List(ctx context.Context, limit, offset int) ([]db.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var users []db.User
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		var conds []string
		var args []interface{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		query := `SELECT ` + userColumns + ` FROM users`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		args = append(args, limit)
		query += fmt.Sprintf(" ORDER BY email LIMIT $%d", len(args))
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))

		rows, err := s.PG.QueryContext(ctx, query, args...)
		if err != nil {
			return tenant.NewInternalError("failed to list users", err)
		}
		defer rows.Close()

		users, err = scanUsers(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "users",
			"list", len(users), err, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Update changes a user's name or role within the caller's
// organization. Role changes are validated against the fixed role set
// and invalidate the session cache.
func (s *UserService) Update(ctx context.Context, id string, req db.UpdateUserRequest) (*db.User, error) {
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, actorID string) error {
		var sets []string
		var args []interface{}

		if req.Name != nil {
			args = append(args, *req.Name)
			sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
		}
		if req.Role != nil {
			if !authz.ValidRole(authz.Role(*req.Role)) {
				return tenant.NewValidationError("unknown role %q", *req.Role)
			}
			args = append(args, *req.Role)
			sets = append(sets, fmt.Sprintf("role = $%d", len(args)))
		}
		if len(sets) == 0 {
			return tenant.NewValidationError("no fields to update")
		}
		args = append(args, time.Now().UTC())
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

		args = append(args, id)
		conds := []string{fmt.Sprintf("id = $%d", len(args))}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		result, err := s.PG.ExecContext(ctx,
			`UPDATE users SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, actorID, db.AuditActionUpdate, "users",
				"update id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to update user", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, actorID, db.AuditActionUpdate, "users",
			"update id="+id, int(affected), nil, nil)
		if affected == 0 {
			return tenant.ErrUserNotFound
		}
		if s.Auth != nil {
			s.Auth.InvalidateOrgCache(ctx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Delete removes a user from the caller's organization.
func (s *UserService) Delete(ctx context.Context, id string) error {
	return tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, actorID string) error {
		if id == actorID {
			return tenant.NewValidationError("cannot delete yourself")
		}
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		result, err := s.PG.ExecContext(ctx,
			`DELETE FROM users WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, actorID, db.AuditActionDelete, "users",
				"delete id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to delete user", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, actorID, db.AuditActionDelete, "users",
			"delete id="+id, int(affected), nil, nil)
		if affected == 0 {
			return tenant.ErrUserNotFound
		}
		if s.Auth != nil {
			s.Auth.InvalidateOrgCache(ctx, id)
		}
		return nil
	})
}

// UpdateOrganization moves a user between organizations. This is the
// only sanctioned cross-tenant write outside a user's own tenant, so it
// logs a SECURITY line with the old and new organization synchronously,
// writes a bypass-flagged audit entry, and drops the cached session
// lookup before returning.
func (s *UserService) UpdateOrganization(ctx context.Context, userID, organizationID, requestedBy string) error {
	if organizationID == tenant.BypassAllOrganizations {
		return tenant.NewValidationError("reserved organization id")
	}

	var oldOrg sql.NullString
	err := s.PG.QueryRowContext(ctx,
		`SELECT organization_id FROM users WHERE id = $1`, userID).Scan(&oldOrg)
	if err != nil {
		if err == sql.ErrNoRows {
			return tenant.ErrUserNotFound
		}
		return tenant.NewInternalError("failed to look up user", err)
	}

	_, err = s.PG.ExecContext(ctx, `
		UPDATE users SET organization_id = $2, updated_at = $3 WHERE id = $1
	`, userID, nullIfEmpty(organizationID), time.Now().UTC())

	log.Printf("SECURITY: user organization changed user=%s old_org=%q new_org=%q requested_by=%s",
		userID, oldOrg.String, organizationID, requestedBy)

	entry := &db.AuditLog{
		UserID:         requestedBy,
		OrganizationID: organizationID,
		Action:         db.AuditActionUpdate,
		TableName:      "users",
		RecordCount:    1,
		Query:          fmt.Sprintf("updateOrganization user=%s old=%s new=%s", userID, oldOrg.String, organizationID),
		BypassUsed:     true,
		Reason:         "organization assignment",
		RequestedBy:    requestedBy,
		Success:        err == nil,
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
	}
	_ = s.Audit.Record(ctx, entry)

	if err != nil {
		return tenant.NewInternalError("failed to update user organization", err)
	}
	if s.Auth != nil {
		s.Auth.InvalidateOrgCache(ctx, userID)
	}
	return nil
}

func scanUser(row rowScanner) (*db.User, error) {
	var u db.User
	var passwordHash, orgID sql.NullString
	err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &orgID, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrNotFound
		}
		return nil, tenant.NewInternalError("failed to scan user", err)
	}
	u.PasswordHash = passwordHash.String
	u.OrganizationID = orgID.String
	return &u, nil
}

func scanUsers(rows *sql.Rows) ([]db.User, error) {
	users := make([]db.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func isUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}
