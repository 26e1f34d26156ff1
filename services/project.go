package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

// ProjectService is the enforcement point for the projects table. Same
// shape as DocumentService: every statement is scoped through the
// tenant helpers and audited.
type ProjectService struct {
	PG    *sql.DB
	Audit *AuditService
}

func NewProjectService(pg *sql.DB, audit *AuditService) *ProjectService {
	return &ProjectService{PG: pg, Audit: audit}
}

const projectColumns = `id, organization_id, name, description, created_by, created_at, updated_at`

// Create inserts a project into the caller's organization; a forged
// organization_id in the request never wins over the context.
func (s *ProjectService) Create(ctx context.Context, req db.CreateProjectRequest) (*db.Project, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, tenant.NewValidationError("project name is required")
	}

	var project *db.Project
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		targetOrg, err := tenant.AddOrganizationToData(organizationID, req.OrganizationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		project = &db.Project{
			ID:             uuid.New().String(),
			OrganizationID: targetOrg,
			Name:           req.Name,
			Description:    req.Description,
			CreatedBy:      userID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		_, err = s.PG.ExecContext(ctx, `
			INSERT INTO projects (`+projectColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, project.ID, project.OrganizationID, project.Name, nullIfEmpty(project.Description),
			project.CreatedBy, project.CreatedAt, project.UpdatedAt)

		s.Audit.RecordAccess(ctx, project.OrganizationID, userID, db.AuditActionInsert, "projects",
			"create name="+project.Name, 1, err, nil)
		if err != nil {
			return tenant.NewInternalError("failed to create project", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// GetByID returns the project only inside the caller's organization.
func (s *ProjectService) GetByID(ctx context.Context, id string) (*db.Project, error) {
	var project *db.Project
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		row := s.PG.QueryRowContext(ctx,
			`SELECT `+projectColumns+` FROM projects WHERE `+strings.Join(conds, " AND "), args...)

		p, err := scanProject(row)
		count := 0
		if err == nil {
			count = 1
		}
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "projects",
			"getById id="+id, count, ignoreNotFound(err), nil)
		if err != nil {
			return err
		}
		project = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return project, nil
}

// List returns the organization's projects ordered by name.
func (s *ProjectService) List(ctx context.Context, limit, offset int) ([]db.Project, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var projects []db.Project
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		var conds []string
		var args []interface{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		query := `SELECT ` + projectColumns + ` FROM projects`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		args = append(args, limit)
		query += fmt.Sprintf(" ORDER BY name LIMIT $%d", len(args))
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))

		rows, err := s.PG.QueryContext(ctx, query, args...)
		if err != nil {
			return tenant.NewInternalError("failed to list projects", err)
		}
		defer rows.Close()

		projects, err = scanProjects(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "projects",
			"list", len(projects), err, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// Update mutates name/description within the caller's organization.
func (s *ProjectService) Update(ctx context.Context, id string, req db.UpdateProjectRequest) (*db.Project, error) {
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		var sets []string
		var args []interface{}

		if req.Name != nil {
			if strings.TrimSpace(*req.Name) == "" {
				return tenant.NewValidationError("project name cannot be empty")
			}
			args = append(args, *req.Name)
			sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
		}
		if req.Description != nil {
			args = append(args, nullIfEmpty(*req.Description))
			sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
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
			`UPDATE projects SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionUpdate, "projects",
				"update id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to update project", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionUpdate, "projects",
			"update id="+id, int(affected), nil, nil)
		if affected == 0 {
			return tenant.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

// Delete removes a project inside the caller's organization. Documents
// keep their project_id FK nulled by the schema.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	return tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		result, err := s.PG.ExecContext(ctx,
			`DELETE FROM projects WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionDelete, "projects",
				"delete id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to delete project", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionDelete, "projects",
			"delete id="+id, int(affected), nil, nil)
		if affected == 0 {
			return tenant.ErrNotFound
		}
		return nil
	})
}

// GetAllForSystem is the only sanctioned cross-tenant project read,
// through an explicit, audited bypass context.
func (s *ProjectService) GetAllForSystem(ctx context.Context, requestedBy, reason string) ([]db.Project, error) {
	override := tenant.SystemContext(requestedBy, reason)

	var projects []db.Project
	err := tenant.WithOrganizationContext(ctx, override, func(ctx context.Context, organizationID, userID string) error {
		var conds []string
		var args []interface{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		query := `SELECT ` + projectColumns + ` FROM projects`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY created_at DESC"

		rows, err := s.PG.QueryContext(ctx, query, args...)
		if err != nil {
			return tenant.NewInternalError("failed to list all projects", err)
		}
		defer rows.Close()

		projects, err = scanProjects(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "projects",
			"getAllForSystem", len(projects), err, override)
		return err
	})
	if err != nil {
		return nil, err
	}
	return projects, nil
}

func scanProject(row rowScanner) (*db.Project, error) {
	var p db.Project
	var description sql.NullString
	err := row.Scan(&p.ID, &p.OrganizationID, &p.Name, &description, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrNotFound
		}
		return nil, tenant.NewInternalError("failed to scan project", err)
	}
	p.Description = description.String
	return &p, nil
}

func scanProjects(rows *sql.Rows) ([]db.Project, error) {
	projects := make([]db.Project, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}
