package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

// DocumentService is the enforcement point for the documents table.
// Every method runs inside WithOrganizationContext; selects, updates and
// deletes carry the tenant predicate from AppendOrganizationFilter and
// inserts take their organization from AddOrganizationToData. Nothing
// here builds its own tenant scoping.
type DocumentService struct {
	PG       *sql.DB
	Audit    *AuditService
	Analysis *AnalysisService
}

func NewDocumentService(pg *sql.DB, audit *AuditService, analysis *AnalysisService) *DocumentService {
	return &DocumentService{PG: pg, Audit: audit, Analysis: analysis}
}

const documentColumns = `id, organization_id, project_id, title, file_name, file_path, file_size, content_type, content, summary, tags, analysis_status, uploaded_by, created_at, updated_at`

// Create inserts a document into the caller's organization. A forged
// organization_id in the request is overridden by the context; the
// analysis queue is notified after a successful insert.
func (s *DocumentService) Create(ctx context.Context, req db.CreateDocumentRequest) (*db.Document, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, tenant.NewValidationError("document title is required")
	}

	var doc *db.Document
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		targetOrg, err := tenant.AddOrganizationToData(organizationID, req.OrganizationID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		doc = &db.Document{
			ID:             uuid.New().String(),
			OrganizationID: targetOrg,
			ProjectID:      req.ProjectID,
			Title:          req.Title,
			FileName:       req.FileName,
			FilePath:       req.FilePath,
			FileSize:       req.FileSize,
			ContentType:    req.ContentType,
			Content:        req.Content,
			Tags:           req.Tags,
			AnalysisStatus: db.AnalysisPending,
			UploadedBy:     userID,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if doc.Tags == nil {
			doc.Tags = []string{}
		}

		_, err = s.PG.ExecContext(ctx, `
			INSERT INTO documents (`+documentColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`, doc.ID, doc.OrganizationID, nullIfEmpty(doc.ProjectID), doc.Title, doc.FileName,
			nullIfEmpty(doc.FilePath), doc.FileSize, nullIfEmpty(doc.ContentType), doc.Content,
			nullIfEmpty(doc.Summary), pq.Array(doc.Tags), doc.AnalysisStatus, doc.UploadedBy,
			doc.CreatedAt, doc.UpdatedAt)

		s.Audit.RecordAccess(ctx, doc.OrganizationID, userID, db.AuditActionInsert, "documents",
			"create title="+doc.Title, 1, err, nil)
		if err != nil {
			return tenant.NewInternalError("failed to create document", err)
		}

		if s.Analysis != nil {
			s.Analysis.EnqueueAsync(doc.ID, doc.OrganizationID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetByID returns the document only when it belongs to the caller's
// organization. A cross-tenant id misses the predicate and surfaces as
// not-found, indistinguishable from a nonexistent record.
func (s *DocumentService) GetByID(ctx context.Context, id string) (*db.Document, error) {
	var doc *db.Document
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		row := s.PG.QueryRowContext(ctx, `
			SELECT `+documentColumns+` FROM documents WHERE `+strings.Join(conds, " AND "), args...)

		d, err := scanDocument(row)
		count := 0
		if err == nil {
			count = 1
		}
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"getById id="+id, count, ignoreNotFound(err), nil)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// List returns the organization's documents, newest first, optionally
// narrowed to one project.
func (s *DocumentService) List(ctx context.Context, projectID string, limit, offset int) ([]db.Document, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var docs []db.Document
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		var conds []string
		var args []interface{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)
		if projectID != "" {
			args = append(args, projectID)
			conds = append(conds, fmt.Sprintf("project_id = $%d", len(args)))
		}

		query := `SELECT ` + documentColumns + ` FROM documents`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		args = append(args, limit)
		query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
		args = append(args, offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))

		rows, err := s.PG.QueryContext(ctx, query, args...)
		if err != nil {
			return tenant.NewInternalError("failed to list documents", err)
		}
		defer rows.Close()

		docs, err = scanDocuments(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"list", len(docs), err, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// Update mutates title, project, content or tags. The organization id is
// immutable after creation and never appears in the SET clause; the
// WHERE clause carries the tenant predicate so a cross-tenant update
// affects zero rows.
func (s *DocumentService) Update(ctx context.Context, id string, req db.UpdateDocumentRequest) (*db.Document, error) {
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		var sets []string
		var args []interface{}

		if req.Title != nil {
			if strings.TrimSpace(*req.Title) == "" {
				return tenant.NewValidationError("document title cannot be empty")
			}
			args = append(args, *req.Title)
			sets = append(sets, fmt.Sprintf("title = $%d", len(args)))
		}
		if req.ProjectID != nil {
			args = append(args, nullIfEmpty(*req.ProjectID))
			sets = append(sets, fmt.Sprintf("project_id = $%d", len(args)))
		}
		if req.Content != nil {
			args = append(args, *req.Content)
			sets = append(sets, fmt.Sprintf("content = $%d", len(args)))
		}
		if req.Tags != nil {
			args = append(args, pq.Array(*req.Tags))
			sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
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
			`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionUpdate, "documents",
				"update id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to update document", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionUpdate, "documents",
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

// Delete removes a document inside the caller's organization.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	return tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		result, err := s.PG.ExecContext(ctx,
			`DELETE FROM documents WHERE `+strings.Join(conds, " AND "), args...)
		if err != nil {
			s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionDelete, "documents",
				"delete id="+id, 0, err, nil)
			return tenant.NewInternalError("failed to delete document", err)
		}
		affected, _ := result.RowsAffected()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionDelete, "documents",
			"delete id="+id, int(affected), nil, nil)
		if affected == 0 {
			return tenant.ErrNotFound
		}
		return nil
	})
}

// Search runs full-text search over title and content, hard-filtered to
// the caller's organization. The organization id always comes from the
// verified context, never from request input.
func (s *DocumentService) Search(ctx context.Context, query string, limit int) ([]db.Document, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, tenant.NewValidationError("search query is required")
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	var docs []db.Document
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{query}
		conds := []string{"to_tsvector('english', title || ' ' || coalesce(content, '')) @@ plainto_tsquery('english', $1)"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		args = append(args, limit)
		rows, err := s.PG.QueryContext(ctx, `
			SELECT `+documentColumns+` FROM documents
			WHERE `+strings.Join(conds, " AND ")+`
			ORDER BY ts_rank(to_tsvector('english', title || ' ' || coalesce(content, '')), plainto_tsquery('english', $1)) DESC
			LIMIT $`+fmt.Sprint(len(args)), args...)
		if err != nil {
			return tenant.NewInternalError("failed to search documents", err)
		}
		defer rows.Close()

		docs, err = scanDocuments(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"search q="+query, len(docs), err, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// SearchMentions serves the chat @-mention picker: a prefix match on
// titles returning only id/title pairs, scoped like every other read.
func (s *DocumentService) SearchMentions(ctx context.Context, prefix string, limit int) ([]db.DocumentMention, error) {
	if limit <= 0 || limit > 25 {
		limit = 10
	}

	var mentions []db.DocumentMention
	err := tenant.WithOrganizationContext(ctx, nil, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{prefix + "%"}
		conds := []string{"title ILIKE $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		args = append(args, limit)
		rows, err := s.PG.QueryContext(ctx, `
			SELECT id, title FROM documents
			WHERE `+strings.Join(conds, " AND ")+`
			ORDER BY title LIMIT $`+fmt.Sprint(len(args)), args...)
		if err != nil {
			return tenant.NewInternalError("failed to search mentions", err)
		}
		defer rows.Close()

		mentions = make([]db.DocumentMention, 0)
		for rows.Next() {
			var m db.DocumentMention
			if err := rows.Scan(&m.ID, &m.Title); err != nil {
				return tenant.NewInternalError("failed to scan mention", err)
			}
			mentions = append(mentions, m)
		}
		err = rows.Err()
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"searchMentions", len(mentions), err, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return mentions, nil
}

// SetAnalysisStatus is the analysis worker's write path. The worker
// supplies an override context scoped to the organization captured when
// the document was enqueued, so even the async status update goes
// through the tenant filter instead of a raw unscoped UPDATE.
func (s *DocumentService) SetAnalysisStatus(ctx context.Context, override *tenant.Context, id, status string, tags []string, summary string) error {
	switch status {
	case db.AnalysisAnalyzing, db.AnalysisCompleted, db.AnalysisFailed:
	default:
		return tenant.NewValidationError("invalid analysis status %q", status)
	}

	return tenant.WithOrganizationContext(ctx, override, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{status}
		sets := []string{"analysis_status = $1"}
		if tags != nil {
			args = append(args, pq.Array(tags))
			sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
		}
		if summary != "" {
			args = append(args, summary)
			sets = append(sets, fmt.Sprintf("summary = $%d", len(args)))
		}
		args = append(args, time.Now().UTC())
		sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))

		args = append(args, id)
		conds := []string{fmt.Sprintf("id = $%d", len(args))}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		result, err := s.PG.ExecContext(ctx,
			`UPDATE documents SET `+strings.Join(sets, ", ")+` WHERE `+strings.Join(conds, " AND "), args...)

		affected := int64(0)
		if err == nil {
			affected, _ = result.RowsAffected()
		}
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionUpdate, "documents",
			"setAnalysisStatus id="+id+" status="+status, int(affected), err, override)
		if err != nil {
			return tenant.NewInternalError("failed to update analysis status", err)
		}
		if affected == 0 {
			return tenant.ErrNotFound
		}
		return nil
	})
}

// GetForAnalysis reads a document on behalf of the analysis worker,
// scoped by the override context captured at enqueue time. A document
// that moved or vanished since enqueue comes back as not-found.
func (s *DocumentService) GetForAnalysis(ctx context.Context, override *tenant.Context, id string) (*db.Document, error) {
	var doc *db.Document
	err := tenant.WithOrganizationContext(ctx, override, func(ctx context.Context, organizationID, userID string) error {
		args := []interface{}{id}
		conds := []string{"id = $1"}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		row := s.PG.QueryRowContext(ctx, `
			SELECT `+documentColumns+` FROM documents WHERE `+strings.Join(conds, " AND "), args...)

		d, err := scanDocument(row)
		count := 0
		if err == nil {
			count = 1
		}
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"getForAnalysis id="+id, count, ignoreNotFound(err), override)
		if err != nil {
			return err
		}
		doc = d
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetAllForSystem is the only sanctioned cross-tenant document read.
// There is no implicit path to the unfiltered query: the bypass context
// is constructed here and the access lands in the audit log with the
// literal reason and requester id.
func (s *DocumentService) GetAllForSystem(ctx context.Context, requestedBy, reason string) ([]db.Document, error) {
	override := tenant.SystemContext(requestedBy, reason)

	var docs []db.Document
	err := tenant.WithOrganizationContext(ctx, override, func(ctx context.Context, organizationID, userID string) error {
		var conds []string
		var args []interface{}
		conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", organizationID)

		query := `SELECT ` + documentColumns + ` FROM documents`
		if len(conds) > 0 {
			query += " WHERE " + strings.Join(conds, " AND ")
		}
		query += " ORDER BY created_at DESC"

		rows, err := s.PG.QueryContext(ctx, query, args...)
		if err != nil {
			return tenant.NewInternalError("failed to list all documents", err)
		}
		defer rows.Close()

		docs, err = scanDocuments(rows)
		s.Audit.RecordAccess(ctx, organizationID, userID, db.AuditActionRead, "documents",
			"getAllForSystem", len(docs), err, override)
		return err
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*db.Document, error) {
	var d db.Document
	var projectID, filePath, contentType, content, summary sql.NullString
	var tags pq.StringArray
	err := row.Scan(&d.ID, &d.OrganizationID, &projectID, &d.Title, &d.FileName, &filePath,
		&d.FileSize, &contentType, &content, &summary, &tags, &d.AnalysisStatus, &d.UploadedBy,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, tenant.ErrNotFound
		}
		return nil, tenant.NewInternalError("failed to scan document", err)
	}
	d.ProjectID = projectID.String
	d.FilePath = filePath.String
	d.ContentType = contentType.String
	d.Content = content.String
	d.Summary = summary.String
	d.Tags = []string(tags)
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return &d, nil
}

func scanDocuments(rows *sql.Rows) ([]db.Document, error) {
	docs := make([]db.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *d)
	}
	return docs, rows.Err()
}

// ignoreNotFound keeps tenant-scoped misses out of the audit error
// column; a miss is a normal outcome, recorded as zero rows.
func ignoreNotFound(err error) error {
	if err == nil || tenant.CodeOf(err) == tenant.CodeNotFound {
		return nil
	}
	return err
}
