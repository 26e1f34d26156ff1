package services

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docvaulthq/docvault/db"
	"github.com/docvaulthq/docvault/tenant"
)

// AuditService writes and queries the append-only audit_logs table.
// Entries are write-once; nothing in this service updates or deletes
// them.
type AuditService struct {
	PG *sql.DB
}

func NewAuditService(pg *sql.DB) *AuditService {
	return &AuditService{PG: pg}
}

const auditColumns = `id, user_id, organization_id, action, table_name, record_count, query, bypass_used, reason, requested_by, success, error_message, timestamp`

// Record appends one audit entry. From the caller's perspective this is
// best effort: a failed write is logged and the caller's operation
// stands. Bypass entries are the exception: a bypass must not proceed
// unrecorded, so those failures are logged on the SECURITY channel and
// returned.
func (s *AuditService) Record(ctx context.Context, entry *db.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	var orgID interface{}
	if entry.OrganizationID != "" && entry.OrganizationID != tenant.BypassAllOrganizations {
		orgID = entry.OrganizationID
	}

	_, err := s.PG.ExecContext(ctx, `
		INSERT INTO audit_logs (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, entry.ID, entry.UserID, orgID, entry.Action, entry.TableName, entry.RecordCount,
		entry.Query, entry.BypassUsed, nullIfEmpty(entry.Reason), nullIfEmpty(entry.RequestedBy),
		entry.Success, nullIfEmpty(entry.ErrorMessage), entry.Timestamp)

	if err != nil {
		if entry.BypassUsed {
			log.Printf("SECURITY: failed to write audit entry for bypass operation table=%s requested_by=%s reason=%q: %v",
				entry.TableName, entry.RequestedBy, entry.Reason, err)
			return tenant.NewInternalError("failed to record bypass audit entry", err)
		}
		log.Printf("Warning: failed to write audit log entry for %s.%s: %v", entry.TableName, entry.Action, err)
		return nil
	}
	return nil
}

// RecordAccess is the convenience wrapper the data-access services call
// around every operation. organizationID is the value the operation ran
// with; the bypass sentinel marks the entry as a bypass.
func (s *AuditService) RecordAccess(ctx context.Context, organizationID, userID, action, tableName, operation string, recordCount int, opErr error, override *tenant.Context) {
	entry := &db.AuditLog{
		UserID:         userID,
		OrganizationID: organizationID,
		Action:         action,
		TableName:      tableName,
		RecordCount:    recordCount,
		Query:          operation,
		BypassUsed:     organizationID == tenant.BypassAllOrganizations,
		Success:        opErr == nil,
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	if override != nil && override.BypassOrganizationFilter {
		entry.Reason = override.Reason
		entry.RequestedBy = override.RequestedBy
	}
	_ = s.Record(ctx, entry)
}

// Query returns audit entries matching the filter, newest first. The
// organization filter comes through the same sanctioned predicate
// builder as every tenant-scoped read, so an org admin can never page
// through another org's trail.
func (s *AuditService) Query(ctx context.Context, filter db.AuditLogFilter) ([]db.AuditLog, error) {
	conds, args := s.buildFilter(filter)

	query := `SELECT ` + auditColumns + ` FROM audit_logs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"

	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, tenant.NewInternalError("failed to query audit logs", err)
	}
	defer rows.Close()

	return scanAuditLogs(rows)
}

// Stats aggregates the filtered set for the audit dashboard.
func (s *AuditService) Stats(ctx context.Context, filter db.AuditLogFilter) (*db.AuditStats, error) {
	conds, args := s.buildFilter(filter)
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	stats := &db.AuditStats{
		ByAction: make(map[string]int64),
		ByTable:  make(map[string]int64),
	}

	err := s.PG.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE bypass_used),
		       COUNT(*) FILTER (WHERE NOT success)
		FROM audit_logs`+where, args...).
		Scan(&stats.TotalEntries, &stats.BypassEntries, &stats.FailedEntries)
	if err != nil {
		return nil, tenant.NewInternalError("failed to aggregate audit stats", err)
	}

	rows, err := s.PG.QueryContext(ctx, `
		SELECT action, table_name, COUNT(*)
		FROM audit_logs`+where+`
		GROUP BY action, table_name`, args...)
	if err != nil {
		return nil, tenant.NewInternalError("failed to aggregate audit stats", err)
	}
	defer rows.Close()

	for rows.Next() {
		var action, table string
		var count int64
		if err := rows.Scan(&action, &table, &count); err != nil {
			return nil, tenant.NewInternalError("failed to scan audit stats", err)
		}
		stats.ByAction[action] += count
		stats.ByTable[table] += count
	}
	return stats, rows.Err()
}

// ExportCSV streams the filtered set as CSV. Applies the identical
// filter path as Query, so exports carry the same tenant scoping.
func (s *AuditService) ExportCSV(ctx context.Context, w io.Writer, filter db.AuditLogFilter) error {
	// Exports page through everything that matches, not just one page.
	filter.Limit = 500
	filter.Offset = 0

	cw := csv.NewWriter(w)
	header := []string{"id", "user_id", "organization_id", "action", "table_name", "record_count", "query", "bypass_used", "reason", "requested_by", "success", "error_message", "timestamp"}
	if err := cw.Write(header); err != nil {
		return tenant.NewInternalError("failed to write csv header", err)
	}

	for {
		entries, err := s.Query(ctx, filter)
		if err != nil {
			return err
		}
		for _, e := range entries {
			record := []string{
				e.ID, e.UserID, e.OrganizationID, e.Action, e.TableName,
				strconv.Itoa(e.RecordCount), e.Query, strconv.FormatBool(e.BypassUsed),
				e.Reason, e.RequestedBy, strconv.FormatBool(e.Success), e.ErrorMessage,
				e.Timestamp.UTC().Format(time.RFC3339),
			}
			if err := cw.Write(record); err != nil {
				return tenant.NewInternalError("failed to write csv row", err)
			}
		}
		if len(entries) < filter.Limit {
			break
		}
		filter.Offset += filter.Limit
	}

	cw.Flush()
	return cw.Error()
}

func (s *AuditService) buildFilter(filter db.AuditLogFilter) ([]string, []interface{}) {
	var conds []string
	var args []interface{}

	conds, args = tenant.AppendOrganizationFilter(conds, args, "organization_id", filter.OrganizationID)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, filter.Action)
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.TableName != "" {
		args = append(args, filter.TableName)
		conds = append(conds, fmt.Sprintf("table_name = $%d", len(args)))
	}
	if filter.BypassOnly {
		conds = append(conds, "bypass_used = true")
	}
	if filter.FailuresOnly {
		conds = append(conds, "success = false")
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("timestamp >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		conds = append(conds, fmt.Sprintf("timestamp <= $%d", len(args)))
	}
	return conds, args
}

func scanAuditLogs(rows *sql.Rows) ([]db.AuditLog, error) {
	entries := make([]db.AuditLog, 0)
	for rows.Next() {
		var e db.AuditLog
		var orgID, reason, requestedBy, errMsg sql.NullString
		if err := rows.Scan(&e.ID, &e.UserID, &orgID, &e.Action, &e.TableName, &e.RecordCount,
			&e.Query, &e.BypassUsed, &reason, &requestedBy, &e.Success, &errMsg, &e.Timestamp); err != nil {
			return nil, tenant.NewInternalError("failed to scan audit log", err)
		}
		e.OrganizationID = orgID.String
		e.Reason = reason.String
		e.RequestedBy = requestedBy.String
		e.ErrorMessage = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
