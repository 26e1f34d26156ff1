package db

import "time"

// ===========================
// TENANT MODELS
// ===========================

// Organization is the tenant boundary. Every tenant-scoped record
// references exactly one organization; deleting an organization cascades
// to everything it owns.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User is a cross-organization identity. OrganizationID is empty until
// the user sets up or joins an organization; PasswordHash is empty for
// OAuth-only accounts.
type User struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	Name           string    `json:"name"`
	PasswordHash   string    `json:"-"`
	OrganizationID string    `json:"organization_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Project groups documents inside one organization.
type Project struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Document analysis lifecycle.
const (
	AnalysisPending   = "pending"
	AnalysisAnalyzing = "analyzing"
	AnalysisCompleted = "completed"
	AnalysisFailed    = "failed"
)

// Document is a tenant-scoped record. OrganizationID is set from the
// security context at creation and immutable afterwards.
type Document struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	ProjectID      string    `json:"project_id,omitempty"`
	Title          string    `json:"title"`
	FileName       string    `json:"file_name"`
	FilePath       string    `json:"file_path,omitempty"`
	FileSize       int64     `json:"file_size"`
	ContentType    string    `json:"content_type,omitempty"`
	Content        string    `json:"content,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Tags           []string  `json:"tags"`
	AnalysisStatus string    `json:"analysis_status"`
	UploadedBy     string    `json:"uploaded_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ===========================
// AUDIT MODELS
// ===========================

// Audit action kinds.
const (
	AuditActionRead   = "read"
	AuditActionInsert = "insert"
	AuditActionUpdate = "update"
	AuditActionDelete = "delete"
)

// AuditLog is an append-only record of one data access. Entries are
// write-once; application code never updates or deletes them. Bypass
// entries must carry the literal reason and requester id.
type AuditLog struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Action         string    `json:"action"`
	TableName      string    `json:"table_name"`
	RecordCount    int       `json:"record_count"`
	Query          string    `json:"query"`
	BypassUsed     bool      `json:"bypass_used"`
	Reason         string    `json:"reason,omitempty"`
	RequestedBy    string    `json:"requested_by,omitempty"`
	Success        bool      `json:"success"`
	ErrorMessage   string    `json:"error_message,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// AuditLogFilter narrows audit queries. Zero values mean "no filter".
// OrganizationID is always forced from the caller's security context for
// non-bypass callers.
type AuditLogFilter struct {
	OrganizationID string     `form:"-"`
	UserID         string     `form:"user_id"`
	Action         string     `form:"action"`
	TableName      string     `form:"table_name"`
	BypassOnly     bool       `form:"bypass_only"`
	FailuresOnly   bool       `form:"failures_only"`
	Since          *time.Time `form:"since" time_format:"2006-01-02T15:04:05Z07:00"`
	Until          *time.Time `form:"until" time_format:"2006-01-02T15:04:05Z07:00"`
	Limit          int        `form:"limit"`
	Offset         int        `form:"offset"`
}

// AuditStats is the aggregate view served by GET /audit/stats.
type AuditStats struct {
	TotalEntries  int64            `json:"total_entries"`
	BypassEntries int64            `json:"bypass_entries"`
	FailedEntries int64            `json:"failed_entries"`
	ByAction      map[string]int64 `json:"by_action"`
	ByTable       map[string]int64 `json:"by_table"`
}

// ===========================
// REQUEST / RESPONSE MODELS
// ===========================

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SetupOrganizationRequest struct {
	Name string `json:"name" binding:"required"`
}

// CreateDocumentRequest may carry an organization_id, but the persisted
// value always comes from the security context; a forged id is ignored.
type CreateDocumentRequest struct {
	Title          string   `json:"title" binding:"required"`
	OrganizationID string   `json:"organization_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	FileName       string   `json:"file_name"`
	FilePath       string   `json:"file_path,omitempty"`
	FileSize       int64    `json:"file_size"`
	ContentType    string   `json:"content_type,omitempty"`
	Content        string   `json:"content,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

type UpdateDocumentRequest struct {
	Title     *string   `json:"title,omitempty"`
	ProjectID *string   `json:"project_id,omitempty"`
	Content   *string   `json:"content,omitempty"`
	Tags      *[]string `json:"tags,omitempty"`
}

type CreateProjectRequest struct {
	Name           string `json:"name" binding:"required"`
	OrganizationID string `json:"organization_id,omitempty"`
	Description    string `json:"description,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

type UpdateUserRequest struct {
	Name *string `json:"name,omitempty"`
	Role *string `json:"role,omitempty"`
}

// UpdateUserOrganizationRequest moves a user to another organization.
// An empty organization id detaches the user.
type UpdateUserOrganizationRequest struct {
	OrganizationID string `json:"organization_id"`
}

// DocumentMention is the compact shape returned to the chat mention
// picker: enough to render an @-mention, nothing more.
type DocumentMention struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}
