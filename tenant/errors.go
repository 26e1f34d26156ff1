package tenant

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the stable machine-readable discriminator returned to
// clients in the "code" field. Handlers branch on codes, never on
// message text.
type ErrorCode string

const (
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeNoOrganization    ErrorCode = "NO_ORGANIZATION"
	CodeBypassRequiresOrg ErrorCode = "BYPASS_REQUIRES_ORG"
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// Error is the closed error type for the authorization and tenant layer.
// Every error crossing a service boundary is either one of the sentinel
// instances below or wraps a storage failure with CodeInternal.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two *Error values by code, so sentinel
// comparisons like errors.Is(err, tenant.ErrNotFound) work even when the
// error was rebuilt with a more specific message.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Coder is implemented by errors outside this package (e.g. the authz
// permission error) that still belong to the closed taxonomy.
type Coder interface {
	ErrorCode() ErrorCode
}

var (
	// ErrMissingAuth is returned when no session can be resolved at all.
	ErrMissingAuth = &Error{Code: CodeUnauthorized, Message: "authentication required"}

	// ErrMissingOrgContext is returned when a data-access call runs
	// outside any security context.
	ErrMissingOrgContext = &Error{Code: CodeUnauthorized, Message: "no organization context"}

	// ErrNoOrganization marks the authenticated-without-org onboarding
	// state. Distinct from ErrMissingAuth: the caller is a valid user who
	// has not set up an organization yet.
	ErrNoOrganization = &Error{Code: CodeNoOrganization, Message: "user has no organization"}

	// ErrUserNotFound is returned when a session references a user id
	// absent from storage.
	ErrUserNotFound = &Error{Code: CodeNotFound, Message: "user not found"}

	// ErrNotFound is the generic tenant-scoped miss. Cross-tenant reads
	// surface as ErrNotFound, never as a forbidden hint.
	ErrNotFound = &Error{Code: CodeNotFound, Message: "record not found"}

	// ErrBypassRequiresOrg is returned when a bypass context reaches an
	// operation that needs an explicit target organization, such as an
	// insert. Indicates a missing explicit org argument at the call site.
	ErrBypassRequiresOrg = &Error{Code: CodeBypassRequiresOrg, Message: "bypass context requires an explicit target organization"}
)

// NewValidationError reports malformed input at a service boundary.
func NewValidationError(format string, args ...interface{}) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInternalError wraps a storage or unexpected failure. The wrapped
// cause is logged server-side but never rendered to the client.
func NewInternalError(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// CodeOf extracts the taxonomy code from any error. Unknown errors are
// conservatively treated as internal.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	var c Coder
	if errors.As(err, &c) {
		return c.ErrorCode()
	}
	return CodeInternal
}

// HTTPStatus maps a taxonomy code onto the status the route handler
// should respond with. NO_ORGANIZATION maps to 409 so clients can
// redirect to organization setup instead of treating it as 401.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeNoOrganization:
		return http.StatusConflict
	case CodeBypassRequiresOrg, CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
