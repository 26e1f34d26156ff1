package tenant

import "context"

// BypassAllOrganizations is the sentinel organization id passed to a unit
// of work when the organization filter has been explicitly bypassed.
// It is never a valid organization id and must never be conflated with
// the empty string, which means "authenticated user without an
// organization yet".
const BypassAllOrganizations = "bypass"

// Session is the authenticated principal resolved from request
// credentials. OrganizationID may be empty for users mid-onboarding;
// callers must treat that as a distinct state from "not authenticated".
type Session struct {
	UserID         string `json:"user_id"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	Role           string `json:"role"`
}

// Context is the per-request security context threaded through every
// data-access call. A bypass context disables the tenant filter and must
// carry a reason and requester id for the audit trail.
type Context struct {
	OrganizationID           string
	UserID                   string
	Role                     string
	BypassOrganizationFilter bool
	Reason                   string
	RequestedBy              string
}

// SystemContext builds the explicit bypass context used by the sanctioned
// cross-tenant operations. There is no implicit path to a bypass context.
func SystemContext(requestedBy, reason string) *Context {
	return &Context{
		BypassOrganizationFilter: true,
		RequestedBy:              requestedBy,
		Reason:                   reason,
	}
}

type sessionContextKey struct{}

// WithSession attaches the resolved session to the request context.
// The session is constructed fresh per request and never cached in
// process-wide state.
func WithSession(ctx context.Context, s *Session) context.Context {
	if s == nil {
		return ctx
	}
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// SessionFromContext returns the session attached to the context, if any.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || s == nil {
		return nil, false
	}
	return s, true
}
