package tenant

import (
	"context"
	"fmt"
	"log"
)

// WithOrganizationContext establishes the security context for one unit
// of work and invokes it with the organization id every query must be
// scoped to.
//
// Default path (override == nil): the session is taken from ctx. No
// session fails with ErrMissingOrgContext; a session without an
// organization fails with ErrNoOrganization so route handlers can branch
// between 401 and the organization-setup signal.
//
// Bypass path: an explicit override with BypassOrganizationFilter set
// passes the BypassAllOrganizations sentinel to work. The bypass is
// logged with its literal reason and requester id whether or not the
// work succeeds. An override without reason or requester is rejected.
//
// An override may also carry a concrete OrganizationID, which scopes the
// work to that tenant regardless of the ambient session. This is how the
// analysis worker re-enters the tenant filter for a document whose
// organization was captured at enqueue time.
func WithOrganizationContext(ctx context.Context, override *Context, work func(ctx context.Context, organizationID, userID string) error) error {
	if override != nil {
		if override.BypassOrganizationFilter {
			if override.Reason == "" || override.RequestedBy == "" {
				return NewValidationError("bypass context requires a reason and requester id")
			}
			err := work(ctx, BypassAllOrganizations, override.RequestedBy)
			logBypass(override, err)
			return err
		}
		if override.OrganizationID == "" {
			return NewValidationError("override context requires an organization id")
		}
		if override.OrganizationID == BypassAllOrganizations {
			// The sentinel is only reachable through an explicit bypass.
			return NewValidationError("sentinel organization id is not a valid override")
		}
		return work(ctx, override.OrganizationID, override.UserID)
	}

	session, ok := SessionFromContext(ctx)
	if !ok {
		return ErrMissingOrgContext
	}
	if session.OrganizationID == "" {
		return ErrNoOrganization
	}
	if session.OrganizationID == BypassAllOrganizations {
		return NewValidationError("session carries a reserved organization id")
	}
	return work(ctx, session.OrganizationID, session.UserID)
}

func logBypass(override *Context, err error) {
	outcome := "ok"
	if err != nil {
		outcome = fmt.Sprintf("error: %v", err)
	}
	log.Printf("SECURITY: organization filter bypassed requested_by=%s reason=%q outcome=%s",
		override.RequestedBy, override.Reason, outcome)
}

// AppendOrganizationFilter ANDs the tenant predicate into a query under
// construction. It is the only sanctioned way a service scopes a
// statement to an organization; no service hand-rolls the predicate.
// The bypass sentinel leaves the query unfiltered; an empty
// organization id produces a predicate that matches nothing, since an
// empty string bound against a uuid column would not parse.
func AppendOrganizationFilter(conds []string, args []interface{}, column, organizationID string) ([]string, []interface{}) {
	if organizationID == BypassAllOrganizations {
		return conds, args
	}
	if organizationID == "" {
		conds = append(conds, "FALSE")
		return conds, args
	}
	conds = append(conds, fmt.Sprintf("%s = $%d", column, len(args)+1))
	args = append(args, organizationID)
	return conds, args
}

// AddOrganizationToData decides the organization id persisted on an
// insert. In a scoped context the context's organization always wins, so
// a forged organization id in the payload can never cross tenants. In a
// bypass context the caller must name an explicit target organization.
func AddOrganizationToData(contextOrganizationID, payloadOrganizationID string) (string, error) {
	if contextOrganizationID == BypassAllOrganizations {
		if payloadOrganizationID == "" || payloadOrganizationID == BypassAllOrganizations {
			return "", ErrBypassRequiresOrg
		}
		return payloadOrganizationID, nil
	}
	return contextOrganizationID, nil
}
