package access

import (
	"errors"
	"fmt"

	"github.com/stratadb/strata/internal/schema"
)

var (
	// ErrUnauthenticated means the operation needs a bound user identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrForbidden means the identity is known but not allowed. Callers
	// resolving single rows should answer not-found for rows outside the
	// caller's scope so a probe cannot distinguish "exists" from "denied".
	ErrForbidden = errors.New("forbidden")
)

// Authorize applies the table-level pre-check for one operation (OpRead,
// OpWrite, OpDelete). It mirrors what the database enforces: a table with
// no rules at all is open, while a table with any rule denies operations it
// declares no rule for. Row membership (owner, organization, team, custom
// predicates) is the database's half and is not decided here.
func Authorize(id *Identity, t *schema.TableDefinition, op string) error {
	rule := t.Permissions.Rule(op)
	if rule == nil {
		if len(t.Permissions.RuleOperations()) == 0 {
			return nil
		}
		return fmt.Errorf("%s %s: %w", op, t.Name, ErrForbidden)
	}
	switch rule.Context {
	case schema.ContextPublic:
		return nil
	case schema.ContextAuthenticated, schema.ContextOwner:
		if !id.Authenticated() {
			return fmt.Errorf("%s %s: %w", op, t.Name, ErrUnauthenticated)
		}
		return nil
	case schema.ContextOrganization:
		if !id.Authenticated() {
			return fmt.Errorf("%s %s: %w", op, t.Name, ErrUnauthenticated)
		}
		if id.OrganizationID == 0 {
			return fmt.Errorf("%s %s: no organization: %w", op, t.Name, ErrForbidden)
		}
		return nil
	case schema.ContextTeam:
		if !id.Authenticated() {
			return fmt.Errorf("%s %s: %w", op, t.Name, ErrUnauthenticated)
		}
		if id.TeamID == 0 {
			return fmt.Errorf("%s %s: no team: %w", op, t.Name, ErrForbidden)
		}
		return nil
	case schema.ContextRole:
		if !id.Authenticated() {
			return fmt.Errorf("%s %s: %w", op, t.Name, ErrUnauthenticated)
		}
		for _, role := range rule.Roles {
			if id.HasRole(role) {
				return nil
			}
		}
		return fmt.Errorf("%s %s: %w", op, t.Name, ErrForbidden)
	case schema.ContextCustom:
		// Custom predicates are evaluated by the database against the
		// bound session; nothing to pre-check.
		return nil
	}
	return fmt.Errorf("%s %s: unknown permission context %q", op, t.Name, rule.Context)
}
