// Package policy compiles table permission rules into row security policies.
// Each rule context has a fixed predicate shape built on the session accessor
// functions the dialect installs at bootstrap; the compiler never interpolates
// caller data into SQL beyond quoting role names and substituting the custom
// rule placeholders.
package policy

import (
	"fmt"
	"strings"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/schema"
)

// Session accessor calls available to compiled predicates. The dialect's
// Bootstrap installs the matching SQL functions.
const (
	AccessorUserID         = "current_user_id()"
	AccessorOrganizationID = "current_organization_id()"
	AccessorTeamID         = "current_team_id()"
	AccessorRole           = "current_user_role()"
)

// placeholders rewrites custom-rule tokens into accessor calls.
var placeholders = strings.NewReplacer(
	"{userId}", AccessorUserID,
	"{organizationId}", AccessorOrganizationID,
	"{teamId}", AccessorTeamID,
	"{roles}", AccessorRole,
)

// target pairs a policy name with the SQL command it guards.
type target struct {
	name    string
	command string
}

// targets lists the policies one operation compiles to. Read and delete map
// to a single policy each; write guards both INSERT and UPDATE, so it splits
// into two.
func targets(table, op string) []target {
	switch op {
	case schema.OpRead:
		return []target{{fmt.Sprintf("rls_%s_read", table), "SELECT"}}
	case schema.OpWrite:
		return []target{
			{fmt.Sprintf("rls_%s_write_insert", table), "INSERT"},
			{fmt.Sprintf("rls_%s_write_update", table), "UPDATE"},
		}
	case schema.OpDelete:
		return []target{{fmt.Sprintf("rls_%s_delete", table), "DELETE"}}
	}
	return nil
}

// Names returns the physical policy names op compiles to for table.
func Names(table, op string) []string {
	ts := targets(table, op)
	names := make([]string, len(ts))
	for i, t := range ts {
		names[i] = t.name
	}
	return names
}

// Compiler renders permission rules for one dialect.
type Compiler struct {
	d dialect.Dialect
}

// NewCompiler returns a compiler rendering policies for d.
func NewCompiler(d dialect.Dialect) *Compiler {
	return &Compiler{d: d}
}

// Predicate renders the boolean expression guarding rows under rule.
func (c *Compiler) Predicate(rule *schema.PermissionRule) (string, error) {
	switch rule.Context {
	case schema.ContextPublic:
		return "true", nil
	case schema.ContextAuthenticated:
		return AccessorUserID + " IS NOT NULL", nil
	case schema.ContextOrganization:
		return fmt.Sprintf("%s = %s", c.d.QuoteIdentifier("organization_id"), AccessorOrganizationID), nil
	case schema.ContextTeam:
		return fmt.Sprintf("%s = %s", c.d.QuoteIdentifier("team_id"), AccessorTeamID), nil
	case schema.ContextRole:
		if len(rule.Roles) == 0 {
			return "", fmt.Errorf("role rule lists no roles")
		}
		quoted := make([]string, len(rule.Roles))
		for i, r := range rule.Roles {
			quoted[i] = "'" + strings.ReplaceAll(r, "'", "''") + "'"
		}
		return fmt.Sprintf("%s IN (%s)", AccessorRole, strings.Join(quoted, ", ")), nil
	case schema.ContextOwner:
		if rule.OwnerField == "" {
			return "", fmt.Errorf("owner rule has no owner_field")
		}
		return fmt.Sprintf("%s = %s", c.d.QuoteIdentifier(rule.OwnerField), AccessorUserID), nil
	case schema.ContextCustom:
		pred := strings.TrimSpace(placeholders.Replace(rule.Condition))
		if pred == "" {
			return "", fmt.Errorf("custom rule has an empty condition")
		}
		return "(" + pred + ")", nil
	}
	return "", fmt.Errorf("unknown permission context %q", rule.Context)
}

// CompileRule renders the policies guarding one operation on table.
func (c *Compiler) CompileRule(table, op string, rule *schema.PermissionRule) ([]dialect.Statement, error) {
	pred, err := c.Predicate(rule)
	if err != nil {
		return nil, fmt.Errorf("table %q %s rule: %w", table, op, err)
	}
	ts := targets(table, op)
	stmts := make([]dialect.Statement, 0, len(ts))
	for _, t := range ts {
		stmts = append(stmts, c.d.CreatePolicy(table, t.name, t.command, pred))
	}
	return stmts, nil
}

// Compile renders the complete policy program for a table, starting with the
// row security toggles. It returns nothing when the table declares no rules.
func (c *Compiler) Compile(t *schema.TableDefinition) ([]dialect.Statement, error) {
	ops := t.Permissions.RuleOperations()
	if len(ops) == 0 {
		return nil, nil
	}
	stmts := c.d.EnableRowSecurity(t.Name)
	for _, op := range ops {
		rendered, err := c.CompileRule(t.Name, op, t.Permissions.Rule(op))
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, rendered...)
	}
	return stmts, nil
}

// Create renders a create_policy operation from a plan.
func (c *Compiler) Create(op diff.Operation) ([]dialect.Statement, error) {
	return c.CompileRule(op.TableName, op.PolicyOp, op.PolicyRule)
}

// Drop renders a drop_policy operation from a plan. When the table was
// renamed in the same plan, FromName carries the name the policies were
// created under; the drop targets the renamed table but keeps the old-name
// derivation.
func (c *Compiler) Drop(op diff.Operation) []dialect.Statement {
	base := op.TableName
	if op.FromName != "" {
		base = op.FromName
	}
	ts := targets(base, op.PolicyOp)
	stmts := make([]dialect.Statement, 0, len(ts))
	for _, t := range ts {
		stmts = append(stmts, c.d.DropPolicy(op.TableName, t.name))
	}
	return stmts
}
