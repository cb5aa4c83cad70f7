package schema

// PermissionContext scopes who a permission rule applies to.
type PermissionContext string

const (
	// ContextPublic grants the operation to everyone, including anonymous
	// callers.
	ContextPublic PermissionContext = "public"
	// ContextAuthenticated grants the operation to any caller with a bound
	// user identity.
	ContextAuthenticated PermissionContext = "authenticated"
	// ContextOrganization restricts rows to the caller's organization via the
	// table's organization_id column.
	ContextOrganization PermissionContext = "organization"
	// ContextTeam restricts rows to the caller's team via the table's
	// team_id column.
	ContextTeam PermissionContext = "team"
	// ContextRole grants the operation to callers holding one of the listed
	// roles.
	ContextRole PermissionContext = "role"
	// ContextOwner restricts rows to those whose owner field matches the
	// caller's user id.
	ContextOwner PermissionContext = "owner"
	// ContextCustom uses a caller-supplied predicate with placeholder
	// substitution.
	ContextCustom PermissionContext = "custom"
)

// ValidContext reports whether ctx is a recognized permission context.
func ValidContext(ctx PermissionContext) bool {
	switch ctx {
	case ContextPublic, ContextAuthenticated, ContextOrganization,
		ContextTeam, ContextRole, ContextOwner, ContextCustom:
		return true
	}
	return false
}

// Operations guarded by table permission rules.
const (
	OpRead   = "read"
	OpWrite  = "write"
	OpDelete = "delete"
)

// PermissionSpec declares row- and field-level access for a table. Read,
// Write, and Delete compile into row security policies on dialects that
// support them; FieldRules are enforced by the application layer only and
// never touch the database.
type PermissionSpec struct {
	Read       *PermissionRule `json:"read,omitempty" yaml:"read,omitempty"`
	Write      *PermissionRule `json:"write,omitempty" yaml:"write,omitempty"`
	Delete     *PermissionRule `json:"delete,omitempty" yaml:"delete,omitempty"`
	FieldRules []FieldRule     `json:"field_rules,omitempty" yaml:"field_rules,omitempty"`
}

// Rule returns the rule declared for op (OpRead, OpWrite, OpDelete), or nil.
func (p PermissionSpec) Rule(op string) *PermissionRule {
	switch op {
	case OpRead:
		return p.Read
	case OpWrite:
		return p.Write
	case OpDelete:
		return p.Delete
	}
	return nil
}

// RuleOperations lists the operations with a declared rule, in canonical
// read, write, delete order.
func (p PermissionSpec) RuleOperations() []string {
	var ops []string
	if p.Read != nil {
		ops = append(ops, OpRead)
	}
	if p.Write != nil {
		ops = append(ops, OpWrite)
	}
	if p.Delete != nil {
		ops = append(ops, OpDelete)
	}
	return ops
}

// PermissionRule is one row-access rule. Roles is only meaningful for the
// role context, OwnerField for the owner context, and Condition for the
// custom context.
type PermissionRule struct {
	Context    PermissionContext `json:"context" yaml:"context"`
	Roles      []string          `json:"roles,omitempty" yaml:"roles,omitempty"`
	OwnerField string            `json:"owner_field,omitempty" yaml:"owner_field,omitempty"`
	Condition  string            `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// Equal reports whether two rules are identical.
func (r *PermissionRule) Equal(o *PermissionRule) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Context != o.Context || r.OwnerField != o.OwnerField || r.Condition != o.Condition {
		return false
	}
	if len(r.Roles) != len(o.Roles) {
		return false
	}
	for i := range r.Roles {
		if r.Roles[i] != o.Roles[i] {
			return false
		}
	}
	return true
}

// FieldRule restricts reading or writing one field to the named roles. An
// empty role list leaves that side unrestricted.
type FieldRule struct {
	Field      FieldID  `json:"field" yaml:"field"`
	ReadRoles  []string `json:"read_roles,omitempty" yaml:"read_roles,omitempty"`
	WriteRoles []string `json:"write_roles,omitempty" yaml:"write_roles,omitempty"`
}
