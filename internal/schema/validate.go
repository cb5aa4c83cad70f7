package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationError reports a schema document that cannot be migrated as
// declared. Validation runs before diffing, so a malformed document never
// produces SQL.
type ValidationError struct {
	Table string // display name of the offending table, if known
	Field string // display name of the offending field, if known
	Msg   string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Table != "" && e.Field != "":
		return fmt.Sprintf("schema validation: table %q, field %q: %s", e.Table, e.Field, e.Msg)
	case e.Table != "":
		return fmt.Sprintf("schema validation: table %q: %s", e.Table, e.Msg)
	default:
		return fmt.Sprintf("schema validation: %s", e.Msg)
	}
}

func invalidf(table, field, format string, args ...any) *ValidationError {
	return &ValidationError{Table: table, Field: field, Msg: fmt.Sprintf(format, args...)}
}

// identifierRegex validates SQL identifiers (table and column names).
// Must start with a letter or underscore, followed by alphanumeric or
// underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the portable identifier limit. Postgres truncates at
// 63 bytes; staying under it keeps generated names stable across dialects.
const maxIdentifierLen = 63

// sqlReservedWords contains SQL keywords rejected as identifiers. Generated
// DDL quotes every identifier, so this is a defense-in-depth measure that
// keeps declared names usable in hand-written queries too.
var sqlReservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "DATABASE": true,
	"GRANT": true, "REVOKE": true, "INDEX": true, "VIEW": true,
	"PROCEDURE": true, "FUNCTION": true, "TRIGGER": true, "SCHEMA": true,
	"ORDER": true, "GROUP": true, "POLICY": true, "CONSTRAINT": true,
}

// reservedTableNames are claimed by migration bookkeeping.
var reservedTableNames = map[string]bool{
	"schema_checksum":   true,
	"migration_history": true,
	"migration_log":     true,
}

// ValidateIdentifier ensures a declared name is usable as a SQL identifier.
// It rejects empty strings, strings over the portable length limit, strings
// that don't match the identifier pattern, and SQL reserved words.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("identifier too long (max %d chars): %q", maxIdentifierLen, name)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
	}
	if sqlReservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// Validate checks a schema document and returns the first problem found as a
// *ValidationError.
func Validate(s *Schema) error {
	return ValidateTables(s.Tables)
}

// ValidateTables checks a set of table definitions. It verifies identity
// uniqueness, identifier safety, field typing, link targets, index and
// constraint references, and permission rules.
func ValidateTables(tables []TableDefinition) error {
	ids := make(map[TableID]string, len(tables))
	names := make(map[string]string, len(tables))
	for i := range tables {
		t := &tables[i]
		if t.ID <= 0 {
			return invalidf(t.Name, "", "table id must be positive, got %d", t.ID)
		}
		if prev, ok := ids[t.ID]; ok {
			return invalidf(t.Name, "", "table id %d already used by table %q", t.ID, prev)
		}
		ids[t.ID] = t.Name
		if err := ValidateIdentifier(t.Name); err != nil {
			return invalidf(t.Name, "", "%v", err)
		}
		if reservedTableNames[strings.ToLower(t.Name)] {
			return invalidf(t.Name, "", "table name is reserved for migration bookkeeping")
		}
		lower := strings.ToLower(t.Name)
		if prev, ok := names[lower]; ok {
			return invalidf(t.Name, "", "table name collides with table %q", prev)
		}
		names[lower] = t.Name
	}
	for i := range tables {
		if err := validateTable(tables, &tables[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateTable(tables []TableDefinition, t *TableDefinition) error {
	switch t.PrimaryKey.Kind {
	case "", PrimaryKeyAuto, PrimaryKeyUUID:
	default:
		return invalidf(t.Name, "", "unknown primary key kind %q", t.PrimaryKey.Kind)
	}

	fieldIDs := make(map[FieldID]string, len(t.Fields))
	fieldNames := make(map[string]string, len(t.Fields))
	for _, f := range t.Fields {
		if err := validateField(tables, t, f, fieldIDs, fieldNames); err != nil {
			return err
		}
	}

	for _, idx := range t.Indexes {
		if err := validateKeyedFields(t, "index", idx.Name, idx.Fields); err != nil {
			return err
		}
	}
	for _, uq := range t.Uniques {
		if err := validateKeyedFields(t, "unique constraint", uq.Name, uq.Fields); err != nil {
			return err
		}
	}

	return validatePermissions(t)
}

func validateField(tables []TableDefinition, t *TableDefinition, f FieldDefinition, ids map[FieldID]string, names map[string]string) error {
	if f.ID <= 0 {
		return invalidf(t.Name, f.Name, "field id must be positive, got %d", f.ID)
	}
	if prev, ok := ids[f.ID]; ok {
		return invalidf(t.Name, f.Name, "field id %d already used by field %q", f.ID, prev)
	}
	ids[f.ID] = f.Name
	if err := ValidateIdentifier(f.Name); err != nil {
		return invalidf(t.Name, f.Name, "%v", err)
	}
	if IsSystemColumn(f.Name) {
		return invalidf(t.Name, f.Name, "field name collides with a system column")
	}
	lower := strings.ToLower(f.Name)
	if prev, ok := names[lower]; ok {
		return invalidf(t.Name, f.Name, "field name collides with field %q", prev)
	}
	names[lower] = f.Name

	if !f.Type.Valid() {
		return invalidf(t.Name, f.Name, "unknown field type %q", f.Type)
	}
	if f.Virtual() {
		if f.Required {
			return invalidf(t.Name, f.Name, "virtual field cannot be required")
		}
		if f.Unique {
			return invalidf(t.Name, f.Name, "virtual field cannot be unique")
		}
		if f.Default != nil {
			return invalidf(t.Name, f.Name, "virtual field cannot have a default")
		}
		if f.Link != nil {
			return invalidf(t.Name, f.Name, "virtual field cannot declare a link")
		}
		return nil
	}

	if f.Type == FieldLink {
		if f.Link == nil {
			return invalidf(t.Name, f.Name, "link field must declare a link target")
		}
		if TableByID(tables, f.Link.Table) == nil {
			return invalidf(t.Name, f.Name, "link references unknown table id %d", f.Link.Table)
		}
		switch f.Link.OnDelete {
		case "", OnDeleteCascade, OnDeleteSetNull, OnDeleteRestrict:
		default:
			return invalidf(t.Name, f.Name, "unknown on_delete action %q", f.Link.OnDelete)
		}
		if f.Link.OnDelete == OnDeleteSetNull && f.Required {
			return invalidf(t.Name, f.Name, "on_delete set_null conflicts with required")
		}
	} else if f.Link != nil {
		return invalidf(t.Name, f.Name, "only link fields may declare a link")
	}

	if f.Type == FieldAutoNumber && f.Default != nil {
		return invalidf(t.Name, f.Name, "auto_number field cannot have a default")
	}
	if len(f.Options) > 0 && f.Type != FieldSingleSelect && f.Type != FieldMultiSelect {
		return invalidf(t.Name, f.Name, "options are only valid for select fields")
	}
	return nil
}

func validateKeyedFields(t *TableDefinition, kind, name string, fields []FieldID) error {
	if name != "" {
		if err := ValidateIdentifier(name); err != nil {
			return invalidf(t.Name, "", "%s name: %v", kind, err)
		}
	}
	if len(fields) == 0 {
		return invalidf(t.Name, "", "%s declares no fields", kind)
	}
	seen := make(map[FieldID]bool, len(fields))
	for _, id := range fields {
		f := t.Field(id)
		if f == nil {
			return invalidf(t.Name, "", "%s references unknown field id %d", kind, id)
		}
		if f.Virtual() {
			return invalidf(t.Name, f.Name, "%s references a virtual field", kind)
		}
		if seen[id] {
			return invalidf(t.Name, f.Name, "%s lists field id %d twice", kind, id)
		}
		seen[id] = true
	}
	return nil
}

func validatePermissions(t *TableDefinition) error {
	for _, op := range []string{OpRead, OpWrite, OpDelete} {
		rule := t.Permissions.Rule(op)
		if rule == nil {
			continue
		}
		if err := validateRule(t, op, rule); err != nil {
			return err
		}
	}
	seen := make(map[FieldID]bool, len(t.Permissions.FieldRules))
	for _, fr := range t.Permissions.FieldRules {
		f := t.Field(fr.Field)
		if f == nil {
			return invalidf(t.Name, "", "field rule references unknown field id %d", fr.Field)
		}
		if seen[fr.Field] {
			return invalidf(t.Name, f.Name, "field has more than one field rule")
		}
		seen[fr.Field] = true
	}
	return nil
}

func validateRule(t *TableDefinition, op string, rule *PermissionRule) error {
	if !ValidContext(rule.Context) {
		return invalidf(t.Name, "", "%s rule: unknown permission context %q", op, rule.Context)
	}
	if len(rule.Roles) > 0 && rule.Context != ContextRole {
		return invalidf(t.Name, "", "%s rule: roles are only valid with the role context", op)
	}
	if rule.Condition != "" && rule.Context != ContextCustom {
		return invalidf(t.Name, "", "%s rule: condition is only valid with the custom context", op)
	}
	switch rule.Context {
	case ContextRole:
		if len(rule.Roles) == 0 {
			return invalidf(t.Name, "", "%s rule: role context requires at least one role", op)
		}
	case ContextOwner:
		if rule.OwnerField == "" {
			return invalidf(t.Name, "", "%s rule: owner context requires an owner field", op)
		}
		f := t.FieldByName(rule.OwnerField)
		if f == nil {
			return invalidf(t.Name, "", "%s rule: owner field %q does not exist", op, rule.OwnerField)
		}
		if f.Virtual() {
			return invalidf(t.Name, f.Name, "%s rule: owner field is virtual", op)
		}
	case ContextCustom:
		if rule.Condition == "" {
			return invalidf(t.Name, "", "%s rule: custom context requires a condition", op)
		}
	case ContextOrganization:
		if f := t.FieldByName("organization_id"); f == nil || f.Virtual() {
			return invalidf(t.Name, "", "%s rule: organization context requires a physical organization_id field", op)
		}
	case ContextTeam:
		if f := t.FieldByName("team_id"); f == nil || f.Virtual() {
			return invalidf(t.Name, "", "%s rule: team context requires a physical team_id field", op)
		}
	}
	if rule.OwnerField != "" && rule.Context != ContextOwner {
		return invalidf(t.Name, "", "%s rule: owner_field is only valid with the owner context", op)
	}
	return nil
}
