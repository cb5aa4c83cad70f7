package access

import "github.com/stratadb/strata/internal/schema"

// ReadableFields filters t's fields down to those the identity may read.
// Fields without a read rule are visible to anyone who can read the row.
func ReadableFields(id *Identity, t *schema.TableDefinition) []schema.FieldDefinition {
	out := make([]schema.FieldDefinition, 0, len(t.Fields))
	for _, f := range t.Fields {
		if roleAllowed(id, readRoles(t, f.ID)) {
			out = append(out, f)
		}
	}
	return out
}

// WritableFields filters t's fields down to those the identity may write.
// Virtual and database-managed fields are never writable.
func WritableFields(id *Identity, t *schema.TableDefinition) []schema.FieldDefinition {
	out := make([]schema.FieldDefinition, 0, len(t.Fields))
	for _, f := range t.Fields {
		if !writableKind(f.Type) {
			continue
		}
		if roleAllowed(id, writeRoles(t, f.ID)) {
			out = append(out, f)
		}
	}
	return out
}

func writableKind(ft schema.FieldType) bool {
	if ft.Virtual() {
		return false
	}
	switch ft {
	case schema.FieldAutoNumber, schema.FieldCreatedBy, schema.FieldUpdatedBy:
		return false
	}
	return true
}

func readRoles(t *schema.TableDefinition, id schema.FieldID) []string {
	for _, r := range t.Permissions.FieldRules {
		if r.Field == id {
			return r.ReadRoles
		}
	}
	return nil
}

func writeRoles(t *schema.TableDefinition, id schema.FieldID) []string {
	for _, r := range t.Permissions.FieldRules {
		if r.Field == id {
			return r.WriteRoles
		}
	}
	return nil
}

// roleAllowed treats an empty role list as unrestricted.
func roleAllowed(id *Identity, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	for _, r := range roles {
		if id.HasRole(r) {
			return true
		}
	}
	return false
}
