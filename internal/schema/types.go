// Package schema defines the declarative table model that drives migrations.
// Tables and fields carry stable numeric identities, so a rename shows up as
// a rename instead of a drop-and-recreate pair, and the differ can match
// declarations across schema versions without guessing from display names.
package schema

import "fmt"

// TableID is the stable identity of a table. It never changes once assigned,
// even when the table's display name does.
type TableID int64

// FieldID is the stable identity of a field within its table.
type FieldID int64

// Schema is the root of a declared schema document.
type Schema struct {
	Tables []TableDefinition `json:"tables" yaml:"tables"`
}

// TableDefinition describes one logical table: its identity, display name,
// declared fields, secondary indexes, uniqueness constraints, and access
// rules. System columns (id, created_at, updated_at, deleted_at) are implied
// and must not be declared.
type TableDefinition struct {
	ID          TableID           `json:"id" yaml:"id"`
	Name        string            `json:"name" yaml:"name"`
	Fields      []FieldDefinition `json:"fields" yaml:"fields"`
	PrimaryKey  PrimaryKeySpec    `json:"primary_key,omitempty" yaml:"primary_key,omitempty"`
	Indexes     []IndexSpec       `json:"indexes,omitempty" yaml:"indexes,omitempty"`
	Uniques     []UniqueSpec      `json:"uniques,omitempty" yaml:"uniques,omitempty"`
	Permissions PermissionSpec    `json:"permissions" yaml:"permissions,omitempty"`
}

// Field returns the field with the given id, or nil.
func (t *TableDefinition) Field(id FieldID) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].ID == id {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldByName returns the field with the given display name, or nil.
func (t *TableDefinition) FieldByName(name string) *FieldDefinition {
	for i := range t.Fields {
		if t.Fields[i].Name == name {
			return &t.Fields[i]
		}
	}
	return nil
}

// FieldDefinition describes one declared field. Virtual kinds (formula,
// rollup, lookup, count, button) never produce a physical column; everything
// about them lives in the schema document and the read path.
type FieldDefinition struct {
	ID       FieldID   `json:"id" yaml:"id"`
	Name     string    `json:"name" yaml:"name"`
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Unique   bool      `json:"unique,omitempty" yaml:"unique,omitempty"`
	Default  *string   `json:"default,omitempty" yaml:"default,omitempty"`
	Options  []string  `json:"options,omitempty" yaml:"options,omitempty"`
	Link     *LinkSpec `json:"link,omitempty" yaml:"link,omitempty"`
}

// Virtual reports whether the field is computed at read time and therefore
// has no physical column.
func (f FieldDefinition) Virtual() bool { return f.Type.Virtual() }

// LinkSpec declares a many-to-one reference to another table. The physical
// column stores the target table's surrogate key and carries a foreign key
// constraint.
type LinkSpec struct {
	Table    TableID `json:"table" yaml:"table"`
	OnDelete string  `json:"on_delete,omitempty" yaml:"on_delete,omitempty"`
}

// Referential actions accepted in LinkSpec.OnDelete. The empty string leaves
// the engine default (NO ACTION) in place.
const (
	OnDeleteCascade  = "cascade"
	OnDeleteSetNull  = "set_null"
	OnDeleteRestrict = "restrict"
)

// PrimaryKeyKind selects the flavor of the generated surrogate key column.
type PrimaryKeyKind string

const (
	// PrimaryKeyAuto renders an auto-incrementing integer key.
	PrimaryKeyAuto PrimaryKeyKind = "auto"
	// PrimaryKeyUUID renders a uuid key filled in by the database.
	PrimaryKeyUUID PrimaryKeyKind = "uuid"
)

// PrimaryKeySpec configures the surrogate key column every table receives.
type PrimaryKeySpec struct {
	Kind PrimaryKeyKind `json:"kind,omitempty" yaml:"kind,omitempty"`
}

// KindOrDefault returns the configured kind, defaulting to auto-increment.
func (p PrimaryKeySpec) KindOrDefault() PrimaryKeyKind {
	if p.Kind == "" {
		return PrimaryKeyAuto
	}
	return p.Kind
}

// IndexSpec declares a secondary index. Fields are referenced by id so the
// index definition survives column renames. Name is optional; when empty a
// deterministic identity-based name is generated.
type IndexSpec struct {
	Name   string    `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []FieldID `json:"fields" yaml:"fields"`
}

// UniqueSpec declares a uniqueness constraint over one or more fields.
type UniqueSpec struct {
	Name   string    `json:"name,omitempty" yaml:"name,omitempty"`
	Fields []FieldID `json:"fields" yaml:"fields"`
}

// System columns added to every physical table.
const (
	SystemColumnID        = "id"
	SystemColumnCreatedAt = "created_at"
	SystemColumnUpdatedAt = "updated_at"
	SystemColumnDeletedAt = "deleted_at"
)

// SystemColumns returns the reserved column names in creation order.
func SystemColumns() []string {
	return []string{SystemColumnID, SystemColumnCreatedAt, SystemColumnUpdatedAt, SystemColumnDeletedAt}
}

// IsSystemColumn reports whether name is reserved for a system column.
func IsSystemColumn(name string) bool {
	switch name {
	case SystemColumnID, SystemColumnCreatedAt, SystemColumnUpdatedAt, SystemColumnDeletedAt:
		return true
	}
	return false
}

// TableByID returns the table with the given id, or nil.
func TableByID(tables []TableDefinition, id TableID) *TableDefinition {
	for i := range tables {
		if tables[i].ID == id {
			return &tables[i]
		}
	}
	return nil
}

// TableByName returns the table with the given display name, or nil.
func TableByName(tables []TableDefinition, name string) *TableDefinition {
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i]
		}
	}
	return nil
}

// Column is a field resolved to its physical form. For link fields, LinkPK
// carries the referenced table's primary key kind, which determines the
// column's storage type.
type Column struct {
	Field  FieldDefinition
	LinkPK PrimaryKeyKind
}

// ResolveColumn resolves one physical field against the set of tables it may
// reference.
func ResolveColumn(tables []TableDefinition, f FieldDefinition) (Column, error) {
	if f.Virtual() {
		return Column{}, fmt.Errorf("field %q is virtual and has no column", f.Name)
	}
	col := Column{Field: f}
	if f.Type == FieldLink {
		if f.Link == nil {
			return Column{}, fmt.Errorf("link field %q has no link target", f.Name)
		}
		target := TableByID(tables, f.Link.Table)
		if target == nil {
			return Column{}, fmt.Errorf("link field %q references unknown table id %d", f.Name, f.Link.Table)
		}
		col.LinkPK = target.PrimaryKey.KindOrDefault()
	}
	return col, nil
}

// PhysicalColumns resolves every physical field of t in declaration order.
func PhysicalColumns(tables []TableDefinition, t *TableDefinition) ([]Column, error) {
	cols := make([]Column, 0, len(t.Fields))
	for _, f := range t.Fields {
		if f.Virtual() {
			continue
		}
		col, err := ResolveColumn(tables, f)
		if err != nil {
			return nil, fmt.Errorf("table %q: %w", t.Name, err)
		}
		cols = append(cols, col)
	}
	return cols, nil
}
