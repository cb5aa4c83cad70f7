// Package diff compares two schema versions by stable identity and produces
// the ordered structural operations that carry one into the other. Fields and
// tables are matched on their numeric ids, so a renamed declaration becomes a
// rename operation instead of a drop-and-recreate pair.
package diff

import (
	"fmt"
	"strings"

	"github.com/stratadb/strata/internal/schema"
)

// Kind tags one structural operation.
type Kind string

const (
	KindCreateTable     Kind = "create_table"
	KindDropTable       Kind = "drop_table"
	KindRenameTable     Kind = "rename_table"
	KindAddColumn       Kind = "add_column"
	KindDropColumn      Kind = "drop_column"
	KindRenameColumn    Kind = "rename_column"
	KindAlterColumnType Kind = "alter_column_type"
	KindAddIndex        Kind = "add_index"
	KindDropIndex       Kind = "drop_index"
	KindAddConstraint   Kind = "add_constraint"
	KindDropConstraint  Kind = "drop_constraint"
	KindCreatePolicy    Kind = "create_policy"
	KindDropPolicy      Kind = "drop_policy"
)

// ConstraintKind distinguishes the two constraint families carried by
// AddConstraint and DropConstraint operations.
type ConstraintKind string

const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// IndexDef is an index resolved to physical names, ready for rendering.
type IndexDef struct {
	Name    string
	Columns []string
}

// ConstraintDef is a uniqueness or foreign key constraint resolved to
// physical names.
type ConstraintDef struct {
	Kind      ConstraintKind
	Name      string
	Columns   []string
	RefTable  string // foreign key only
	RefColumn string // foreign key only
	OnDelete  string // foreign key only; schema.OnDelete* or empty
}

// Operation is one structural step. Kind decides which fields are set; every
// name it carries is the physical name in effect at the point the operation
// executes, so renames earlier in the plan are already accounted for.
type Operation struct {
	Kind      Kind
	TableID   schema.TableID
	TableName string

	// CreateTable and CreatePolicy.
	Table   *schema.TableDefinition
	Columns []schema.Column

	// Column operations.
	Column          *schema.Column
	ColumnName      string
	FromName        string
	ToName          string
	FromType        schema.FieldType
	ToType          schema.FieldType
	TypeChanged     bool
	RequiredChanged bool
	DefaultChanged  bool

	// Index and constraint operations.
	Index      *IndexDef
	Constraint *ConstraintDef

	// Policy operations. PolicyRemaining carries the number of rules the
	// table has after the whole plan applies, so rendering knows when row
	// security can be switched off.
	PolicyOp        string
	PolicyRule      *schema.PermissionRule
	PolicyRemaining int
}

// Destructive reports whether the operation discards stored data.
func (o Operation) Destructive() bool {
	return o.Kind == KindDropTable || o.Kind == KindDropColumn
}

// String renders a short human-readable summary used in plans and logs.
func (o Operation) String() string {
	switch o.Kind {
	case KindCreateTable:
		return fmt.Sprintf("create_table %s", o.TableName)
	case KindDropTable:
		return fmt.Sprintf("drop_table %s", o.TableName)
	case KindRenameTable:
		return fmt.Sprintf("rename_table %s -> %s", o.FromName, o.ToName)
	case KindAddColumn:
		return fmt.Sprintf("add_column %s.%s", o.TableName, o.Column.Field.Name)
	case KindDropColumn:
		return fmt.Sprintf("drop_column %s.%s", o.TableName, o.ColumnName)
	case KindRenameColumn:
		return fmt.Sprintf("rename_column %s.%s -> %s", o.TableName, o.FromName, o.ToName)
	case KindAlterColumnType:
		if o.TypeChanged {
			return fmt.Sprintf("alter_column %s.%s %s -> %s", o.TableName, o.ColumnName, o.FromType, o.ToType)
		}
		return fmt.Sprintf("alter_column %s.%s", o.TableName, o.ColumnName)
	case KindAddIndex:
		return fmt.Sprintf("add_index %s on %s (%s)", o.Index.Name, o.TableName, strings.Join(o.Index.Columns, ", "))
	case KindDropIndex:
		return fmt.Sprintf("drop_index %s on %s", o.Index.Name, o.TableName)
	case KindAddConstraint:
		return fmt.Sprintf("add_%s %s on %s", o.Constraint.Kind, o.Constraint.Name, o.TableName)
	case KindDropConstraint:
		return fmt.Sprintf("drop_%s %s on %s", o.Constraint.Kind, o.Constraint.Name, o.TableName)
	case KindCreatePolicy:
		return fmt.Sprintf("create_policy %s %s", o.TableName, o.PolicyOp)
	case KindDropPolicy:
		return fmt.Sprintf("drop_policy %s %s", o.TableName, o.PolicyOp)
	}
	return string(o.Kind)
}

// Destructives filters the operations that would discard data.
func Destructives(ops []Operation) []Operation {
	var out []Operation
	for _, op := range ops {
		if op.Destructive() {
			out = append(out, op)
		}
	}
	return out
}

// indexName returns the declared index name, or a deterministic
// identity-based one. Identity-based names survive both table and column
// renames.
func indexName(tableID schema.TableID, spec schema.IndexSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	parts := make([]string, len(spec.Fields))
	for i, id := range spec.Fields {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("idx_t%d_f%s", tableID, strings.Join(parts, "_"))
}

// uniqueName is the identity-based name for a uniqueness constraint.
func uniqueName(tableID schema.TableID, spec schema.UniqueSpec) string {
	if spec.Name != "" {
		return spec.Name
	}
	parts := make([]string, len(spec.Fields))
	for i, id := range spec.Fields {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return fmt.Sprintf("uq_t%d_f%s", tableID, strings.Join(parts, "_"))
}

// foreignKeyName is the identity-based name for a link field's constraint.
func foreignKeyName(tableID schema.TableID, fieldID schema.FieldID) string {
	return fmt.Sprintf("fk_t%d_f%d", tableID, fieldID)
}
