// Package ddl renders an ordered operation plan into executable statements
// for one dialect. Generation is where plans are vetted: destructive
// operations need explicit confirmation, column type changes must be
// widening, and anything the target engine cannot express fails here rather
// than halfway through execution.
package ddl

import (
	"fmt"
	"strings"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/policy"
	"github.com/stratadb/strata/internal/schema"
)

// Options control plan rendering.
type Options struct {
	// AllowDestructive permits drop_column and drop_table operations.
	// Without it a plan containing either fails generation.
	AllowDestructive bool
}

// GenerationError reports a plan that cannot be rendered for the target
// dialect. Ops carries the summaries of every offending operation, so a plan
// with three unconfirmed drops names all three.
type GenerationError struct {
	Dialect string
	Reason  string
	Ops     []string
}

func (e *GenerationError) Error() string {
	if len(e.Ops) == 0 {
		return fmt.Sprintf("%s: %s", e.Dialect, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Dialect, e.Reason, strings.Join(e.Ops, "; "))
}

// Generator renders operation plans for one dialect.
type Generator struct {
	d        dialect.Dialect
	policies *policy.Compiler
}

// NewGenerator returns a generator rendering for d.
func NewGenerator(d dialect.Dialect) *Generator {
	return &Generator{d: d, policies: policy.NewCompiler(d)}
}

func (g *Generator) fail(reason string, ops ...diff.Operation) *GenerationError {
	e := &GenerationError{Dialect: g.d.Name(), Reason: reason}
	for _, op := range ops {
		e.Ops = append(e.Ops, op.String())
	}
	return e
}

// Generate renders ops in order. The returned program includes the dialect
// bootstrap when the plan creates policies, and row security toggles around
// policy changes. Statements keep their operation's summary unless the
// dialect supplied a more specific one.
func (g *Generator) Generate(ops []diff.Operation, opts Options) ([]dialect.Statement, error) {
	if !opts.AllowDestructive {
		if blocked := diff.Destructives(ops); len(blocked) > 0 {
			return nil, g.fail("plan contains destructive operations that require explicit confirmation", blocked...)
		}
	}

	// Tables created by this plan take their link constraints inline when
	// the engine cannot add foreign keys afterwards.
	inline := map[schema.TableID][]dialect.ForeignKey{}
	folded := map[int]bool{}
	if g.d.InlineForeignKeys() {
		created := map[schema.TableID]bool{}
		for _, op := range ops {
			if op.Kind == diff.KindCreateTable {
				created[op.TableID] = true
			}
		}
		for i, op := range ops {
			if op.Kind != diff.KindAddConstraint || op.Constraint.Kind != diff.ConstraintForeignKey {
				continue
			}
			if !created[op.TableID] {
				continue
			}
			inline[op.TableID] = append(inline[op.TableID], foreignKey(op.Constraint))
			folded[i] = true
		}
	}

	var stmts []dialect.Statement
	rowSecurityOn := map[schema.TableID]bool{}

	for i, op := range ops {
		if folded[i] {
			continue
		}
		rendered, err := g.render(ops, i, op, inline, rowSecurityOn)
		if err != nil {
			return nil, err
		}
		for j := range rendered {
			if rendered[j].Summary == "" {
				rendered[j].Summary = op.String()
			}
		}
		stmts = append(stmts, rendered...)
	}

	if hasPolicyCreates(ops) {
		stmts = append(g.d.Bootstrap(), stmts...)
	}
	return stmts, nil
}

func (g *Generator) render(ops []diff.Operation, i int, op diff.Operation, inline map[schema.TableID][]dialect.ForeignKey, rowSecurityOn map[schema.TableID]bool) ([]dialect.Statement, error) {
	switch op.Kind {
	case diff.KindRenameTable:
		return []dialect.Statement{g.d.RenameTable(op.FromName, op.ToName)}, nil

	case diff.KindCreateTable:
		rendered, err := g.d.CreateTable(op.Table, op.Columns, inline[op.TableID])
		if err != nil {
			return nil, g.fail(err.Error(), op)
		}
		return rendered, nil

	case diff.KindDropTable:
		return []dialect.Statement{g.d.DropTable(op.TableName)}, nil

	case diff.KindAddColumn:
		st, err := g.d.AddColumn(op.TableName, *op.Column)
		if err != nil {
			return nil, g.fail(err.Error(), op)
		}
		return []dialect.Statement{st}, nil

	case diff.KindRenameColumn:
		return []dialect.Statement{g.d.RenameColumn(op.TableName, op.FromName, op.ToName)}, nil

	case diff.KindAlterColumnType:
		if op.TypeChanged && !schema.CompatibleAlter(op.FromType, op.ToType) {
			return nil, g.fail(fmt.Sprintf("type change %s -> %s could lose data", op.FromType, op.ToType), op)
		}
		changes := dialect.AlterChanges{
			Type:     op.TypeChanged,
			Required: op.RequiredChanged,
			Default:  op.DefaultChanged,
		}
		rendered, err := g.d.AlterColumn(op.TableName, *op.Column, changes)
		if err != nil {
			return nil, g.fail(err.Error(), op)
		}
		return rendered, nil

	case diff.KindDropColumn:
		return []dialect.Statement{g.d.DropColumn(op.TableName, op.ColumnName)}, nil

	case diff.KindAddIndex:
		return []dialect.Statement{g.d.CreateIndex(op.TableName, op.Index.Name, op.Index.Columns)}, nil

	case diff.KindDropIndex:
		return []dialect.Statement{g.d.DropIndex(op.TableName, op.Index.Name)}, nil

	case diff.KindAddConstraint:
		if op.Constraint.Kind == diff.ConstraintForeignKey {
			if !g.d.SupportsAlterForeignKeys() {
				return nil, g.fail("cannot add a foreign key to an existing table", op)
			}
			return []dialect.Statement{g.d.AddForeignKey(op.TableName, foreignKey(op.Constraint))}, nil
		}
		return []dialect.Statement{g.d.AddUnique(op.TableName, op.Constraint.Name, op.Constraint.Columns)}, nil

	case diff.KindDropConstraint:
		if op.Constraint.Kind == diff.ConstraintForeignKey && !g.d.SupportsAlterForeignKeys() {
			return nil, g.fail("cannot drop a foreign key constraint", op)
		}
		return []dialect.Statement{g.d.DropConstraint(op.TableName, op.Constraint.Name, string(op.Constraint.Kind))}, nil

	case diff.KindCreatePolicy:
		if !g.d.SupportsRowPolicies() {
			return nil, g.fail("row security policies are not supported", op)
		}
		var out []dialect.Statement
		if !rowSecurityOn[op.TableID] {
			out = append(out, g.d.EnableRowSecurity(op.TableName)...)
			rowSecurityOn[op.TableID] = true
		}
		rendered, err := g.policies.Create(op)
		if err != nil {
			return nil, g.fail(err.Error(), op)
		}
		return append(out, rendered...), nil

	case diff.KindDropPolicy:
		if !g.d.SupportsRowPolicies() {
			return nil, g.fail("row security policies are not supported", op)
		}
		// The table already has row security enabled in the database;
		// creates later in the plan must not re-enable it.
		rowSecurityOn[op.TableID] = true
		out := g.policies.Drop(op)
		if op.PolicyRemaining == 0 && lastPolicyDropFor(ops, i, op.TableID) {
			out = append(out, g.d.DisableRowSecurity(op.TableName)...)
		}
		return out, nil
	}
	return nil, g.fail(fmt.Sprintf("unknown operation kind %q", op.Kind), op)
}

func foreignKey(c *diff.ConstraintDef) dialect.ForeignKey {
	return dialect.ForeignKey{
		Name:      c.Name,
		Column:    c.Columns[0],
		RefTable:  c.RefTable,
		RefColumn: c.RefColumn,
		OnDelete:  c.OnDelete,
	}
}

func hasPolicyCreates(ops []diff.Operation) bool {
	for _, op := range ops {
		if op.Kind == diff.KindCreatePolicy {
			return true
		}
	}
	return false
}

func lastPolicyDropFor(ops []diff.Operation, i int, id schema.TableID) bool {
	for j := i + 1; j < len(ops); j++ {
		if ops[j].Kind == diff.KindDropPolicy && ops[j].TableID == id {
			return false
		}
	}
	return true
}
