package diff

import (
	"fmt"

	"github.com/stratadb/strata/internal/schema"
)

// Compute diffs two table sets and returns operations in execution order:
// table renames, table creates in dependency order, column renames, column
// alters, column adds, constraint and index drops, index and constraint
// adds, policy drops, policy creates, column drops, and finally table drops
// in reverse dependency order. The desired set is validated first; a
// malformed document produces no operations at all.
func Compute(current, desired []schema.TableDefinition) ([]Operation, error) {
	if err := schema.ValidateTables(desired); err != nil {
		return nil, err
	}

	currentByID := make(map[schema.TableID]*schema.TableDefinition, len(current))
	for i := range current {
		currentByID[current[i].ID] = &current[i]
	}
	desiredByID := make(map[schema.TableID]*schema.TableDefinition, len(desired))
	for i := range desired {
		desiredByID[desired[i].ID] = &desired[i]
	}

	var b buckets

	// Created tables, link targets first.
	var created []*schema.TableDefinition
	for i := range desired {
		if currentByID[desired[i].ID] == nil {
			created = append(created, &desired[i])
		}
	}
	for _, t := range orderByLinks(created) {
		cols, err := schema.PhysicalColumns(desired, t)
		if err != nil {
			return nil, err
		}
		b.createTables = append(b.createTables, Operation{
			Kind: KindCreateTable, TableID: t.ID, TableName: t.Name,
			Table: t, Columns: cols,
		})
		for _, k := range tableIndexes(t) {
			b.addIndexes = append(b.addIndexes, Operation{
				Kind: KindAddIndex, TableID: t.ID, TableName: t.Name, Index: &k.def,
			})
		}
		cons, err := tableConstraints(desired, t)
		if err != nil {
			return nil, err
		}
		for _, k := range cons {
			b.addConstraints = append(b.addConstraints, Operation{
				Kind: KindAddConstraint, TableID: t.ID, TableName: t.Name, Constraint: &k.def,
			})
		}
		appendPolicyCreates(&b, t)
	}

	// Matched tables, desired declaration order.
	for i := range desired {
		dt := &desired[i]
		ct := currentByID[dt.ID]
		if ct == nil {
			continue
		}
		if ct.PrimaryKey.KindOrDefault() != dt.PrimaryKey.KindOrDefault() {
			return nil, fmt.Errorf("table %q: primary key kind cannot change once created", dt.Name)
		}
		if ct.Name != dt.Name {
			b.renameTables = append(b.renameTables, Operation{
				Kind: KindRenameTable, TableID: dt.ID, TableName: dt.Name,
				FromName: ct.Name, ToName: dt.Name,
			})
		}
		if err := diffFields(current, desired, ct, dt, &b); err != nil {
			return nil, err
		}
		if err := diffKeyed(current, desired, ct, dt, &b); err != nil {
			return nil, err
		}
		diffPolicies(ct, dt, &b)
	}

	// Dropped tables, referrers before their targets.
	var dropped []*schema.TableDefinition
	for i := range current {
		if desiredByID[current[i].ID] == nil {
			dropped = append(dropped, &current[i])
		}
	}
	orderedDrops := orderByLinks(dropped)
	for i := len(orderedDrops) - 1; i >= 0; i-- {
		t := orderedDrops[i]
		b.dropTables = append(b.dropTables, Operation{
			Kind: KindDropTable, TableID: t.ID, TableName: t.Name,
		})
	}

	return b.ordered(), nil
}

// buckets collects operations per tier so emission order inside Compute
// never depends on map iteration.
type buckets struct {
	renameTables    []Operation
	createTables    []Operation
	renameColumns   []Operation
	alterColumns    []Operation
	addColumns      []Operation
	dropConstraints []Operation
	dropIndexes     []Operation
	addIndexes      []Operation
	addConstraints  []Operation
	dropPolicies    []Operation
	createPolicies  []Operation
	dropColumns     []Operation
	dropTables      []Operation
}

func (b *buckets) ordered() []Operation {
	var ops []Operation
	for _, group := range [][]Operation{
		b.renameTables, b.createTables, b.renameColumns, b.alterColumns,
		b.addColumns, b.dropConstraints, b.dropIndexes, b.addIndexes,
		b.addConstraints, b.dropPolicies, b.createPolicies,
		b.dropColumns, b.dropTables,
	} {
		ops = append(ops, group...)
	}
	return ops
}

func diffFields(current, desired []schema.TableDefinition, ct, dt *schema.TableDefinition, b *buckets) error {
	matched := make(map[schema.FieldID]bool, len(dt.Fields))
	for _, df := range dt.Fields {
		cf := ct.Field(df.ID)
		if cf != nil {
			matched[df.ID] = true
		}
		switch {
		case cf == nil && df.Virtual():
			// new virtual field, nothing stored
		case cf == nil:
			col, err := schema.ResolveColumn(desired, df)
			if err != nil {
				return fmt.Errorf("table %q: %w", dt.Name, err)
			}
			b.addColumns = append(b.addColumns, Operation{
				Kind: KindAddColumn, TableID: dt.ID, TableName: dt.Name, Column: &col,
			})
		case cf.Virtual() && df.Virtual():
			// stays virtual, nothing stored
		case cf.Virtual():
			// materialized: the column appears for the first time
			col, err := schema.ResolveColumn(desired, df)
			if err != nil {
				return fmt.Errorf("table %q: %w", dt.Name, err)
			}
			b.addColumns = append(b.addColumns, Operation{
				Kind: KindAddColumn, TableID: dt.ID, TableName: dt.Name, Column: &col,
			})
		case df.Virtual():
			// dematerialized: the stored column goes away
			b.dropColumns = append(b.dropColumns, Operation{
				Kind: KindDropColumn, TableID: dt.ID, TableName: dt.Name, ColumnName: cf.Name,
			})
		default:
			if err := diffColumn(current, desired, ct, dt, cf, df, b); err != nil {
				return err
			}
		}
	}
	for _, cf := range ct.Fields {
		if matched[cf.ID] || cf.Virtual() {
			continue
		}
		b.dropColumns = append(b.dropColumns, Operation{
			Kind: KindDropColumn, TableID: dt.ID, TableName: dt.Name, ColumnName: cf.Name,
		})
	}
	return nil
}

func diffColumn(current, desired []schema.TableDefinition, ct, dt *schema.TableDefinition, cf *schema.FieldDefinition, df schema.FieldDefinition, b *buckets) error {
	if cf.Name != df.Name {
		b.renameColumns = append(b.renameColumns, Operation{
			Kind: KindRenameColumn, TableID: dt.ID, TableName: dt.Name,
			FromName: cf.Name, ToName: df.Name,
		})
	}

	currentCol, err := schema.ResolveColumn(current, *cf)
	if err != nil {
		return fmt.Errorf("table %q: %w", ct.Name, err)
	}
	desiredCol, err := schema.ResolveColumn(desired, df)
	if err != nil {
		return fmt.Errorf("table %q: %w", dt.Name, err)
	}

	typeChanged := cf.Type != df.Type || currentCol.LinkPK != desiredCol.LinkPK
	requiredChanged := cf.Required != df.Required
	defaultChanged := !stringPtrEqual(cf.Default, df.Default)
	if !typeChanged && !requiredChanged && !defaultChanged {
		return nil
	}
	b.alterColumns = append(b.alterColumns, Operation{
		Kind: KindAlterColumnType, TableID: dt.ID, TableName: dt.Name,
		Column: &desiredCol, ColumnName: df.Name,
		FromType: cf.Type, ToType: df.Type,
		TypeChanged: typeChanged, RequiredChanged: requiredChanged, DefaultChanged: defaultChanged,
	})
	return nil
}

func diffKeyed(current, desired []schema.TableDefinition, ct, dt *schema.TableDefinition, b *buckets) error {
	curIdx := tableIndexes(ct)
	desIdx := tableIndexes(dt)
	curIdxKeys := indexKeySet(curIdx)
	desIdxKeys := indexKeySet(desIdx)
	for _, k := range curIdx {
		if !desIdxKeys[k.key] {
			b.dropIndexes = append(b.dropIndexes, Operation{
				Kind: KindDropIndex, TableID: dt.ID, TableName: dt.Name, Index: &k.def,
			})
		}
	}
	for _, k := range desIdx {
		if !curIdxKeys[k.key] {
			b.addIndexes = append(b.addIndexes, Operation{
				Kind: KindAddIndex, TableID: dt.ID, TableName: dt.Name, Index: &k.def,
			})
		}
	}

	curCons, err := tableConstraints(current, ct)
	if err != nil {
		return err
	}
	desCons, err := tableConstraints(desired, dt)
	if err != nil {
		return err
	}
	curConKeys := constraintKeySet(curCons)
	desConKeys := constraintKeySet(desCons)
	for _, k := range curCons {
		if !desConKeys[k.key] {
			b.dropConstraints = append(b.dropConstraints, Operation{
				Kind: KindDropConstraint, TableID: dt.ID, TableName: dt.Name, Constraint: &k.def,
			})
		}
	}
	for _, k := range desCons {
		if !curConKeys[k.key] {
			b.addConstraints = append(b.addConstraints, Operation{
				Kind: KindAddConstraint, TableID: dt.ID, TableName: dt.Name, Constraint: &k.def,
			})
		}
	}
	return nil
}

// diffPolicies regenerates the whole policy set when any row rule changed,
// and also when the table was renamed: policy names embed the table name, so
// a rename leaves stale names behind that a later drop would miss. Drops on a
// renamed table carry the old name in FromName so the renderer can derive the
// names actually present in the database. FieldRules are excluded: they are
// enforced by the application layer and never produce database objects.
func diffPolicies(ct, dt *schema.TableDefinition, b *buckets) {
	renamed := ct.Name != dt.Name
	if !renamed &&
		ct.Permissions.Read.Equal(dt.Permissions.Read) &&
		ct.Permissions.Write.Equal(dt.Permissions.Write) &&
		ct.Permissions.Delete.Equal(dt.Permissions.Delete) {
		return
	}
	remaining := len(dt.Permissions.RuleOperations())
	for _, op := range ct.Permissions.RuleOperations() {
		drop := Operation{
			Kind: KindDropPolicy, TableID: dt.ID, TableName: dt.Name,
			PolicyOp: op, PolicyRemaining: remaining,
		}
		if renamed {
			drop.FromName = ct.Name
		}
		b.dropPolicies = append(b.dropPolicies, drop)
	}
	for _, op := range dt.Permissions.RuleOperations() {
		b.createPolicies = append(b.createPolicies, Operation{
			Kind: KindCreatePolicy, TableID: dt.ID, TableName: dt.Name,
			Table: dt, PolicyOp: op, PolicyRule: dt.Permissions.Rule(op), PolicyRemaining: remaining,
		})
	}
}

func appendPolicyCreates(b *buckets, t *schema.TableDefinition) {
	remaining := len(t.Permissions.RuleOperations())
	for _, op := range t.Permissions.RuleOperations() {
		b.createPolicies = append(b.createPolicies, Operation{
			Kind: KindCreatePolicy, TableID: t.ID, TableName: t.Name,
			Table: t, PolicyOp: op, PolicyRule: t.Permissions.Rule(op), PolicyRemaining: remaining,
		})
	}
}

type keyedIndex struct {
	key string
	def IndexDef
}

// tableIndexes resolves a table's index specs. The key is built from the
// resolved name and the field ids, so renaming a column never recreates an
// index, while changing an index's fields under an explicit name does.
func tableIndexes(t *schema.TableDefinition) []keyedIndex {
	out := make([]keyedIndex, 0, len(t.Indexes))
	for _, spec := range t.Indexes {
		name := indexName(t.ID, spec)
		out = append(out, keyedIndex{
			key: fmt.Sprintf("%s|%v", name, spec.Fields),
			def: IndexDef{Name: name, Columns: fieldNames(t, spec.Fields)},
		})
	}
	return out
}

func indexKeySet(keyed []keyedIndex) map[string]bool {
	set := make(map[string]bool, len(keyed))
	for _, k := range keyed {
		set[k.key] = true
	}
	return set
}

type keyedConstraint struct {
	key string
	def ConstraintDef
}

// tableConstraints resolves a table's uniqueness constraints (explicit specs
// plus per-field unique flags) and the foreign keys implied by its link
// fields.
func tableConstraints(tables []schema.TableDefinition, t *schema.TableDefinition) ([]keyedConstraint, error) {
	var out []keyedConstraint
	seen := make(map[string]bool)

	add := func(key string, def ConstraintDef) {
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, keyedConstraint{key: key, def: def})
	}

	for _, spec := range t.Uniques {
		name := uniqueName(t.ID, spec)
		add(fmt.Sprintf("uq|%s|%v", name, spec.Fields), ConstraintDef{
			Kind: ConstraintUnique, Name: name, Columns: fieldNames(t, spec.Fields),
		})
	}
	for _, f := range t.Fields {
		if !f.Unique || f.Virtual() {
			continue
		}
		spec := schema.UniqueSpec{Fields: []schema.FieldID{f.ID}}
		name := uniqueName(t.ID, spec)
		add(fmt.Sprintf("uq|%s|%v", name, spec.Fields), ConstraintDef{
			Kind: ConstraintUnique, Name: name, Columns: []string{f.Name},
		})
	}

	for _, f := range t.Fields {
		if f.Type != schema.FieldLink || f.Link == nil {
			continue
		}
		target := schema.TableByID(tables, f.Link.Table)
		if target == nil {
			return nil, fmt.Errorf("table %q: link field %q references unknown table id %d", t.Name, f.Name, f.Link.Table)
		}
		name := foreignKeyName(t.ID, f.ID)
		add(fmt.Sprintf("fk|%s|%d|%s", name, f.Link.Table, f.Link.OnDelete), ConstraintDef{
			Kind: ConstraintForeignKey, Name: name,
			Columns:  []string{f.Name},
			RefTable: target.Name, RefColumn: schema.SystemColumnID,
			OnDelete: f.Link.OnDelete,
		})
	}
	return out, nil
}

func constraintKeySet(keyed []keyedConstraint) map[string]bool {
	set := make(map[string]bool, len(keyed))
	for _, k := range keyed {
		set[k.key] = true
	}
	return set
}

func fieldNames(t *schema.TableDefinition, ids []schema.FieldID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = t.Field(id).Name
	}
	return names
}

// orderByLinks orders tables so that link targets precede their referrers.
// Ties keep declaration order. A reference cycle falls back to declaration
// order, which stays correct because foreign keys attach after all creates.
func orderByLinks(tables []*schema.TableDefinition) []*schema.TableDefinition {
	inSet := make(map[schema.TableID]bool, len(tables))
	for _, t := range tables {
		inSet[t.ID] = true
	}
	deps := make(map[schema.TableID][]schema.TableID, len(tables))
	for _, t := range tables {
		for _, f := range t.Fields {
			if f.Type == schema.FieldLink && f.Link != nil && inSet[f.Link.Table] && f.Link.Table != t.ID {
				deps[t.ID] = append(deps[t.ID], f.Link.Table)
			}
		}
	}

	ordered := make([]*schema.TableDefinition, 0, len(tables))
	done := make(map[schema.TableID]bool, len(tables))
	remaining := len(tables)
	for remaining > 0 {
		progressed := false
		for _, t := range tables {
			if done[t.ID] {
				continue
			}
			ready := true
			for _, dep := range deps[t.ID] {
				if !done[dep] {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}
			ordered = append(ordered, t)
			done[t.ID] = true
			remaining--
			progressed = true
		}
		if !progressed {
			// cycle: emit the rest in declaration order
			for _, t := range tables {
				if !done[t.ID] {
					ordered = append(ordered, t)
					done[t.ID] = true
					remaining--
				}
			}
		}
	}
	return ordered
}

func stringPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
