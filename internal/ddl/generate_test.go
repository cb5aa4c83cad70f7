package ddl

import (
	"errors"
	"strings"
	"testing"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/dialect/mysql"
	"github.com/stratadb/strata/internal/dialect/postgres"
	"github.com/stratadb/strata/internal/dialect/sqlite"
	"github.com/stratadb/strata/internal/diff"
	"github.com/stratadb/strata/internal/schema"
)

func mustCompute(t *testing.T, current, desired []schema.TableDefinition) []diff.Operation {
	t.Helper()
	ops, err := diff.Compute(current, desired)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	return ops
}

func sqls(stmts []dialect.Statement) []string {
	out := make([]string, len(stmts))
	for i, st := range stmts {
		out[i] = st.SQL
	}
	return out
}

func countContaining(stmts []dialect.Statement, substr string) int {
	n := 0
	for _, st := range stmts {
		if strings.Contains(st.SQL, substr) {
			n++
		}
	}
	return n
}

func TestGenerate_DestructiveBlockedWithoutConfirmation(t *testing.T) {
	current := []schema.TableDefinition{
		{ID: 1, Name: "orders", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "total", Type: schema.FieldCurrency},
		}},
		{ID: 2, Name: "legacy", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "blob", Type: schema.FieldText},
		}},
	}
	desired := []schema.TableDefinition{
		{ID: 1, Name: "orders"},
	}
	ops := mustCompute(t, current, desired)

	g := NewGenerator(postgres.New())
	_, err := g.Generate(ops, Options{})
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	// Both the dropped column and the dropped table must be named.
	if len(gerr.Ops) != 2 {
		t.Errorf("blocked ops = %v", gerr.Ops)
	}
	if !strings.Contains(gerr.Error(), "destructive") {
		t.Errorf("error = %v", gerr)
	}

	stmts, err := g.Generate(ops, Options{AllowDestructive: true})
	if err != nil {
		t.Fatalf("confirmed generate: %v", err)
	}
	if countContaining(stmts, "DROP COLUMN") != 1 || countContaining(stmts, "DROP TABLE") != 1 {
		t.Errorf("confirmed plan = %v", sqls(stmts))
	}
}

func TestGenerate_PolicyPlanBootstrapsAndTogglesOnce(t *testing.T) {
	desired := []schema.TableDefinition{
		{ID: 1, Name: "documents",
			Fields: []schema.FieldDefinition{
				{ID: 1, Name: "title", Type: schema.FieldText},
			},
			Permissions: schema.PermissionSpec{
				Read:  &schema.PermissionRule{Context: schema.ContextAuthenticated},
				Write: &schema.PermissionRule{Context: schema.ContextOwner, OwnerField: "title"},
			},
		},
	}
	ops := mustCompute(t, nil, desired)

	stmts, err := NewGenerator(postgres.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Accessors render once, before everything else.
	if !strings.Contains(stmts[0].SQL, "CREATE OR REPLACE FUNCTION current_user_id()") {
		t.Errorf("plan should open with the accessor bootstrap: %s", stmts[0].SQL)
	}
	if got := countContaining(stmts, "CREATE OR REPLACE FUNCTION"); got != 4 {
		t.Errorf("accessor functions = %d, want 4", got)
	}

	// One enable+force pair even with two rules on the table.
	if got := countContaining(stmts, "ENABLE ROW LEVEL SECURITY"); got != 1 {
		t.Errorf("enable statements = %d, want 1", got)
	}
	if got := countContaining(stmts, "FORCE ROW LEVEL SECURITY"); got != 1 {
		t.Errorf("force statements = %d, want 1", got)
	}

	// read -> one policy, write -> two.
	if got := countContaining(stmts, "CREATE POLICY"); got != 3 {
		t.Errorf("policies = %d, want 3:\n%s", got, strings.Join(sqls(stmts), "\n"))
	}
}

func TestGenerate_RemovingLastRuleDisablesRowSecurity(t *testing.T) {
	withRules := []schema.TableDefinition{
		{ID: 1, Name: "documents",
			Permissions: schema.PermissionSpec{
				Read:   &schema.PermissionRule{Context: schema.ContextAuthenticated},
				Delete: &schema.PermissionRule{Context: schema.ContextRole, Roles: []string{"admin"}},
			},
		},
	}
	withoutRules := []schema.TableDefinition{{ID: 1, Name: "documents"}}
	ops := mustCompute(t, withRules, withoutRules)

	stmts, err := NewGenerator(postgres.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}

	if got := countContaining(stmts, "DROP POLICY"); got != 2 {
		t.Errorf("drops = %d, want 2:\n%s", got, strings.Join(sqls(stmts), "\n"))
	}
	if got := countContaining(stmts, "DISABLE ROW LEVEL SECURITY"); got != 1 {
		t.Errorf("disable statements = %d, want 1", got)
	}
	// Disable comes last, after every drop.
	last := stmts[len(stmts)-1].SQL
	if !strings.Contains(last, "DISABLE ROW LEVEL SECURITY") {
		t.Errorf("plan should end by disabling row security: %s", last)
	}
	if countContaining(stmts, "ENABLE ROW LEVEL SECURITY") != 0 {
		t.Error("a drop-only plan must not re-enable row security")
	}
}

func TestGenerate_IncompatibleAlterRejected(t *testing.T) {
	current := []schema.TableDefinition{
		{ID: 1, Name: "events", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "payload", Type: schema.FieldLongText},
		}},
	}
	desired := []schema.TableDefinition{
		{ID: 1, Name: "events", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "payload", Type: schema.FieldInteger},
		}},
	}
	ops := mustCompute(t, current, desired)

	_, err := NewGenerator(postgres.New()).Generate(ops, Options{AllowDestructive: true})
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if !strings.Contains(gerr.Reason, "could lose data") {
		t.Errorf("reason = %s", gerr.Reason)
	}
}

func TestGenerate_WideningAlterAllowed(t *testing.T) {
	current := []schema.TableDefinition{
		{ID: 1, Name: "events", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "count", Type: schema.FieldInteger},
		}},
	}
	desired := []schema.TableDefinition{
		{ID: 1, Name: "events", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "count", Type: schema.FieldDecimal},
		}},
	}
	ops := mustCompute(t, current, desired)

	stmts, err := NewGenerator(postgres.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if countContaining(stmts, "ALTER COLUMN") == 0 {
		t.Errorf("expected an alter statement, got %v", sqls(stmts))
	}
}

func linkedTables() []schema.TableDefinition {
	return []schema.TableDefinition{
		{ID: 1, Name: "authors", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "name", Type: schema.FieldText},
		}},
		{ID: 2, Name: "books", Fields: []schema.FieldDefinition{
			{ID: 1, Name: "author_id", Type: schema.FieldLink, Link: &schema.LinkSpec{Table: 1, OnDelete: schema.OnDeleteCascade}},
		}},
	}
}

func TestGenerate_SqliteInlinesForeignKeysOnCreate(t *testing.T) {
	ops := mustCompute(t, nil, linkedTables())

	stmts, err := NewGenerator(sqlite.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := countContaining(stmts, "ADD CONSTRAINT"); got != 0 {
		t.Errorf("sqlite must not alter constraints in: %v", sqls(stmts))
	}
	found := false
	for _, st := range stmts {
		if strings.Contains(st.SQL, `CREATE TABLE "books"`) && strings.Contains(st.SQL, "FOREIGN KEY") {
			found = true
		}
	}
	if !found {
		t.Errorf("books create should carry the foreign key inline:\n%s", strings.Join(sqls(stmts), "\n"))
	}
}

func TestGenerate_PostgresAddsForeignKeySeparately(t *testing.T) {
	ops := mustCompute(t, nil, linkedTables())

	stmts, err := NewGenerator(postgres.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := countContaining(stmts, "ADD CONSTRAINT"); got != 1 {
		t.Errorf("expected one ADD CONSTRAINT, got %d:\n%s", got, strings.Join(sqls(stmts), "\n"))
	}
}

func TestGenerate_SqliteRejectsForeignKeyOnExistingTable(t *testing.T) {
	current := []schema.TableDefinition{
		{ID: 1, Name: "authors"},
		{ID: 2, Name: "books"},
	}
	ops := mustCompute(t, current, linkedTables())

	_, err := NewGenerator(sqlite.New()).Generate(ops, Options{})
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if !strings.Contains(gerr.Reason, "foreign key") {
		t.Errorf("reason = %s", gerr.Reason)
	}
}

func TestGenerate_MysqlRejectsPolicies(t *testing.T) {
	desired := []schema.TableDefinition{
		{ID: 1, Name: "documents", Permissions: schema.PermissionSpec{
			Read: &schema.PermissionRule{Context: schema.ContextPublic},
		}},
	}
	ops := mustCompute(t, nil, desired)

	_, err := NewGenerator(mysql.New()).Generate(ops, Options{})
	var gerr *GenerationError
	if !errors.As(err, &gerr) {
		t.Fatalf("expected *GenerationError, got %v", err)
	}
	if gerr.Dialect != "mysql" || !strings.Contains(gerr.Reason, "row security") {
		t.Errorf("error = %v", gerr)
	}
}

func TestGenerate_EveryStatementHasSummary(t *testing.T) {
	ops := mustCompute(t, nil, linkedTables())
	stmts, err := NewGenerator(postgres.New()).Generate(ops, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range stmts {
		if st.Summary == "" {
			t.Errorf("statement %d has no summary: %s", i, st.SQL)
		}
	}
}
