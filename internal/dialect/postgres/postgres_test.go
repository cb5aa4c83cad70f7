package postgres

import (
	"strings"
	"testing"

	"github.com/stratadb/strata/internal/dialect"
	"github.com/stratadb/strata/internal/schema"
)

func col(name string, ft schema.FieldType) schema.Column {
	return schema.Column{Field: schema.FieldDefinition{Name: name, Type: ft}}
}

func TestColumnType(t *testing.T) {
	d := New()
	cases := []struct {
		ft   schema.FieldType
		want string
	}{
		{schema.FieldText, "TEXT"},
		{schema.FieldEmail, "TEXT"},
		{schema.FieldInteger, "BIGINT"},
		{schema.FieldRating, "INTEGER"},
		{schema.FieldDecimal, "NUMERIC(38, 10)"},
		{schema.FieldCurrency, "NUMERIC(19, 4)"},
		{schema.FieldFloat, "DOUBLE PRECISION"},
		{schema.FieldCheckbox, "BOOLEAN"},
		{schema.FieldDate, "DATE"},
		{schema.FieldDateTime, "TIMESTAMPTZ"},
		{schema.FieldJSON, "JSONB"},
		{schema.FieldAttachment, "JSONB"},
		{schema.FieldUUID, "UUID"},
		{schema.FieldUser, "BIGINT"},
	}
	for _, tc := range cases {
		got, err := d.ColumnType(col("x", tc.ft))
		if err != nil {
			t.Errorf("%s: %v", tc.ft, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.ft, got, tc.want)
		}
	}
}

func TestColumnType_LinkFollowsTargetKey(t *testing.T) {
	d := New()
	c := col("owner_id", schema.FieldLink)
	if got, _ := d.ColumnType(c); got != "BIGINT" {
		t.Errorf("auto link = %s", got)
	}
	c.LinkPK = schema.PrimaryKeyUUID
	if got, _ := d.ColumnType(c); got != "UUID" {
		t.Errorf("uuid link = %s", got)
	}
}

func TestColumnType_VirtualKindRejected(t *testing.T) {
	if _, err := New().ColumnType(col("calc", schema.FieldFormula)); err == nil {
		t.Fatal("expected error for a virtual field kind")
	}
}

func TestCreateTable(t *testing.T) {
	d := New()
	tbl := &schema.TableDefinition{ID: 7, Name: "orders"}
	cols := []schema.Column{
		{Field: schema.FieldDefinition{ID: 1, Name: "title", Type: schema.FieldText, Required: true}},
		{Field: schema.FieldDefinition{ID: 2, Name: "status", Type: schema.FieldSingleSelect, Default: strPtr("draft")}},
	}

	stmts, err := d.CreateTable(tbl, cols, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(stmts) != 2 {
		t.Fatalf("expected create + deleted_at index, got %d statements", len(stmts))
	}

	want := `CREATE TABLE "orders" (
	"id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
	"title" TEXT NOT NULL,
	"status" TEXT DEFAULT 'draft',
	"created_at" TIMESTAMPTZ NOT NULL DEFAULT now(),
	"updated_at" TIMESTAMPTZ NOT NULL DEFAULT now(),
	"deleted_at" TIMESTAMPTZ
)`
	if stmts[0].SQL != want {
		t.Errorf("create table:\n got: %s\nwant: %s", stmts[0].SQL, want)
	}
	if stmts[1].SQL != `CREATE INDEX "idx_t7_deleted_at" ON "orders" ("deleted_at")` {
		t.Errorf("deleted_at index = %s", stmts[1].SQL)
	}
}

func TestCreateTable_UUIDKey(t *testing.T) {
	tbl := &schema.TableDefinition{ID: 3, Name: "events", PrimaryKey: schema.PrimaryKeySpec{Kind: schema.PrimaryKeyUUID}}
	stmts, err := New().CreateTable(tbl, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stmts[0].SQL, `"id" UUID PRIMARY KEY DEFAULT gen_random_uuid()`) {
		t.Errorf("uuid key missing: %s", stmts[0].SQL)
	}
}

func TestCreateTable_InlineForeignKeys(t *testing.T) {
	tbl := &schema.TableDefinition{ID: 9, Name: "lines"}
	fk := dialect.ForeignKey{Name: "fk_t9_f2", Column: "order_id", RefTable: "orders", RefColumn: "id", OnDelete: schema.OnDeleteCascade}

	stmts, err := New().CreateTable(tbl, nil, []dialect.ForeignKey{fk})
	if err != nil {
		t.Fatal(err)
	}
	want := `CONSTRAINT "fk_t9_f2" FOREIGN KEY ("order_id") REFERENCES "orders" ("id") ON DELETE CASCADE`
	if !strings.Contains(stmts[0].SQL, want) {
		t.Errorf("foreign key clause missing:\n%s", stmts[0].SQL)
	}
}

func TestAlterColumn(t *testing.T) {
	d := New()
	c := schema.Column{Field: schema.FieldDefinition{Name: "amount", Type: schema.FieldDecimal, Required: true, Default: strPtr("0")}}

	stmts, err := d.AlterColumn("invoices", c, dialect.AlterChanges{Type: true, Required: true, Default: true})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		`ALTER TABLE "invoices" ALTER COLUMN "amount" TYPE NUMERIC(38, 10) USING "amount"::NUMERIC(38, 10)`,
		`ALTER TABLE "invoices" ALTER COLUMN "amount" SET NOT NULL`,
		`ALTER TABLE "invoices" ALTER COLUMN "amount" SET DEFAULT 0`,
	}
	if len(stmts) != len(want) {
		t.Fatalf("expected %d statements, got %d", len(want), len(stmts))
	}
	for i := range want {
		if stmts[i].SQL != want[i] {
			t.Errorf("statement %d:\n got: %s\nwant: %s", i, stmts[i].SQL, want[i])
		}
	}
}

func TestAlterColumn_DropsNullabilityAndDefault(t *testing.T) {
	c := schema.Column{Field: schema.FieldDefinition{Name: "note", Type: schema.FieldText}}
	stmts, err := New().AlterColumn("invoices", c, dialect.AlterChanges{Required: true, Default: true})
	if err != nil {
		t.Fatal(err)
	}
	if stmts[0].SQL != `ALTER TABLE "invoices" ALTER COLUMN "note" DROP NOT NULL` {
		t.Errorf("nullability = %s", stmts[0].SQL)
	}
	if stmts[1].SQL != `ALTER TABLE "invoices" ALTER COLUMN "note" DROP DEFAULT` {
		t.Errorf("default = %s", stmts[1].SQL)
	}
}

func TestQuoteIdentifier(t *testing.T) {
	d := New()
	if got := d.QuoteIdentifier("plain"); got != `"plain"` {
		t.Errorf("plain = %s", got)
	}
	if got := d.QuoteIdentifier(`we"ird`); got != `"we""ird"` {
		t.Errorf("embedded quote = %s", got)
	}
}

func TestConstraintStatements(t *testing.T) {
	d := New()
	if got := d.AddUnique("users", "uq_t1_f3", []string{"email"}).SQL; got != `ALTER TABLE "users" ADD CONSTRAINT "uq_t1_f3" UNIQUE ("email")` {
		t.Errorf("add unique = %s", got)
	}
	fk := dialect.ForeignKey{Name: "fk_t2_f4", Column: "user_id", RefTable: "users", RefColumn: "id", OnDelete: schema.OnDeleteSetNull}
	if got := d.AddForeignKey("posts", fk).SQL; got != `ALTER TABLE "posts" ADD CONSTRAINT "fk_t2_f4" FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE SET NULL` {
		t.Errorf("add fk = %s", got)
	}
	if got := d.DropConstraint("posts", "fk_t2_f4", "foreign_key").SQL; got != `ALTER TABLE "posts" DROP CONSTRAINT "fk_t2_f4"` {
		t.Errorf("drop constraint = %s", got)
	}
	if got := d.DropIndex("posts", "idx_t2_f5").SQL; got != `DROP INDEX "idx_t2_f5"` {
		t.Errorf("drop index = %s", got)
	}
}

func TestBootstrap(t *testing.T) {
	stmts := New().Bootstrap()
	if len(stmts) != 4 {
		t.Fatalf("expected 4 accessor functions, got %d", len(stmts))
	}

	userID := stmts[0].SQL
	if !strings.Contains(userID, "CREATE OR REPLACE FUNCTION current_user_id() RETURNS BIGINT") {
		t.Errorf("user id accessor: %s", userID)
	}
	if !strings.Contains(userID, "NULLIF(current_setting('strata.user_id', true), '')::BIGINT") {
		t.Errorf("user id accessor should cast the setting: %s", userID)
	}

	role := stmts[3].SQL
	if !strings.Contains(role, "current_user_role() RETURNS TEXT") {
		t.Errorf("role accessor: %s", role)
	}
	if strings.Contains(role, "'')::") {
		t.Errorf("role accessor must not cast text: %s", role)
	}
}

func TestSessionBindings(t *testing.T) {
	stmts := New().SessionBindings("42", "7", "", "admin")
	if len(stmts) != 4 {
		t.Fatalf("expected 4 bindings, got %d", len(stmts))
	}
	wantArgs := [][2]string{
		{"strata.user_id", "42"},
		{"strata.organization_id", "7"},
		{"strata.team_id", ""},
		{"strata.role", "admin"},
	}
	for i, st := range stmts {
		if st.SQL != "SELECT set_config($1, $2, true)" {
			t.Errorf("binding %d sql = %s", i, st.SQL)
		}
		if len(st.Args) != 2 || st.Args[0] != wantArgs[i][0] || st.Args[1] != wantArgs[i][1] {
			t.Errorf("binding %d args = %v, want %v", i, st.Args, wantArgs[i])
		}
	}
}

func TestHistoryDDL(t *testing.T) {
	ddl := New().HistoryDDL()
	joined := strings.Join(ddl, "\n")
	for _, want := range []string{"schema_checksum", "migration_history", "migration_log", "idx_migration_log_created_at"} {
		if !strings.Contains(joined, want) {
			t.Errorf("history ddl missing %s", want)
		}
	}
	if !strings.Contains(joined, "CHECK (id = 1)") {
		t.Error("schema_checksum should be constrained to a single row")
	}
}

func TestCapabilities(t *testing.T) {
	d := New()
	if !d.SupportsRowPolicies() || !d.SupportsTransactionalDDL() || !d.SupportsAlterForeignKeys() {
		t.Error("postgres supports policies, transactional DDL, and fk alters")
	}
	if d.InlineForeignKeys() {
		t.Error("postgres adds foreign keys as constraints, not inline only")
	}
}

func strPtr(s string) *string { return &s }
