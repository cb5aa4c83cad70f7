package checksum

import (
	"testing"

	"github.com/stratadb/strata/internal/schema"
)

func fixtureTables() []schema.TableDefinition {
	return []schema.TableDefinition{
		{
			ID:   2,
			Name: "tasks",
			Fields: []schema.FieldDefinition{
				{ID: 1, Name: "headline", Type: schema.FieldText},
				{ID: 2, Name: "done", Type: schema.FieldCheckbox},
			},
		},
		{
			ID:   1,
			Name: "projects",
			Fields: []schema.FieldDefinition{
				{ID: 1, Name: "title", Type: schema.FieldText, Required: true},
				{ID: 2, Name: "budget", Type: schema.FieldCurrency},
			},
			Indexes: []schema.IndexSpec{{Fields: []schema.FieldID{2}}},
			Permissions: schema.PermissionSpec{
				Read: &schema.PermissionRule{Context: schema.ContextAuthenticated},
			},
		},
	}
}

func TestSum_Deterministic(t *testing.T) {
	tables := fixtureTables()
	first, err := Sum(tables)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := Sum(tables)
		if err != nil {
			t.Fatalf("Sum: %v", err)
		}
		if again != first {
			t.Fatalf("checksum not deterministic: %s != %s", again, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("expected 64-char sha256 hex, got %d chars", len(first))
	}
}

func TestSum_OrderIndependent(t *testing.T) {
	tables := fixtureTables()
	base, err := Sum(tables)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	// Reverse table order.
	reversed := []schema.TableDefinition{tables[1], tables[0]}
	got, err := Sum(reversed)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if got != base {
		t.Error("table order changed the checksum")
	}

	// Reverse field order within a table.
	shuffled := fixtureTables()
	shuffled[0].Fields[0], shuffled[0].Fields[1] = shuffled[0].Fields[1], shuffled[0].Fields[0]
	got, err = Sum(shuffled)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if got != base {
		t.Error("field order changed the checksum")
	}
}

func TestSum_SensitiveToRename(t *testing.T) {
	tables := fixtureTables()
	base, err := Sum(tables)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	renamed := fixtureTables()
	renamed[0].Fields[0].Name = "title"
	got, err := Sum(renamed)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if got == base {
		t.Error("field rename did not change the checksum")
	}
}

func TestSum_SensitiveToPermissions(t *testing.T) {
	tables := fixtureTables()
	base, err := Sum(tables)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}

	changed := fixtureTables()
	changed[1].Permissions.Read = &schema.PermissionRule{Context: schema.ContextPublic}
	got, err := Sum(changed)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if got == base {
		t.Error("permission change did not change the checksum")
	}
}

func TestSum_Empty(t *testing.T) {
	got, err := Sum(nil)
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if len(got) != 64 {
		t.Errorf("expected 64-char checksum for empty schema, got %q", got)
	}
}

func TestCanonical_DoesNotMutateInput(t *testing.T) {
	tables := fixtureTables()
	if _, err := Canonical(tables); err != nil {
		t.Fatalf("Canonical: %v", err)
	}
	if tables[0].ID != 2 || tables[1].ID != 1 {
		t.Error("Canonical reordered the caller's tables")
	}
	if tables[0].Fields[0].Name != "headline" {
		t.Error("Canonical reordered the caller's fields")
	}
}
