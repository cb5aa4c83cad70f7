package schema

import "testing"

func TestFieldType_Virtual(t *testing.T) {
	virtual := []FieldType{FieldFormula, FieldRollup, FieldLookup, FieldCount, FieldButton}
	for _, ft := range virtual {
		if !ft.Virtual() {
			t.Errorf("%s should be virtual", ft)
		}
	}
	physical := []FieldType{FieldText, FieldInteger, FieldLink, FieldAttachment, FieldCreatedBy}
	for _, ft := range physical {
		if ft.Virtual() {
			t.Errorf("%s should not be virtual", ft)
		}
	}
}

func TestFieldType_Valid(t *testing.T) {
	if !FieldGeoPoint.Valid() {
		t.Error("geo_point should be valid")
	}
	if FieldType("varchar").Valid() {
		t.Error("varchar should not be valid")
	}
	if FieldType("").Valid() {
		t.Error("empty type should not be valid")
	}
}

func TestCompatibleAlter(t *testing.T) {
	tests := []struct {
		from, to FieldType
		ok       bool
	}{
		{FieldInteger, FieldDecimal, true},
		{FieldInteger, FieldFloat, true},
		{FieldDecimal, FieldInteger, false},
		{FieldText, FieldLongText, true},
		{FieldLongText, FieldText, false},
		{FieldDate, FieldDateTime, true},
		{FieldDateTime, FieldDate, false},
		{FieldBoolean, FieldCheckbox, true},
		{FieldCheckbox, FieldBoolean, true},
		{FieldText, FieldInteger, false},
		{FieldRating, FieldInteger, true},
		{FieldUUID, FieldText, true},
		{FieldText, FieldText, true},
		{FieldAttachment, FieldJSON, true},
		{FieldJSON, FieldAttachment, false},
	}
	for _, tt := range tests {
		if got := CompatibleAlter(tt.from, tt.to); got != tt.ok {
			t.Errorf("CompatibleAlter(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}
