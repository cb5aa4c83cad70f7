package schema

// FieldType enumerates the declarable field kinds. Most map to a physical
// column; the virtual kinds (formula, rollup, lookup, count, button) are
// computed at read time and produce no column at all.
type FieldType string

const (
	FieldText         FieldType = "text"
	FieldLongText     FieldType = "long_text"
	FieldRichText     FieldType = "rich_text"
	FieldMarkdown     FieldType = "markdown"
	FieldEmail        FieldType = "email"
	FieldURL          FieldType = "url"
	FieldPhone        FieldType = "phone"
	FieldInteger      FieldType = "integer"
	FieldDecimal      FieldType = "decimal"
	FieldFloat        FieldType = "float"
	FieldCurrency     FieldType = "currency"
	FieldPercent      FieldType = "percent"
	FieldRating       FieldType = "rating"
	FieldAutoNumber   FieldType = "auto_number"
	FieldBoolean      FieldType = "boolean"
	FieldCheckbox     FieldType = "checkbox"
	FieldDate         FieldType = "date"
	FieldDateTime     FieldType = "datetime"
	FieldTime         FieldType = "time"
	FieldDuration     FieldType = "duration"
	FieldSingleSelect FieldType = "single_select"
	FieldMultiSelect  FieldType = "multi_select"
	FieldAttachment   FieldType = "attachment"
	FieldJSON         FieldType = "json"
	FieldUUID         FieldType = "uuid"
	FieldColor        FieldType = "color"
	FieldIcon         FieldType = "icon"
	FieldBarcode      FieldType = "barcode"
	FieldGeoPoint     FieldType = "geo_point"
	FieldCountry      FieldType = "country"
	FieldUser         FieldType = "user"
	FieldCreatedBy    FieldType = "created_by"
	FieldUpdatedBy    FieldType = "updated_by"
	FieldLink         FieldType = "link"
	FieldPassword     FieldType = "password"

	// Virtual kinds.
	FieldFormula FieldType = "formula"
	FieldRollup  FieldType = "rollup"
	FieldLookup  FieldType = "lookup"
	FieldCount   FieldType = "count"
	FieldButton  FieldType = "button"
)

var virtualTypes = map[FieldType]bool{
	FieldFormula: true,
	FieldRollup:  true,
	FieldLookup:  true,
	FieldCount:   true,
	FieldButton:  true,
}

var physicalTypes = map[FieldType]bool{
	FieldText: true, FieldLongText: true, FieldRichText: true, FieldMarkdown: true,
	FieldEmail: true, FieldURL: true, FieldPhone: true,
	FieldInteger: true, FieldDecimal: true, FieldFloat: true,
	FieldCurrency: true, FieldPercent: true, FieldRating: true, FieldAutoNumber: true,
	FieldBoolean: true, FieldCheckbox: true,
	FieldDate: true, FieldDateTime: true, FieldTime: true, FieldDuration: true,
	FieldSingleSelect: true, FieldMultiSelect: true,
	FieldAttachment: true, FieldJSON: true, FieldUUID: true,
	FieldColor: true, FieldIcon: true, FieldBarcode: true,
	FieldGeoPoint: true, FieldCountry: true,
	FieldUser: true, FieldCreatedBy: true, FieldUpdatedBy: true,
	FieldLink: true, FieldPassword: true,
}

// Valid reports whether t is a recognized field type.
func (t FieldType) Valid() bool { return physicalTypes[t] || virtualTypes[t] }

// Virtual reports whether t is computed at read time rather than stored.
func (t FieldType) Virtual() bool { return virtualTypes[t] }

// alterCompat declares the column type changes that preserve existing data.
// Everything absent here is rejected before any SQL is generated. The matrix
// only widens: a narrowing change must be modeled as a new field.
var alterCompat = map[FieldType][]FieldType{
	FieldText:         {FieldLongText, FieldRichText, FieldMarkdown, FieldEmail, FieldURL, FieldPhone, FieldSingleSelect},
	FieldLongText:     {FieldRichText, FieldMarkdown},
	FieldRichText:     {FieldLongText, FieldMarkdown},
	FieldMarkdown:     {FieldLongText, FieldRichText},
	FieldEmail:        {FieldText, FieldLongText},
	FieldURL:          {FieldText, FieldLongText},
	FieldPhone:        {FieldText, FieldLongText},
	FieldSingleSelect: {FieldText, FieldLongText},
	FieldMultiSelect:  {FieldJSON},
	FieldInteger:      {FieldDecimal, FieldFloat, FieldCurrency},
	FieldFloat:        {FieldDecimal},
	FieldCurrency:     {FieldDecimal},
	FieldPercent:      {FieldFloat, FieldDecimal},
	FieldRating:       {FieldInteger, FieldDecimal, FieldFloat},
	FieldAutoNumber:   {FieldInteger},
	FieldDuration:     {FieldInteger},
	FieldBoolean:      {FieldCheckbox},
	FieldCheckbox:     {FieldBoolean},
	FieldDate:         {FieldDateTime},
	FieldUUID:         {FieldText, FieldLongText},
	FieldColor:        {FieldText},
	FieldIcon:         {FieldText},
	FieldBarcode:      {FieldText},
	FieldCountry:      {FieldText},
	FieldGeoPoint:     {FieldJSON},
	FieldAttachment:   {FieldJSON},
}

// CompatibleAlter reports whether a stored column can change from one type to
// another without losing data.
func CompatibleAlter(from, to FieldType) bool {
	if from == to {
		return true
	}
	for _, t := range alterCompat[from] {
		if t == to {
			return true
		}
	}
	return false
}
