// Package checksum fingerprints schema documents. Two documents declaring
// the same tables produce the same checksum regardless of how their lists
// are ordered on disk, which lets startup skip the migration pipeline
// entirely when nothing changed.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/stratadb/strata/internal/schema"
)

// Sum computes the canonical SHA-256 checksum of a set of table definitions,
// returned as a lowercase hex string.
func Sum(tables []schema.TableDefinition) (string, error) {
	canon, err := Canonical(tables)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(canon)
	return hex.EncodeToString(digest[:]), nil
}

// Canonical renders tables in canonical JSON: tables and fields sorted by
// id, secondary lists sorted by their structural keys, object keys sorted
// lexicographically, no insignificant whitespace.
func Canonical(tables []schema.TableDefinition) ([]byte, error) {
	sorted, err := normalize(tables)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(struct {
		Tables []schema.TableDefinition `json:"tables"`
	}{Tables: sorted})
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	// Round-trip through a generic document so object keys come back in
	// sorted order. UseNumber keeps large ids byte-exact.
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("canonicalize schema: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("canonicalize schema: %w", err)
	}
	return out, nil
}

// normalize deep-copies tables and sorts every list whose on-disk order is
// not significant.
func normalize(tables []schema.TableDefinition) ([]schema.TableDefinition, error) {
	raw, err := json.Marshal(tables)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var copied []schema.TableDefinition
	if err := json.Unmarshal(raw, &copied); err != nil {
		return nil, fmt.Errorf("copy schema: %w", err)
	}

	sort.Slice(copied, func(i, j int) bool { return copied[i].ID < copied[j].ID })
	for i := range copied {
		t := &copied[i]
		sort.Slice(t.Fields, func(a, b int) bool { return t.Fields[a].ID < t.Fields[b].ID })
		sort.Slice(t.Indexes, func(a, b int) bool {
			return keyedName(t.Indexes[a].Name, t.Indexes[a].Fields) < keyedName(t.Indexes[b].Name, t.Indexes[b].Fields)
		})
		sort.Slice(t.Uniques, func(a, b int) bool {
			return keyedName(t.Uniques[a].Name, t.Uniques[a].Fields) < keyedName(t.Uniques[b].Name, t.Uniques[b].Fields)
		})
		sort.Slice(t.Permissions.FieldRules, func(a, b int) bool {
			return t.Permissions.FieldRules[a].Field < t.Permissions.FieldRules[b].Field
		})
	}
	return copied, nil
}

func keyedName(name string, fields []schema.FieldID) string {
	var b strings.Builder
	b.WriteString(name)
	for _, id := range fields {
		fmt.Fprintf(&b, "/%d", id)
	}
	return b.String()
}
