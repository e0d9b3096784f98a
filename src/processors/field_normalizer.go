// backend/src/processors/field_normalizer.go
package processors

import (
	"fmt"
	"strings"

	"github.com/username/agriarche/backend/src/models"
)

// SourceSchema selects which header-mapping and validation rule set applies.
// The same pipeline handles both upstream formats; only the rule set varies.
type SourceSchema string

const (
	SchemaInternal    SourceSchema = "internal"      // field-agent submissions
	SchemaOtherSource SourceSchema = "other_sources" // externally scraped listings
)

// ParseSourceSchema validates a caller-supplied schema name.
func ParseSourceSchema(s string) (SourceSchema, error) {
	switch SourceSchema(strings.ToLower(strings.TrimSpace(s))) {
	case SchemaInternal:
		return SchemaInternal, nil
	case SchemaOtherSource:
		return SchemaOtherSource, nil
	}
	return "", fmt.Errorf("unknown source schema %q", s)
}

// SchemaError reports required columns still absent after header mapping.
// It is fatal for the whole batch: without the columns no row can be built.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required columns after mapping: " + strings.Join(e.Missing, ", ")
}

// keywordGroup maps any input column whose lowercased name contains one of
// AnyOf (or all of AllOf, when set) onto the canonical field name.
type keywordGroup struct {
	Canonical string
	AnyOf     []string
	AllOf     []string
}

// Group order is significant: the first matching group wins, so the more
// specific names (price_per_kg, commodity_type) are listed before the
// generic substrings that would otherwise swallow them.
var internalGroups = []keywordGroup{
	{Canonical: "start_time", AnyOf: []string{"start_time", "start time", "date", "timestamp"}},
	{Canonical: "price_per_kg", AnyOf: []string{"price_per_kg", "price per kg"}},
	{Canonical: "price_per_bag", AnyOf: []string{"price_per_bag", "price per bag"}},
	{Canonical: "weight_of_bag_kg", AllOf: []string{"weight", "bag"}},
	{Canonical: "agent_code", AnyOf: []string{"agent"}},
	{Canonical: "state", AnyOf: []string{"state"}},
	{Canonical: "availability", AnyOf: []string{"availability"}},
	{Canonical: "commodity_type", AnyOf: []string{"commodity_type", "commodity type", "type"}},
	{Canonical: "commodity", AnyOf: []string{"commodity"}},
	{Canonical: "market", AnyOf: []string{"market", "location", "place"}},
}

var otherSourceGroups = []keywordGroup{
	{Canonical: "date", AnyOf: []string{"date", "time", "timestamp", "scraped"}},
	{Canonical: "commodity", AnyOf: []string{"commodity"}},
	{Canonical: "location", AnyOf: []string{"location", "market", "place"}},
	{Canonical: "unit", AnyOf: []string{"unit"}},
	{Canonical: "price", AnyOf: []string{"price", "amount", "cost"}},
}

// requiredFields lists what must be present after mapping. For the internal
// schema the price requirement is special-cased: either per-kg or per-bag
// suffices, since one derives from the other.
var requiredFields = map[SourceSchema][]string{
	SchemaInternal:    {"start_time", "commodity", "market"},
	SchemaOtherSource: {"date", "commodity", "location", "unit", "price"},
}

// FieldNormalizer maps arbitrary upload column headers onto the canonical
// schema and rewrites commodity name variants onto their canonical spelling.
type FieldNormalizer struct {
	schema        SourceSchema
	canonicalName func(string) string
}

// NewFieldNormalizer builds a normalizer for one source schema. The
// canonical-name function is injected (normally catalog.CanonicalName) so
// the mapping rules stay testable in isolation.
func NewFieldNormalizer(schema SourceSchema, canonicalName func(string) string) *FieldNormalizer {
	return &FieldNormalizer{schema: schema, canonicalName: canonicalName}
}

func (n *FieldNormalizer) groups() []keywordGroup {
	if n.schema == SchemaOtherSource {
		return otherSourceGroups
	}
	return internalGroups
}

// MapColumns resolves each input column to its canonical field name.
// Columns matching no group are dropped. When two input columns map to the
// same canonical field the first one in source order wins. Returns a
// *SchemaError when required fields are missing after mapping.
func (n *FieldNormalizer) MapColumns(columns []string) (map[string]string, error) {
	mapping := make(map[string]string, len(columns))
	mapped := make(map[string]bool)
	for _, col := range columns {
		lower := strings.ToLower(strings.TrimSpace(col))
		for _, group := range n.groups() {
			if !group.matches(lower) {
				continue
			}
			if !mapped[group.Canonical] {
				mapping[col] = group.Canonical
				mapped[group.Canonical] = true
			}
			break
		}
	}

	var missing []string
	for _, field := range requiredFields[n.schema] {
		if !mapped[field] {
			missing = append(missing, field)
		}
	}
	if n.schema == SchemaInternal && !mapped["price_per_kg"] && !mapped["price_per_bag"] {
		missing = append(missing, "price_per_kg or price_per_bag")
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}
	return mapping, nil
}

// Normalize renames every row's columns to canonical field names and
// canonicalizes the commodity value. The input rows are left untouched.
func (n *FieldNormalizer) Normalize(columns []string, rows []models.RawRecord) ([]models.RawRecord, error) {
	mapping, err := n.MapColumns(columns)
	if err != nil {
		return nil, err
	}
	normalized := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		out := make(models.RawRecord, len(mapping))
		for _, col := range columns {
			canonical, ok := mapping[col]
			if !ok {
				continue
			}
			out[canonical] = row[col]
		}
		if commodity, ok := out["commodity"]; ok && commodity != "" {
			out["commodity"] = n.canonicalName(commodity)
		}
		normalized = append(normalized, out)
	}
	return normalized, nil
}

func (g keywordGroup) matches(lowerCol string) bool {
	if len(g.AllOf) > 0 {
		for _, kw := range g.AllOf {
			if !strings.Contains(lowerCol, kw) {
				return false
			}
		}
		return true
	}
	for _, kw := range g.AnyOf {
		if strings.Contains(lowerCol, kw) {
			return true
		}
	}
	return false
}
