package pipeline

import (
	"fmt"
	"strings"

	"dentsync/internal"
)

// FindHeaderRow scans the first lookahead rows for a cell containing a
// "date" or "day" token and returns that row's index. Without a marker the
// first row is treated as the header.
func FindHeaderRow(rows [][]string, lookahead int) int {
	limit := lookahead
	if limit > len(rows) {
		limit = len(rows)
	}
	for i := 0; i < limit; i++ {
		for _, cell := range rows[i] {
			lower := strings.ToLower(strings.TrimSpace(cell))
			if strings.Contains(lower, "date") || lower == "day" {
				return i
			}
		}
	}
	return 0
}

// MissingFieldsError marks a tab whose header row lacks required columns.
// The whole tab is unprocessable; callers log one tab-level error instead of
// per-row noise.
type MissingFieldsError struct {
	Fields []internal.Field
}

func (e *MissingFieldsError) Error() string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = string(f)
	}
	return fmt.Sprintf("header row missing required columns: %s", strings.Join(names, ", "))
}

// BuildMapping assigns each spec'd field to the first unclaimed header cell
// whose trimmed lowercase value equals or contains one of its variants.
// Specs are scanned in declaration order so more specific patterns win; a
// column is claimed at most once.
func BuildMapping(header []string, specs []FieldSpec) (internal.ColumnMapping, error) {
	normalized := make([]string, len(header))
	for i, cell := range header {
		normalized[i] = strings.ToLower(strings.TrimSpace(cell))
	}

	mapping := internal.ColumnMapping{}
	claimed := map[int]bool{}
	var missing []internal.Field

	for _, spec := range specs {
		idx := internal.ColNotFound
	scan:
		for col, cell := range normalized {
			if claimed[col] || cell == "" {
				continue
			}
			for _, variant := range spec.Variants {
				if cell == variant || strings.Contains(cell, variant) {
					idx = col
					break scan
				}
			}
		}

		mapping[spec.Field] = idx
		if idx != internal.ColNotFound {
			claimed[idx] = true
		} else if spec.Required {
			missing = append(missing, spec.Field)
		}
	}

	if len(missing) > 0 {
		return mapping, &MissingFieldsError{Fields: missing}
	}
	return mapping, nil
}
