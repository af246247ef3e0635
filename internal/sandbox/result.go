package sandbox

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags the shape of a normalized query result.
type Kind string

const (
	// KindScalar is a single-row, single-column result.
	KindScalar Kind = "scalar"
	// KindMapping is a single-row, multi-column result.
	KindMapping Kind = "mapping"
	// KindRows is everything else, including empty results.
	KindRows Kind = "rows"
)

// Row is one record of a result set.
type Row map[string]any

// Result is the normalized outcome of a sandbox execution. Exactly one of
// Scalar, Mapping, or Rows is populated, selected by Kind.
type Result struct {
	Kind    Kind
	Columns []string
	Scalar  any
	Mapping Row
	Rows    []Row
}

const maxRenderedRows = 50

// String renders the result for inclusion in a model prompt. Floats are
// rounded to two decimals so long fractions don't read like encoded values.
func (r *Result) String() string {
	switch r.Kind {
	case KindScalar:
		return renderCell(r.Scalar)
	case KindMapping:
		parts := make([]string, len(r.Columns))
		for i, col := range r.Columns {
			parts[i] = col + "=" + renderCell(r.Mapping[col])
		}
		return strings.Join(parts, ", ")
	default:
		if len(r.Rows) == 0 {
			return "query returned no rows"
		}
		var sb strings.Builder
		fmt.Fprintf(&sb, "columns: %s\n", strings.Join(r.Columns, " | "))
		fmt.Fprintf(&sb, "rows (%d total):\n", len(r.Rows))
		shown := min(len(r.Rows), maxRenderedRows)
		for i := 0; i < shown; i++ {
			values := make([]string, len(r.Columns))
			for j, col := range r.Columns {
				values[j] = renderCell(r.Rows[i][col])
			}
			sb.WriteString(strings.Join(values, " | ") + "\n")
		}
		if len(r.Rows) > shown {
			fmt.Fprintf(&sb, "... and %d more rows\n", len(r.Rows)-shown)
		}
		return strings.TrimRight(sb.String(), "\n")
	}
}

func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case time.Time:
		return val.Format("2006-01-02")
	default:
		s := fmt.Sprintf("%v", v)
		if len(s) > 100 {
			s = s[:97] + "..."
		}
		return s
	}
}

// normalize converts a scanned result set into the tagged variant.
func normalize(columns []string, rows []Row) *Result {
	if len(rows) == 1 {
		if len(columns) == 1 {
			return &Result{
				Kind:    KindScalar,
				Columns: columns,
				Scalar:  rows[0][columns[0]],
			}
		}
		return &Result{
			Kind:    KindMapping,
			Columns: columns,
			Mapping: rows[0],
		}
	}
	return &Result{
		Kind:    KindRows,
		Columns: columns,
		Rows:    rows,
	}
}
