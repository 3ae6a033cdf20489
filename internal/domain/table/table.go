// Package table provides the minimal string-typed table that corpus files
// materialize into. Every upstream file is delimited text, so cells stay
// strings; typing is the caller's concern.
package table

import (
	"fmt"
	"strings"
)

// Table is an ordered set of named columns over string cells.
type Table struct {
	columns []string
	index   map[string]int
	rows    [][]string
}

// New validates and creates a Table. Every row must have one cell per column
// and column names must be unique and non-empty.
func New(columns []string, rows [][]string) (*Table, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("table requires at least one column")
	}
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column %q", c)
		}
		index[c] = i
	}
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(columns))
		}
	}
	return &Table{
		columns: append([]string(nil), columns...),
		index:   index,
		rows:    cloneRows(rows),
	}, nil
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]string, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("unknown column %q (have: %s)", name, strings.Join(t.columns, ", "))
	}
	out := make([]string, len(t.rows))
	for r, row := range t.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Row returns a copy of the i-th row.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Cell returns the value at row i in the named column.
func (t *Table) Cell(i int, column string) (string, error) {
	c, ok := t.index[column]
	if !ok {
		return "", fmt.Errorf("unknown column %q", column)
	}
	return t.rows[i][c], nil
}

// SetColumn replaces the named column's cells. The value count must match
// the row count.
func (t *Table) SetColumn(name string, values []string) error {
	i, ok := t.index[name]
	if !ok {
		return fmt.Errorf("unknown column %q", name)
	}
	if len(values) != len(t.rows) {
		return fmt.Errorf("column %q: %d values for %d rows", name, len(values), len(t.rows))
	}
	for r := range t.rows {
		t.rows[r][i] = values[r]
	}
	return nil
}

// Rename maps column names through the given old→new mapping. Names absent
// from the mapping are kept. Renaming must not introduce duplicates.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	columns := make([]string, len(t.columns))
	for i, c := range t.columns {
		if renamed, ok := mapping[c]; ok {
			columns[i] = renamed
		} else {
			columns[i] = c
		}
	}
	return New(columns, t.rows)
}

// Select projects the table onto the given columns, in the given order.
func (t *Table) Select(columns ...string) (*Table, error) {
	indices := make([]int, len(columns))
	for i, c := range columns {
		idx, ok := t.index[c]
		if !ok {
			return nil, fmt.Errorf("unknown column %q (have: %s)", c, strings.Join(t.columns, ", "))
		}
		indices[i] = idx
	}
	rows := make([][]string, len(t.rows))
	for r, row := range t.rows {
		out := make([]string, len(indices))
		for i, idx := range indices {
			out[i] = row[idx]
		}
		rows[r] = out
	}
	return New(columns, rows)
}

// Drop removes the given columns. Dropping an absent column is not an error:
// the author-column list may legitimately be empty for a given corpus.
func (t *Table) Drop(columns ...string) (*Table, error) {
	dropped := make(map[string]bool, len(columns))
	for _, c := range columns {
		dropped[c] = true
	}
	var keep []string
	for _, c := range t.columns {
		if !dropped[c] {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("dropping %s would leave no columns", strings.Join(columns, ", "))
	}
	return t.Select(keep...)
}

// DedupRows removes rows that are byte-identical to an earlier row, keeping
// first occurrences and re-indexing densely.
func (t *Table) DedupRows() *Table {
	seen := make(map[string]bool, len(t.rows))
	var rows [][]string
	for _, row := range t.rows {
		key := strings.Join(row, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		rows = append(rows, append([]string(nil), row...))
	}
	out, _ := New(t.columns, rows)
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	out, _ := New(t.columns, t.rows)
	return out
}

func cloneRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}
