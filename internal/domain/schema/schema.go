// Package schema declares the structural contracts enforced on derived
// tables before they are returned to callers. Validation failure is always
// fatal for the offending table; nothing is auto-corrected.
package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/domain/table"
)

// column is one declarative column rule.
type column struct {
	name     string
	required bool
	nonNull  bool // no empty cells
	unique   bool
}

// Schema is a declarative set of column rules over a table.
type Schema struct {
	name    string
	columns []column
	strict  bool // no columns beyond the declared ones
}

// Reports validates the reports view: author and report required and
// non-null, report additionally non-empty by the normalizer's contract
// (checked again here as defense in depth). Extra columns are allowed.
var Reports = Schema{
	name: "reports",
	columns: []column{
		{name: domain.FieldAuthor, required: true, nonNull: true},
		{name: domain.FieldReport, required: true, nonNull: true},
	},
}

// Authors validates the authors view: author required, non-null, and unique
// across rows. A duplicate author id after full-row deduplication means the
// source data disagrees about that author's metadata.
var Authors = Schema{
	name: "authors",
	columns: []column{
		{name: domain.FieldAuthor, required: true, nonNull: true, unique: true},
	},
}

// Aggregate validates the distribution artifact: exactly corpus, author,
// report, all non-null. This is a public release format and must stay
// contractually stable, so extra columns are rejected.
var Aggregate = Schema{
	name:   "aggregate",
	strict: true,
	columns: []column{
		{name: "corpus", required: true, nonNull: true},
		{name: domain.FieldAuthor, required: true, nonNull: true},
		{name: domain.FieldReport, required: true, nonNull: true},
	},
}

// Validate checks the table against the schema's rules.
func (s Schema) Validate(t *table.Table) error {
	if s.strict {
		declared := make(map[string]bool, len(s.columns))
		for _, c := range s.columns {
			declared[c.name] = true
		}
		for _, name := range t.Columns() {
			if !declared[name] {
				return &domain.SchemaError{
					Table:  s.name,
					Column: name,
					Reason: "column not allowed by strict schema",
				}
			}
		}
	}
	for _, c := range s.columns {
		if err := s.validateColumn(t, c); err != nil {
			return err
		}
	}
	return nil
}

func (s Schema) validateColumn(t *table.Table, c column) error {
	if !t.HasColumn(c.name) {
		if c.required {
			return &domain.SchemaError{Table: s.name, Column: c.name, Reason: "required column missing"}
		}
		return nil
	}
	values, err := t.Column(c.name)
	if err != nil {
		return err
	}
	if c.nonNull {
		nulls := 0
		for _, v := range values {
			if v == "" {
				nulls++
			}
		}
		if nulls > 0 {
			return &domain.SchemaError{
				Table:  s.name,
				Column: c.name,
				Reason: fmt.Sprintf("%d null/empty value(s)", nulls),
			}
		}
	}
	if c.unique {
		if dups := duplicates(values); len(dups) > 0 {
			return &domain.SchemaError{
				Table:  s.name,
				Column: c.name,
				Reason: fmt.Sprintf("duplicate value(s): %s", strings.Join(dups, ", ")),
			}
		}
	}
	return nil
}

func duplicates(values []string) []string {
	seen := make(map[string]int, len(values))
	for _, v := range values {
		seen[v]++
	}
	var dups []string
	for v, n := range seen {
		if n > 1 {
			dups = append(dups, v)
		}
	}
	sort.Strings(dups)
	return dups
}
