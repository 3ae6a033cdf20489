// Package corpus materializes a resolved registry entry and its cached file
// into the reports and authors tables.
package corpus

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/domain/normalize"
	"github.com/oneirolab/somnia/internal/domain/schema"
	"github.com/oneirolab/somnia/internal/domain/table"
	"github.com/oneirolab/somnia/internal/reader"
)

// Corpus is a materialized, resolved corpus instance. The raw table is read
// and normalized once, on first access to either derived view, and memoized
// for the lifetime of the instance.
type Corpus struct {
	meta domain.ResolvedEntry
	path string
	log  *zap.Logger

	mu     sync.Mutex
	loaded bool
	raw    *table.Table
}

// New constructs a corpus handle over a cached local file. It validates its
// inputs but touches no files until a derived view is requested.
func New(meta domain.ResolvedEntry, path string, log *zap.Logger) (*Corpus, error) {
	if meta.Name == "" {
		return nil, &domain.InputError{Argument: "name", Reason: "must not be empty"}
	}
	if path == "" {
		return nil, &domain.InputError{Argument: "path", Reason: "must not be empty"}
	}
	for _, field := range []string{domain.FieldReport, domain.FieldAuthor} {
		if _, ok := meta.ColumnMap[field]; !ok {
			return nil, &domain.ContractError{
				Field:  "column_map",
				Reason: fmt.Sprintf("is missing required key %q", field),
			}
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Corpus{meta: meta, path: path, log: log}, nil
}

// Name returns the corpus name.
func (c *Corpus) Name() string { return c.meta.Name }

// Metadata returns the resolved registry entry this corpus was built from.
func (c *Corpus) Metadata() domain.ResolvedEntry { return c.meta }

// Path returns the local path of the cached raw file.
func (c *Corpus) Path() string { return c.path }

// Reports returns the report-level table: the memoized raw table minus the
// author metadata columns, schema-validated. The result is a defensive copy.
func (c *Corpus) Reports() (*table.Table, error) {
	raw, err := c.ensureLoaded()
	if err != nil {
		return nil, err
	}
	reports, err := raw.Drop(c.meta.AuthorColumns...)
	if err != nil {
		return nil, err
	}
	if err := schema.Reports.Validate(reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// Authors returns the deduplicated author-level table: one row per unique
// author identifier plus the declared author metadata columns.
func (c *Corpus) Authors() (*table.Table, error) {
	if c.meta.AuthorColumns == nil {
		return nil, &domain.ContractError{Field: "author_columns", Reason: "is missing"}
	}
	raw, err := c.ensureLoaded()
	if err != nil {
		return nil, err
	}
	columns := append([]string{domain.FieldAuthor}, c.meta.AuthorColumns...)
	projected, err := raw.Select(columns...)
	if err != nil {
		return nil, err
	}
	authors := projected.DedupRows()
	if err := schema.Authors.Validate(authors); err != nil {
		return nil, err
	}
	return authors, nil
}

// NReports returns the row count of the reports view.
func (c *Corpus) NReports() (int, error) {
	reports, err := c.Reports()
	if err != nil {
		return 0, err
	}
	return reports.Len(), nil
}

// NAuthors returns the row count of the authors view.
func (c *Corpus) NAuthors() (int, error) {
	authors, err := c.Authors()
	if err != nil {
		return 0, err
	}
	return authors.Len(), nil
}

// ensureLoaded performs the one-way Unloaded to Loaded transition: read the
// raw file, rename source columns to canonical names, normalize the report
// column. Later calls return the memoized table.
func (c *Corpus) ensureLoaded() (*table.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded {
		return c.raw, nil
	}

	produce, err := reader.ForFormat(c.meta.Format)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("open corpus file: %w", err)
	}
	defer func() { _ = file.Close() }()

	raw, err := produce(file)
	if err != nil {
		return nil, fmt.Errorf("read corpus file %s: %w", c.path, err)
	}

	// column_map is canonical -> source; renaming needs source -> canonical.
	reversed := make(map[string]string, len(c.meta.ColumnMap))
	for canonical, source := range c.meta.ColumnMap {
		reversed[source] = canonical
	}
	renamed, err := raw.Rename(reversed)
	if err != nil {
		return nil, fmt.Errorf("apply column_map: %w", err)
	}

	rows, err := renamed.Column(domain.FieldReport)
	if err != nil {
		return nil, &domain.SchemaError{
			Table:  "reports",
			Column: domain.FieldReport,
			Reason: "column missing from raw table after column_map rename",
		}
	}
	result, err := normalize.Column(rows)
	if err != nil {
		return nil, err
	}
	if result.ReplacementRows > 0 {
		c.log.Warn("replacement characters remain after normalization",
			zap.String("corpus", c.meta.Name),
			zap.Int("rows", result.ReplacementRows))
	}
	if err := renamed.SetColumn(domain.FieldReport, result.Rows); err != nil {
		return nil, err
	}

	c.raw = renamed
	c.loaded = true
	return c.raw, nil
}

// String renders the descriptive metadata of the corpus.
func (c *Corpus) String() string {
	return Describe(c.meta)
}

// Describe renders a resolved entry's descriptive metadata.
func Describe(meta domain.ResolvedEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Corpus: %s\n", meta.Name)
	fmt.Fprintf(&b, "  Title: %s\n", meta.Title)
	fmt.Fprintf(&b, "  Description: %s\n", meta.Description)
	fmt.Fprintf(&b, "  Version: %s\n", meta.Version)
	if meta.DOI != "" {
		fmt.Fprintf(&b, "  DOI: https://doi.org/%s\n", meta.DOI)
	}
	shortened := make([]string, len(meta.Citations))
	for i, citation := range meta.Citations {
		shortened[i] = ShortenCitation(citation)
	}
	fmt.Fprintf(&b, "  Citations: %s", strings.Join(shortened, "; "))
	return b.String()
}

// ShortenCitation reduces a full citation to its "Author(s) (Year)" prefix:
// the text up to the first ")." delimiter, keeping the closing parenthesis.
// Citations without that delimiter are truncated to a 50-rune prefix.
func ShortenCitation(citation string) string {
	if i := strings.Index(citation, ")."); i >= 0 {
		return citation[:i+1]
	}
	runes := []rune(citation)
	if len(runes) <= 50 {
		return citation
	}
	return string(runes[:50]) + "..."
}
