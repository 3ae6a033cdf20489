// Package aggregate flattens every catalog corpus into the three-column
// distribution table and writes the release artifact.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/oneirolab/somnia/internal/corpus"
	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/domain/schema"
	"github.com/oneirolab/somnia/internal/domain/table"
	"github.com/oneirolab/somnia/internal/fetch"
	"github.com/oneirolab/somnia/internal/registry"
)

// Row is one record of the distribution artifact.
type Row struct {
	Corpus string `parquet:"corpus"`
	Author string `parquet:"author"`
	Report string `parquet:"report"`
}

// Builder materializes every corpus in the catalog into one table.
type Builder struct {
	store   *registry.Store
	fetcher *fetch.Fetcher
	log     *zap.Logger
}

// NewBuilder wires a builder over a registry store and a fetcher.
func NewBuilder(store *registry.Store, fetcher *fetch.Fetcher, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{store: store, fetcher: fetcher, log: log}
}

// Build loads the latest version of every corpus and concatenates the report
// rows, each tagged with "{name}-v{version}". The result is validated against
// the aggregate schema.
func (b *Builder) Build(ctx context.Context) (*table.Table, error) {
	names, err := b.store.Corpora()
	if err != nil {
		return nil, err
	}

	var rows [][]string
	for _, name := range names {
		entry, err := b.store.Entry(name, "")
		if err != nil {
			return nil, err
		}
		path, err := b.fetcher.Fetch(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", name, err)
		}
		c, err := corpus.New(entry, path, b.log)
		if err != nil {
			return nil, err
		}
		reports, err := c.Reports()
		if err != nil {
			return nil, fmt.Errorf("materialize %s: %w", name, err)
		}
		authors, err := reports.Column(domain.FieldAuthor)
		if err != nil {
			return nil, err
		}
		texts, err := reports.Column(domain.FieldReport)
		if err != nil {
			return nil, err
		}

		tag := fmt.Sprintf("%s-v%s", entry.Name, entry.Version)
		for i := range texts {
			rows = append(rows, []string{tag, authors[i], texts[i]})
		}
		b.log.Info("aggregated corpus",
			zap.String("corpus", name),
			zap.String("version", entry.Version),
			zap.Int("reports", len(texts)))
	}

	result, err := table.New([]string{"corpus", domain.FieldAuthor, domain.FieldReport}, rows)
	if err != nil {
		return nil, err
	}
	if err := schema.Aggregate.Validate(result); err != nil {
		return nil, err
	}
	return result, nil
}

// WriteCSV writes the aggregate table as a spreadsheet-compatible CSV: UTF-8
// byte-order mark, every field quoted, LF line endings. The file is created
// exclusively so an existing release artifact is never clobbered.
func WriteCSV(t *table.Table, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	var b strings.Builder
	b.WriteString("\ufeff")
	writeQuotedRow(&b, t.Columns())
	for i := 0; i < t.Len(); i++ {
		writeQuotedRow(&b, t.Row(i))
	}
	if _, err := out.WriteString(b.String()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

func writeQuotedRow(b *strings.Builder, fields []string) {
	for i, field := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		b.WriteString(strings.ReplaceAll(field, `"`, `""`))
		b.WriteByte('"')
	}
	b.WriteByte('\n')
}

// WriteParquet writes the aggregate table as a parquet release artifact.
func WriteParquet(t *table.Table, path string) error {
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = out.Close() }()

	writer := parquet.NewGenericWriter[Row](out)
	rows := make([]Row, t.Len())
	for i := 0; i < t.Len(); i++ {
		r := t.Row(i)
		rows[i] = Row{Corpus: r[0], Author: r[1], Report: r[2]}
	}
	if _, err := writer.Write(rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return out.Close()
}
