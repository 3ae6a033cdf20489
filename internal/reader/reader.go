// Package reader holds the closed set of raw-table producers. Each producer
// turns one fetched corpus file into a single denormalized table with
// source-named columns; the materializer is indifferent to how the table was
// produced.
package reader

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/domain/table"
)

// Producer reads one delimited file into a table. The first record is the
// header row.
type Producer func(r io.Reader) (*table.Table, error)

// DefaultFormat is used when a registry entry declares no format.
const DefaultFormat = "csv"

// producers is the compile-time registry of format id to implementation.
// Adding a source format means adding an entry here, not synthesizing a
// function name at runtime.
var producers = map[string]Producer{
	"csv": delimited(','),
	"tsv": delimited('\t'),
}

// ForFormat resolves a format id to its producer. An empty id selects the
// default. Unknown ids fail with the supported set enumerated.
func ForFormat(format string) (Producer, error) {
	if format == "" {
		format = DefaultFormat
	}
	p, ok := producers[format]
	if !ok {
		available := make([]string, 0, len(producers))
		for id := range producers {
			available = append(available, id)
		}
		sort.Strings(available)
		return nil, domain.NewNotFound("format", format, available)
	}
	return p, nil
}

// delimited builds a producer for a single-rune delimiter. A UTF-8 byte
// order mark on the header is tolerated: some upstream exports carry one for
// spreadsheet compatibility.
func delimited(comma rune) Producer {
	return func(r io.Reader) (*table.Table, error) {
		cr := csv.NewReader(r)
		cr.Comma = comma
		cr.LazyQuotes = true
		records, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse delimited file: %w", err)
		}
		if len(records) == 0 {
			return nil, fmt.Errorf("file has no header row")
		}
		header := records[0]
		if len(header) > 0 {
			header[0] = strings.TrimPrefix(header[0], "\ufeff")
		}
		return table.New(header, records[1:])
	}
}
