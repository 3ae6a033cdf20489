package domain

import (
	"fmt"
	"slices"
	"sort"
)

// Canonical field names every corpus must map to.
const (
	FieldReport = "report"
	FieldAuthor = "author"
)

// Version holds the fetch parameters for one released version of a corpus.
type Version struct {
	DownloadURL string `yaml:"download_url"`
	Hash        string `yaml:"hash"` // algorithm-prefixed, e.g. "md5:<hex>"
	DOI         string `yaml:"doi"`
}

// RegistryEntry is one named corpus definition as declared in the catalog.
type RegistryEntry struct {
	Title         string             `yaml:"title"`
	Description   string             `yaml:"description"`
	Citations     []string           `yaml:"citations"`
	Environment   string             `yaml:"environment"`
	Probe         string             `yaml:"probe"`
	Format        string             `yaml:"format"` // raw-table producer id, default "csv"
	ColumnMap     map[string]string  `yaml:"column_map"`
	AuthorColumns []string           `yaml:"author_columns"`
	Latest        string             `yaml:"latest"`
	Versions      map[string]Version `yaml:"versions"`
}

// Collection is a named grouping of corpus names.
type Collection struct {
	Title   string   `yaml:"title"`
	Corpora []string `yaml:"corpora"`
}

// Registry is the whole catalog. Immutable once loaded.
type Registry struct {
	Collections map[string]Collection    `yaml:"collections"`
	Corpora     map[string]RegistryEntry `yaml:"corpora"`
}

// ResolvedEntry is a RegistryEntry with one version chosen: the versions map
// and latest pointer are replaced by the resolved version's scalar fields.
type ResolvedEntry struct {
	Name          string
	Title         string
	Description   string
	Citations     []string
	Environment   string
	Probe         string
	Format        string
	ColumnMap     map[string]string
	AuthorColumns []string
	Version       string
	DownloadURL   string
	Hash          string
	DOI           string
}

// Resolve merges the chosen version into the entry's scalar fields.
// An empty version resolves the entry's declared latest.
func (e RegistryEntry) Resolve(name, version string) (ResolvedEntry, error) {
	if version == "" {
		version = e.Latest
	}
	v, ok := e.Versions[version]
	if !ok {
		available := make([]string, 0, len(e.Versions))
		for id := range e.Versions {
			available = append(available, id)
		}
		sort.Strings(available)
		return ResolvedEntry{}, NewNotFound("version", version, available)
	}
	return ResolvedEntry{
		Name:          name,
		Title:         e.Title,
		Description:   e.Description,
		Citations:     slices.Clone(e.Citations),
		Environment:   e.Environment,
		Probe:         e.Probe,
		Format:        e.Format,
		ColumnMap:     cloneStringMap(e.ColumnMap),
		// slices.Clone keeps a declared-empty author_columns distinct from
		// an absent one; Authors() treats only the absent form as an error.
		AuthorColumns: slices.Clone(e.AuthorColumns),
		Version:       version,
		DownloadURL:   v.DownloadURL,
		Hash:          v.Hash,
		DOI:           v.DOI,
	}, nil
}

// Validate enforces the load-time catalog invariants. Ordering and
// descriptive-metadata rules are a lint concern, not checked here.
func (r Registry) Validate() error {
	for name, entry := range r.Corpora {
		if len(entry.Versions) == 0 {
			return fmt.Errorf("%w: corpus %q has no versions", ErrRegistryInvalid, name)
		}
		if _, ok := entry.Versions[entry.Latest]; !ok {
			return fmt.Errorf("%w: corpus %q: latest %q not found in versions",
				ErrRegistryInvalid, name, entry.Latest)
		}
		for _, field := range []string{FieldReport, FieldAuthor} {
			if _, ok := entry.ColumnMap[field]; !ok {
				return fmt.Errorf("%w: corpus %q: column_map missing required key %q",
					ErrRegistryInvalid, name, field)
			}
		}
	}
	for collName, coll := range r.Collections {
		for _, corpusName := range coll.Corpora {
			if _, ok := r.Corpora[corpusName]; !ok {
				return fmt.Errorf("%w: collection %q references non-existent corpus %q",
					ErrRegistryInvalid, collName, corpusName)
			}
		}
	}
	return nil
}

// CacheKey is the deterministic local cache filename for a resolved corpus.
func (e ResolvedEntry) CacheKey() string {
	return fmt.Sprintf("%s_v%s.csv", e.Name, e.Version)
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
