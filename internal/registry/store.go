// Package registry loads the declarative corpus catalog and resolves
// (name, version) pairs to concrete fetch parameters.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/oneirolab/somnia/internal/domain"
)

//go:embed data/registry.yaml
var embeddedCatalog []byte

// Store parses the catalog exactly once and serves all lookups from that
// single immutable parse. Construct one Store per catalog source and pass it
// explicitly; there is no package-level instance.
type Store struct {
	path string // empty selects the embedded catalog

	once sync.Once
	reg  *domain.Registry
	err  error
}

// NewStore creates a store for the catalog at path. An empty path selects
// the catalog embedded in the binary.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load parses and validates the catalog on first call; every later call
// returns the identical cached object. Callers must not mutate it.
func (s *Store) Load() (*domain.Registry, error) {
	s.once.Do(func() {
		s.reg, s.err = s.parse()
	})
	return s.reg, s.err
}

func (s *Store) parse() (*domain.Registry, error) {
	data := embeddedCatalog
	if s.path != "" {
		var err error
		data, err = os.ReadFile(s.path)
		if err != nil {
			return nil, fmt.Errorf("read registry %s: %w", s.path, err)
		}
	}
	var reg domain.Registry
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: parse catalog: %v", domain.ErrRegistryInvalid, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Entry resolves a corpus name and version to concrete fetch parameters.
// An empty version resolves the entry's declared latest.
func (s *Store) Entry(name, version string) (domain.ResolvedEntry, error) {
	reg, err := s.Load()
	if err != nil {
		return domain.ResolvedEntry{}, err
	}
	entry, ok := reg.Corpora[name]
	if !ok {
		return domain.ResolvedEntry{}, domain.NewNotFound("corpus", name, sortedKeys(reg.Corpora))
	}
	return entry.Resolve(name, version)
}

// Corpora returns the sorted corpus names.
func (s *Store) Corpora() ([]string, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return sortedKeys(reg.Corpora), nil
}

// Collections returns the sorted collection names.
func (s *Store) Collections() ([]string, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	return sortedKeys(reg.Collections), nil
}

// Versions returns the sorted version ids for a corpus.
func (s *Store) Versions(name string) ([]string, error) {
	reg, err := s.Load()
	if err != nil {
		return nil, err
	}
	entry, ok := reg.Corpora[name]
	if !ok {
		return nil, domain.NewNotFound("corpus", name, sortedKeys(reg.Corpora))
	}
	return sortedKeys(entry.Versions), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
