// Package somnia provides access to curated, versioned dream-report corpora:
// registry lookup, hash-verified fetching with a local cache, and
// materialization into normalized reports and authors tables.
package somnia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oneirolab/somnia/internal/corpus"
	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/fetch"
	"github.com/oneirolab/somnia/internal/registry"
)

// Re-exported sentinels so callers can match errors with errors.Is.
var (
	ErrNotFound        = domain.ErrNotFound
	ErrIntegrity       = domain.ErrIntegrity
	ErrSchemaViolation = domain.ErrSchemaViolation
	ErrEmptyReport     = domain.ErrEmptyReport
	ErrContract        = domain.ErrContract
	ErrInvalidInput    = domain.ErrInvalidInput
)

// Corpus is a materialized corpus handle.
type Corpus = corpus.Corpus

// Client is the somnia library entry point.
type Client struct {
	store   *registry.Store
	fetcher *fetch.Fetcher
	logger  *zap.Logger
}

type clientConfig struct {
	cacheDir     string
	registryPath string
	httpClient   *http.Client
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*clientConfig)

// WithCacheDir overrides the local content-cache directory.
func WithCacheDir(dir string) Option {
	return func(c *clientConfig) { c.cacheDir = dir }
}

// WithRegistryPath reads the catalog from a file instead of the embedded one.
func WithRegistryPath(path string) Option {
	return func(c *clientConfig) { c.registryPath = path }
}

// WithHTTPClient overrides the HTTP client used for downloads.
func WithHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = client }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// Open creates a somnia Client. The catalog itself is parsed lazily, on the
// first operation that needs it.
func Open(opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o(cfg)
	}

	if cfg.cacheDir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("somnia: resolve user cache dir: %w", err)
		}
		cfg.cacheDir = filepath.Join(base, "somnia")
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	return &Client{
		store:   registry.NewStore(cfg.registryPath),
		fetcher: fetch.New(cfg.cacheDir, cfg.httpClient, cfg.logger),
		logger:  cfg.logger,
	}, nil
}

// ListCollections returns the sorted collection names.
func (c *Client) ListCollections() ([]string, error) {
	return c.store.Collections()
}

// ListCorpora returns the sorted corpus names.
func (c *Client) ListCorpora() ([]string, error) {
	return c.store.Corpora()
}

// ListVersions returns the sorted version identifiers of a corpus.
func (c *Client) ListVersions(name string) ([]string, error) {
	if err := validateName(name, "ListCorpora"); err != nil {
		return nil, err
	}
	return c.store.Versions(name)
}

// Load fetches and materializes the latest version of a corpus.
func (c *Client) Load(ctx context.Context, name string) (*Corpus, error) {
	return c.LoadVersion(ctx, name, "")
}

// LoadVersion fetches and materializes a specific version of a corpus. An
// empty version resolves the entry's declared latest.
func (c *Client) LoadVersion(ctx context.Context, name, version string) (*Corpus, error) {
	if err := validateName(name, "ListCorpora"); err != nil {
		return nil, err
	}
	entry, err := c.store.Entry(name, version)
	if err != nil {
		return nil, err
	}
	path, err := c.fetcher.Fetch(ctx, entry)
	if err != nil {
		return nil, err
	}
	return corpus.New(entry, path, c.logger)
}

// Info returns the rendered descriptive metadata of a corpus without
// downloading anything.
func (c *Client) Info(name string) (string, error) {
	if err := validateName(name, "ListCorpora"); err != nil {
		return "", err
	}
	entry, err := c.store.Entry(name, "")
	if err != nil {
		return "", err
	}
	return corpus.Describe(entry), nil
}

// Lint runs the catalog release checks and returns the itemized problems.
func (c *Client) Lint(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("somnia: read catalog: %w", err)
	}
	return registry.Lint(data), nil
}

// validateName rejects empty names before any I/O happens.
func validateName(name, discovery string) error {
	if name == "" {
		return &domain.InputError{
			Argument: "name",
			Reason:   "must not be empty",
			Hint:     "call " + discovery + " to list valid names",
		}
	}
	return nil
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
