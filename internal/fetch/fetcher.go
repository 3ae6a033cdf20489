// Package fetch downloads corpus files into a local cache directory and
// verifies their content hashes. A file is downloaded at most once per
// version; later fetches are served from disk after re-verification.
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/oneirolab/somnia/internal/domain"
	"github.com/oneirolab/somnia/internal/metrics"
)

// Fetcher resolves registry entries to verified local file paths.
type Fetcher struct {
	root   string
	client *http.Client
	log    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Fetcher caching under root. A nil client falls back to
// http.DefaultClient, a nil logger to zap.NewNop().
func New(root string, client *http.Client, log *zap.Logger) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Fetcher{
		root:   root,
		client: client,
		log:    log,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Fetch returns the local path of the entry's file, downloading it on a
// cache miss. The file's content hash is verified on every call, including
// cache hits; a mismatch never leaves a file at the returned path.
func (f *Fetcher) Fetch(ctx context.Context, entry domain.ResolvedEntry) (string, error) {
	lock := f.keyLock(entry.CacheKey())
	lock.Lock()
	defer lock.Unlock()

	path := filepath.Join(f.root, entry.CacheKey())

	if _, err := os.Stat(path); err == nil {
		if err := f.verify(path, entry); err != nil {
			f.log.Warn("cached file failed verification, re-downloading",
				zap.String("corpus", entry.Name),
				zap.String("path", path),
				zap.Error(err))
			if err := os.Remove(path); err != nil {
				return "", fmt.Errorf("remove corrupt cache file %s: %w", path, err)
			}
		} else {
			metrics.FetchCacheHitsTotal.WithLabelValues(entry.Name).Inc()
			return path, nil
		}
	}

	if err := f.download(ctx, entry, path); err != nil {
		return "", err
	}
	return path, nil
}

// keyLock serializes concurrent fetches of the same cache key.
func (f *Fetcher) keyLock(key string) *sync.Mutex {
	f.mu.Lock()
	defer f.mu.Unlock()
	lock, ok := f.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		f.locks[key] = lock
	}
	return lock
}

func (f *Fetcher) download(ctx context.Context, entry domain.ResolvedEntry, path string) error {
	hasher, want, err := newHasher(entry.Hash)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(f.root, 0o750); err != nil {
		return fmt.Errorf("mkdir %s: %w", f.root, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.DownloadURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", entry.DownloadURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", entry.DownloadURL, resp.Status)
	}

	tmp := path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	n, err := io.Copy(io.MultiWriter(out, hasher), resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	metrics.FetchDownloadBytesTotal.Add(float64(n))

	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		_ = os.Remove(tmp)
		metrics.FetchIntegrityFailuresTotal.WithLabelValues(entry.Name).Inc()
		return &domain.IntegrityError{URL: entry.DownloadURL, Want: want, Got: got}
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename %s: %w", tmp, err)
	}

	metrics.FetchDownloadsTotal.WithLabelValues(entry.Name).Inc()
	f.log.Info("downloaded corpus file",
		zap.String("corpus", entry.Name),
		zap.String("version", entry.Version),
		zap.Int64("bytes", n),
		zap.String("path", path))
	return nil
}

// verify recomputes the content hash of an existing cache file.
func (f *Fetcher) verify(path string, entry domain.ResolvedEntry) error {
	hasher, want, err := newHasher(entry.Hash)
	if err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(hasher, file); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	got := hex.EncodeToString(hasher.Sum(nil))
	if got != want {
		return &domain.IntegrityError{URL: path, Want: want, Got: got}
	}
	return nil
}

// newHasher parses an "algo:hexdigest" specification into a fresh hash and
// the expected digest.
func newHasher(spec string) (hash.Hash, string, error) {
	algo, digest, found := strings.Cut(spec, ":")
	if !found || digest == "" {
		return nil, "", &domain.ContractError{
			Field:  "hash",
			Reason: fmt.Sprintf("must be algo:hexdigest, got %q", spec),
		}
	}
	switch algo {
	case "md5":
		return md5.New(), digest, nil
	case "sha256":
		return sha256.New(), digest, nil
	default:
		return nil, "", &domain.ContractError{
			Field:  "hash",
			Reason: fmt.Sprintf("unsupported algorithm %q", algo),
		}
	}
}
