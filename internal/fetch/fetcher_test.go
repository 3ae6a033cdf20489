package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneirolab/somnia/internal/domain"
)

// countingTransport serves fixed bytes and counts round trips.
type countingTransport struct {
	body  string
	calls int
}

func (t *countingTransport) RoundTrip(_ *http.Request) (*http.Response, error) {
	t.calls++
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(t.body)),
	}, nil
}

func md5Spec(body string) string {
	sum := md5.Sum([]byte(body))
	return "md5:" + hex.EncodeToString(sum[:])
}

func testEntry(body string) domain.ResolvedEntry {
	return domain.ResolvedEntry{
		Name:        "alpha",
		Version:     "1",
		DownloadURL: "https://example.org/alpha_v1.csv",
		Hash:        md5Spec(body),
	}
}

func newTestFetcher(t *testing.T, body string) (*Fetcher, *countingTransport) {
	t.Helper()
	transport := &countingTransport{body: body}
	client := &http.Client{Transport: transport}
	return New(t.TempDir(), client, nil), transport
}

func TestFetch_DownloadsOnMiss(t *testing.T) {
	const body = "author,report\nann,I flew over water\n"
	fetcher, transport := newTestFetcher(t, body)

	path, err := fetcher.Fetch(context.Background(), testEntry(body))
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, "alpha_v1.csv", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestFetch_SecondCallHitsCache(t *testing.T) {
	const body = "author,report\nann,a dream\n"
	fetcher, transport := newTestFetcher(t, body)
	entry := testEntry(body)

	first, err := fetcher.Fetch(context.Background(), entry)
	require.NoError(t, err)
	second, err := fetcher.Fetch(context.Background(), entry)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, transport.calls, "cache hit must not touch the network")
}

func TestFetch_IntegrityMismatch(t *testing.T) {
	const body = "corrupted payload"
	fetcher, transport := newTestFetcher(t, body)
	entry := testEntry("expected payload")

	path, err := fetcher.Fetch(context.Background(), entry)
	require.ErrorIs(t, err, domain.ErrIntegrity)
	assert.Empty(t, path)
	assert.Equal(t, 1, transport.calls)

	var intErr *domain.IntegrityError
	require.ErrorAs(t, err, &intErr)
	assert.Equal(t, entry.DownloadURL, intErr.URL)

	// Neither the final file nor the temp file may survive a mismatch.
	entries, readErr := os.ReadDir(fetcher.root)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestFetch_CorruptCacheFileRedownloaded(t *testing.T) {
	const body = "author,report\nann,a dream\n"
	fetcher, transport := newTestFetcher(t, body)
	entry := testEntry(body)

	require.NoError(t, os.MkdirAll(fetcher.root, 0o750))
	path := filepath.Join(fetcher.root, entry.CacheKey())
	require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o640))

	got, err := fetcher.Fetch(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, path, got)
	assert.Equal(t, 1, transport.calls)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, body, string(data))
}

func TestFetch_UnsupportedHashAlgorithm(t *testing.T) {
	fetcher, transport := newTestFetcher(t, "x")
	entry := testEntry("x")
	entry.Hash = "crc32:abcd1234"

	_, err := fetcher.Fetch(context.Background(), entry)
	require.ErrorIs(t, err, domain.ErrContract)
	assert.Equal(t, 0, transport.calls)
}

func TestFetch_MalformedHashSpec(t *testing.T) {
	fetcher, _ := newTestFetcher(t, "x")
	entry := testEntry("x")
	entry.Hash = "deadbeef"

	_, err := fetcher.Fetch(context.Background(), entry)
	require.ErrorIs(t, err, domain.ErrContract)
}

func TestFetch_HTTPError(t *testing.T) {
	client := &http.Client{
		Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusNotFound,
				Status:     "404 Not Found",
				Body:       io.NopCloser(strings.NewReader("not found")),
			}, nil
		}),
	}
	fetcher := New(t.TempDir(), client, nil)

	_, err := fetcher.Fetch(context.Background(), testEntry("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }
