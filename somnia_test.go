package somnia

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const alphaCSV = "subject,subject_age,text\nann,31,first dream\nbob,45,second dream\n"

type countingTransport struct {
	bodies map[string]string
	calls  int
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.calls++
	body, ok := t.bodies[req.URL.String()]
	if !ok {
		return &http.Response{
			StatusCode: http.StatusNotFound,
			Status:     "404 Not Found",
			Body:       io.NopCloser(strings.NewReader("")),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Status:     "200 OK",
		Body:       io.NopCloser(strings.NewReader(body)),
	}, nil
}

func testCatalog() string {
	sum := md5.Sum([]byte(alphaCSV))
	return fmt.Sprintf(`collections:
  lab:
    title: Lab
    corpora: [alpha]
corpora:
  alpha:
    title: Alpha Corpus
    description: Test corpus.
    citations:
      - "Author, A. (2020). A paper. Journal, 1(1), 1-10."
    column_map: {report: text, author: subject, age: subject_age}
    author_columns: [age]
    latest: "2"
    versions:
      "2":
        download_url: https://example.org/alpha_v2.csv
        hash: md5:%s
        doi: 10.0/alpha.v2
`, hex.EncodeToString(sum[:]))
}

func newTestClient(t *testing.T) (*Client, *countingTransport) {
	t.Helper()
	dir := t.TempDir()
	catalogPath := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(testCatalog()), 0o600))

	transport := &countingTransport{bodies: map[string]string{
		"https://example.org/alpha_v2.csv": alphaCSV,
	}}
	client, err := Open(
		WithCacheDir(filepath.Join(dir, "cache")),
		WithRegistryPath(catalogPath),
		WithHTTPClient(&http.Client{Transport: transport}),
	)
	require.NoError(t, err)
	return client, transport
}

func TestOpen_Defaults(t *testing.T) {
	client, err := Open()
	require.NoError(t, err)

	corpora, err := client.ListCorpora()
	require.NoError(t, err)
	assert.NotEmpty(t, corpora, "embedded catalog should list corpora")
}

func TestListings(t *testing.T) {
	client, _ := newTestClient(t)

	corpora, err := client.ListCorpora()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, corpora)

	collections, err := client.ListCollections()
	require.NoError(t, err)
	assert.Equal(t, []string{"lab"}, collections)

	versions, err := client.ListVersions("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, versions)
}

func TestListVersions_EmptyName(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.ListVersions("")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), "ListCorpora")
}

func TestLoad(t *testing.T) {
	client, transport := newTestClient(t)

	c, err := client.Load(context.Background(), "alpha")
	require.NoError(t, err)

	n, err := c.NReports()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, transport.calls)

	// A second load is served from the on-disk cache.
	again, err := client.Load(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, transport.calls)
	assert.Equal(t, c.Path(), again.Path())
}

func TestLoad_EmptyNameBeforeIO(t *testing.T) {
	client, transport := newTestClient(t)

	_, err := client.Load(context.Background(), "")
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, 0, transport.calls)
}

func TestLoadVersion_Unknown(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.LoadVersion(context.Background(), "alpha", "99")
	require.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))
}

func TestInfo(t *testing.T) {
	client, transport := newTestClient(t)

	info, err := client.Info("alpha")
	require.NoError(t, err)
	assert.Contains(t, info, "Corpus: alpha")
	assert.Contains(t, info, "Title: Alpha Corpus")
	assert.Contains(t, info, "Citations: Author, A. (2020)")
	assert.Equal(t, 0, transport.calls, "Info must not download anything")
}

func TestLint(t *testing.T) {
	client, _ := newTestClient(t)
	dir := t.TempDir()

	clean := filepath.Join(dir, "clean.yaml")
	require.NoError(t, os.WriteFile(clean, []byte(testCatalog()), 0o600))
	problems, err := client.Lint(clean)
	require.NoError(t, err)
	assert.Empty(t, problems)

	broken := filepath.Join(dir, "broken.yaml")
	catalog := strings.Replace(testCatalog(), `latest: "2"`, `latest: "9"`, 1)
	require.NoError(t, os.WriteFile(broken, []byte(catalog), 0o600))
	problems, err = client.Lint(broken)
	require.NoError(t, err)
	assert.NotEmpty(t, problems)
}