package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneirolab/somnia/internal/domain"
)

const validCatalog = `collections:
  lab:
    title: Lab studies
    corpora:
      - alpha
corpora:
  alpha:
    title: Alpha Corpus
    description: Test corpus.
    citations:
      - "Author, A. (2020). A paper. Journal, 1(1), 1-10."
    environment: lab
    probe: awakening
    column_map:
      report: text
      author: subject
      age: subject_age
    author_columns:
      - age
    latest: "2"
    versions:
      "1":
        download_url: https://example.org/alpha_v1.csv
        hash: md5:0cc175b9c0f1b6a831c399e269772661
        doi: 10.0/alpha.v1
      "2":
        download_url: https://example.org/alpha_v2.csv
        hash: md5:92eb5ffee6ae2fec3ad71c777531578f
        doi: 10.0/alpha.v2
  beta:
    title: Beta Corpus
    description: Another test corpus.
    citations:
      - "Writer, B. (2021). Other paper. Journal, 2(2), 3-14."
    environment: home
    probe: diary
    column_map:
      report: dream
      author: dreamer
    author_columns: []
    latest: "1"
    versions:
      "1":
        download_url: https://example.org/beta_v1.csv
        hash: sha256:2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae
        doi: 10.0/beta.v1
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Embedded(t *testing.T) {
	store := NewStore("")
	reg, err := store.Load()
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Corpora)
	assert.NotEmpty(t, reg.Collections)
}

func TestLoad_CachedReferenceIdentical(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	first, err := store.Load()
	require.NoError(t, err)
	second, err := store.Load()
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestLoad_MissingFile(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := store.Load()
	require.Error(t, err)
}

func TestLoad_LatestNotInVersions(t *testing.T) {
	catalog := `corpora:
  alpha:
    title: Alpha
    description: d
    citations: ["c"]
    column_map: {report: text, author: subject}
    latest: "2"
    versions:
      "1":
        download_url: https://example.org/a.csv
        hash: md5:0cc175b9c0f1b6a831c399e269772661
`
	store := NewStore(writeCatalog(t, catalog))
	_, err := store.Load()
	require.ErrorIs(t, err, domain.ErrRegistryInvalid)
	assert.Contains(t, err.Error(), `latest "2" not found in versions`)
}

func TestLoad_ColumnMapMissingAuthor(t *testing.T) {
	catalog := `corpora:
  alpha:
    title: Alpha
    description: d
    citations: ["c"]
    column_map: {report: text}
    latest: "1"
    versions:
      "1":
        download_url: https://example.org/a.csv
        hash: md5:0cc175b9c0f1b6a831c399e269772661
`
	store := NewStore(writeCatalog(t, catalog))
	_, err := store.Load()
	require.ErrorIs(t, err, domain.ErrRegistryInvalid)
	assert.Contains(t, err.Error(), `"author"`)
}

func TestLoad_DanglingCollectionReference(t *testing.T) {
	catalog := `collections:
  lab:
    title: Lab
    corpora: [ghost]
corpora: {}
`
	store := NewStore(writeCatalog(t, catalog))
	_, err := store.Load()
	require.ErrorIs(t, err, domain.ErrRegistryInvalid)
	assert.Contains(t, err.Error(), "ghost")
}

func TestEntry_ResolvesLatest(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))

	implicit, err := store.Entry("alpha", "")
	require.NoError(t, err)
	explicit, err := store.Entry("alpha", "2")
	require.NoError(t, err)

	assert.Equal(t, explicit.DownloadURL, implicit.DownloadURL)
	assert.Equal(t, explicit.Hash, implicit.Hash)
	assert.Equal(t, "2", implicit.Version)
	assert.Equal(t, "alpha", implicit.Name)
	assert.Equal(t, "alpha_v2.csv", implicit.CacheKey())
}

func TestEntry_SpecificVersion(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	entry, err := store.Entry("alpha", "1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/alpha_v1.csv", entry.DownloadURL)
	assert.Equal(t, "10.0/alpha.v1", entry.DOI)
}

func TestEntry_UnknownCorpus(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	_, err := store.Entry("ghost", "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "alpha, beta")
}

func TestEntry_UnknownVersion(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	_, err := store.Entry("alpha", "99")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "1, 2")
}

func TestListings_Sorted(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))

	corpora, err := store.Corpora()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, corpora)

	collections, err := store.Collections()
	require.NoError(t, err)
	assert.Equal(t, []string{"lab"}, collections)

	versions, err := store.Versions("alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, versions)

	_, err = store.Versions("ghost")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResolve_KeepsDeclaredEmptyAuthorColumns(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	// beta declares author_columns: [] — the declaration must survive
	// resolution so an authors view of just unique ids stays available.
	entry, err := store.Entry("beta", "")
	require.NoError(t, err)
	assert.NotNil(t, entry.AuthorColumns)
	assert.Empty(t, entry.AuthorColumns)
}

func TestResolve_StripsVersions(t *testing.T) {
	store := NewStore(writeCatalog(t, validCatalog))
	entry, err := store.Entry("alpha", "1")
	require.NoError(t, err)
	// The resolved form carries exactly one version's parameters.
	assert.Equal(t, "1", entry.Version)
	assert.NotEmpty(t, entry.ColumnMap)
	assert.Equal(t, []string{"age"}, entry.AuthorColumns)
}
