package registry

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLint_ValidCatalog(t *testing.T) {
	problems := Lint([]byte(validCatalog))
	assert.Empty(t, problems)
}

func TestLint_EmbeddedCatalog(t *testing.T) {
	data, err := os.ReadFile("data/registry.yaml")
	require.NoError(t, err)
	assert.Empty(t, Lint(data))
}

func TestLint_UnorderedCorpora(t *testing.T) {
	catalog := strings.NewReplacer("alpha", "zeta").Replace(validCatalog)
	problems := Lint([]byte(catalog))
	require.NotEmpty(t, problems)
	found := false
	for _, p := range problems {
		if strings.Contains(p, "alphabetical order") {
			found = true
		}
	}
	assert.True(t, found, "problems %v should flag ordering", problems)
}

func TestLint_BadHashPrefix(t *testing.T) {
	catalog := strings.Replace(validCatalog,
		"md5:0cc175b9c0f1b6a831c399e269772661", "crc32:abcd1234", 1)
	problems := Lint([]byte(catalog))
	require.NotEmpty(t, problems)
	assert.Contains(t, strings.Join(problems, "\n"), "md5:<hex> or sha256:<hex>")
}

func TestLint_EmptyTitle(t *testing.T) {
	catalog := strings.Replace(validCatalog, "title: Beta Corpus", `title: ""`, 1)
	problems := Lint([]byte(catalog))
	assert.Contains(t, strings.Join(problems, "\n"), "beta: title is empty")
}

func TestLint_LatestMissing(t *testing.T) {
	catalog := strings.Replace(validCatalog, `latest: "2"`, `latest: "9"`, 1)
	problems := Lint([]byte(catalog))
	assert.Contains(t, strings.Join(problems, "\n"), "latest")
}

func TestLint_Unparseable(t *testing.T) {
	problems := Lint([]byte("corpora: [not: a: mapping"))
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "does not parse")
}
