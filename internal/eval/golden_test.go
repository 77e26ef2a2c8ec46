package eval

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadGolden(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml mapping", func(t *testing.T) {
		path := filepath.Join(dir, "golden.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
queries:
  - id: rev
    query_text: How much did revenue grow?
    expected_source: annual
    expected_pages: [3, 4]
    k: 3
    collections: [finance]
  - query: What is the leave policy?
    expected_source: handbook
    expected_pages: [10]
`), 0o644))

		qs, err := LoadGolden(path)
		require.NoError(t, err)
		require.Len(t, qs, 2)
		assert.Equal(t, GoldenQuery{
			ID:             "rev",
			Query:          "How much did revenue grow?",
			ExpectedSource: "annual",
			ExpectedPages:  []int{3, 4},
			K:              3,
			Collections:    []string{"finance"},
		}, qs[0])
		assert.Zero(t, qs[1].K)
	})

	t.Run("json list", func(t *testing.T) {
		path := filepath.Join(dir, "golden.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"query":"q","expected_source":"s","expected_pages":[1]}]`), 0o644))

		qs, err := LoadGolden(path)
		require.NoError(t, err)
		require.Len(t, qs, 1)
		assert.Equal(t, []int{1}, qs[0].ExpectedPages)
	})

	t.Run("query_text and short query key", func(t *testing.T) {
		qs, err := ParseGolden([]byte(`[
			{"query_text":"what is x","expected_source":"doc","expected_pages":[2,3],"k":5},
			{"query":"what is y","expected_source":"doc","expected_pages":[1]}
		]`), "json")
		require.NoError(t, err)
		require.Len(t, qs, 2)
		assert.Equal(t, "what is x", qs[0].Query)
		assert.Equal(t, 5, qs[0].K)
		assert.Equal(t, []int{2, 3}, qs[0].ExpectedPages)
		assert.Equal(t, "what is y", qs[1].Query)
		require.NoError(t, qs[0].Validate())
	})

	t.Run("unknown extension", func(t *testing.T) {
		_, err := LoadGolden(filepath.Join(dir, "golden.txt"))
		assert.Error(t, err)
	})

	t.Run("malformed", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yml")
		require.NoError(t, os.WriteFile(path, []byte("queries: [::"), 0o644))
		_, err := LoadGolden(path)
		assert.ErrorIs(t, err, domain.ErrConfiguration)
	})
}

func TestGoldenDefaults(t *testing.T) {
	q := GoldenQuery{Query: "x"}.withDefaults(2, 7)
	assert.Equal(t, "q3", q.ID)
	assert.Equal(t, 7, q.K)
}
