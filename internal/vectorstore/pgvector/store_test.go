package pgvector

import (
	"os"
	"testing"

	"github.com/dgallion1/citewise/internal/domain"
	"github.com/dgallion1/citewise/internal/vectorstore"
	"github.com/dgallion1/citewise/internal/vectorstore/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The contract suite needs a PostgreSQL server with pgvector installed.
// Point CITEWISE_TEST_POSTGRES_DSN at a disposable database to run it.
func TestStoreContract(t *testing.T) {
	dsn := os.Getenv("CITEWISE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CITEWISE_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) vectorstore.Store {
		s, err := Open(dsn)
		require.NoError(t, err)
		require.NoError(t, s.db.Exec("TRUNCATE citewise_chunks, citewise_collections").Error)
		t.Cleanup(func() { s.Close() })
		return s
	})
}

func TestOpen_EmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestRowConversion(t *testing.T) {
	c := storetest.Chunk("annual", 4, 3, 5, "h1", 0.5, -0.25)

	row := toRow("reports", c)
	assert.Equal(t, "reports", row.Collection)
	assert.Equal(t, c.ID, row.ChunkID)
	assert.Equal(t, 4, row.Seq)
	assert.Equal(t, []float32{0.5, -0.25}, row.Embedding.Slice())

	m := scoredRow{chunkRow: row, Score: 0.9}.match()
	assert.Equal(t, domain.Match{
		ChunkID:    c.ID,
		Collection: "reports",
		Source:     "annual",
		PageStart:  3,
		PageEnd:    5,
		Text:       "annual chunk",
		Score:      0.9,
	}, m)
}
