package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()
	e := New(128)

	t.Run("one unit vector per input", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{"revenue grew", "", "cash flow"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for _, v := range vecs {
			require.Len(t, v, 128)
			var norm float64
			for _, x := range v {
				norm += float64(x) * float64(x)
			}
			assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
		}
	})

	t.Run("pure function of text", func(t *testing.T) {
		alone, err := e.Embed(ctx, []string{"quarterly revenue grew"})
		require.NoError(t, err)
		batched, err := e.Embed(ctx, []string{"something else", "quarterly revenue grew"})
		require.NoError(t, err)
		assert.Equal(t, alone[0], batched[1])
	})

	t.Run("case and punctuation insensitive", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{"Revenue, grew!", "revenue grew"})
		require.NoError(t, err)
		assert.Equal(t, vecs[0], vecs[1])
	})

	t.Run("overlapping text is closer", func(t *testing.T) {
		vecs, err := e.Embed(ctx, []string{
			"net revenue grew in the third quarter",
			"revenue grew in the third quarter",
			"the cat sat on a warm mat",
		})
		require.NoError(t, err)
		assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := e.Embed(cctx, []string{"x"})
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("default dims", func(t *testing.T) {
		assert.Equal(t, DefaultDims, New(0).Dimensions())
	})
}
