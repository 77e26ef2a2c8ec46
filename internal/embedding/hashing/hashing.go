// Package hashing is a local embedder based on signed feature hashing.
// It needs no model files or network and gives lexical-overlap similarity.
package hashing

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// DefaultDims is the vector size used when none is configured.
const DefaultDims = 384

// Embedder hashes lower-cased word unigrams and bigrams into a fixed number
// of buckets. Each bucket gets +1 or -1 per feature depending on a hash bit,
// and the vector is L2-normalised.
type Embedder struct {
	dims int
}

func New(dims int) *Embedder {
	if dims <= 0 {
		dims = DefaultDims
	}
	return &Embedder{dims: dims}
}

func (e *Embedder) Dimensions() int { return e.dims }

func (e *Embedder) Model() string { return "hashing-v1" }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.vector(t)
	}
	return out, nil
}

func (e *Embedder) vector(text string) []float32 {
	v := make([]float32, e.dims)
	words := tokenize(text)
	for i, w := range words {
		e.add(v, w)
		if i > 0 {
			e.add(v, words[i-1]+" "+w)
		}
	}

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		// Blank text still needs a usable vector.
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

func (e *Embedder) add(v []float32, feature string) {
	h := fnv.New64a()
	h.Write([]byte(feature))
	sum := h.Sum64()
	bucket := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		v[bucket]--
	} else {
		v[bucket]++
	}
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
