package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash_Deterministic(t *testing.T) {
	h := NewHash(64)
	ctx := context.Background()

	v1, err := h.Embed(ctx, []string{"Go is great for retrieval."})
	require.NoError(t, err)
	v2, err := h.Embed(ctx, []string{"Go is great for retrieval."})
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Len(t, v1[0], 64)
}

func TestHash_Normalised(t *testing.T) {
	h := NewHash(0)
	vecs, err := h.Embed(context.Background(), []string{"invoice totals and payment terms"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vecs[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
	assert.Equal(t, DefaultHashDimension, h.Dimension())
}

func TestHash_StopwordsOnlyIsZeroVector(t *testing.T) {
	h := NewHash(16)
	vecs, err := h.Embed(context.Background(), []string{"what is the", ""})
	require.NoError(t, err)

	for _, vec := range vecs {
		for _, v := range vec {
			assert.Zero(t, v)
		}
	}
}

func TestHash_SharedWordsAreCloser(t *testing.T) {
	h := NewHash(256)
	vecs, err := h.Embed(context.Background(), []string{
		"warranty covers battery replacement",
		"battery replacement warranty",
		"quarterly revenue forecast",
	})
	require.NoError(t, err)

	dot := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	assert.Greater(t, dot(vecs[0], vecs[1]), dot(vecs[0], vecs[2]))
}

func TestHash_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHash(8).Embed(ctx, []string{"anything"})
	assert.ErrorIs(t, err, context.Canceled)
}
