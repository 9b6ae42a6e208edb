package mock

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestEmbed_Deterministic(t *testing.T) {
	m := New()
	ctx := context.Background()

	a, err := m.Embed(ctx, "favorite food")
	require.NoError(t, err)
	b, err := m.Embed(ctx, "Favorite, FOOD!")
	require.NoError(t, err)

	assert.Len(t, a, DefaultDimensions)
	assert.Equal(t, a, b)
	assert.InDelta(t, 1.0, math.Sqrt(dot(a, a)), 1e-5)
	assert.Equal(t, 2, m.Calls())
}

func TestEmbed_SharedWordsScoreHigher(t *testing.T) {
	m := New()
	ctx := context.Background()

	q, _ := m.Embed(ctx, "favorite food")
	near, _ := m.Embed(ctx, "food")
	far, _ := m.Embed(ctx, "exam date")

	assert.Greater(t, dot(q, near), dot(q, far))
}

func TestEmbed_FailOnAndDimensions(t *testing.T) {
	m := New(8).FailOn("Broken")
	assert.Equal(t, 8, m.Dimensions())

	_, err := m.Embed(context.Background(), "broken")
	require.ErrorIs(t, err, ErrScripted)

	v, err := m.Embed(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, v, 8)
}
