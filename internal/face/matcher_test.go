package face

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dim = 128

func randomEmbedding(r *rand.Rand) Embedding {
	e := make(Embedding, dim)
	for i := range e {
		e[i] = r.Float32()*2 - 1
	}
	return e
}

// offset returns a copy of base with delta added to coordinate i.
func offset(base Embedding, i int, delta float32) Embedding {
	out := base.Clone()
	out[i] += delta
	return out
}

func TestDistance_Identical(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for n := 0; n < 20; n++ {
		a := randomEmbedding(r)
		assert.Equal(t, 0.0, Distance(a, a))
		assert.Equal(t, 0.0, Distance(a, a.Clone()))
	}
}

func TestDistance_Symmetric(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	for n := 0; n < 50; n++ {
		a, b := randomEmbedding(r), randomEmbedding(r)
		assert.Equal(t, Distance(a, b), Distance(b, a))
	}
}

func TestDistance_Incomparable(t *testing.T) {
	tests := []struct {
		name string
		a, b Embedding
	}{
		{"length mismatch", Embedding{1, 2}, Embedding{1, 2, 3}},
		{"both empty", Embedding{}, Embedding{}},
		{"nil", nil, Embedding{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, math.IsInf(Distance(tt.a, tt.b), 1))
		})
	}
}

func TestDistance_Known(t *testing.T) {
	assert.InDelta(t, 5.0, Distance(Embedding{0, 0}, Embedding{3, 4}), 1e-9)
}

func TestFindBestMatch_Empty(t *testing.T) {
	_, ok := FindBestMatch(Embedding{1, 2, 3}, nil)
	assert.False(t, ok)

	_, ok = FindBestMatch(Embedding{1, 2, 3}, []Reference{{Identity: "E1"}})
	assert.False(t, ok, "identity without embeddings must not match")
}

func TestFindBestMatch_ExactEmbedding(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	target := randomEmbedding(r)
	refs := []Reference{
		{Identity: "E0", Embeddings: []Embedding{randomEmbedding(r), randomEmbedding(r)}},
		{Identity: "E1", Embeddings: []Embedding{randomEmbedding(r), target.Clone(), randomEmbedding(r)}},
		{Identity: "E2", Embeddings: []Embedding{randomEmbedding(r)}},
	}

	m, ok := FindBestMatch(target, refs)
	require.True(t, ok)
	assert.Equal(t, "E1", m.Identity)
	assert.Equal(t, 0.0, m.Distance)
	assert.Equal(t, 100, m.Confidence())
}

func TestFindBestMatch_GlobalMinimumAcrossIdentities(t *testing.T) {
	base := make(Embedding, dim)
	refs := []Reference{
		{Identity: "far", Embeddings: []Embedding{offset(base, 0, 0.8), offset(base, 1, 0.3)}},
		{Identity: "near", Embeddings: []Embedding{offset(base, 2, 0.9), offset(base, 3, 0.2)}},
	}

	m, ok := FindBestMatch(base, refs)
	require.True(t, ok)
	assert.Equal(t, "near", m.Identity)
	assert.InDelta(t, 0.2, m.Distance, 1e-6)
}

func TestFindBestMatch_SkipsIncomparable(t *testing.T) {
	refs := []Reference{
		{Identity: "short", Embeddings: []Embedding{{0}}},
		{Identity: "ok", Embeddings: []Embedding{{0, 1}}},
	}
	m, ok := FindBestMatch(Embedding{0, 0}, refs)
	require.True(t, ok)
	assert.Equal(t, "ok", m.Identity)
}

func TestFindBestMatch_TieReturnsOneOfTied(t *testing.T) {
	base := make(Embedding, dim)
	refs := []Reference{
		{Identity: "A", Embeddings: []Embedding{offset(base, 0, 0.25)}},
		{Identity: "B", Embeddings: []Embedding{offset(base, 1, -0.25)}},
	}
	m, ok := FindBestMatch(base, refs)
	require.True(t, ok)
	assert.Contains(t, []string{"A", "B"}, m.Identity)
	assert.InDelta(t, 0.25, m.Distance, 1e-6)
}

func TestMatcher_Threshold(t *testing.T) {
	v := make(Embedding, dim)
	v[0] = 1
	enrolled := []Reference{{Identity: "E1", Embeddings: []Embedding{
		v.Clone(),
		offset(v, 5, 0.01),
		offset(v, 6, -0.01),
		offset(v, 7, 0.02),
		offset(v, 8, -0.02),
	}}}
	m := NewMatcher(0.5)

	t.Run("near embedding accepted", func(t *testing.T) {
		got, ok := m.Match(offset(v, 1, 0.1), enrolled)
		assert.True(t, ok)
		assert.Equal(t, "E1", got.Identity)
		assert.InDelta(t, 0.1, got.Distance, 1e-6)
		assert.Equal(t, 90, got.Confidence())
	})

	t.Run("far embedding rejected", func(t *testing.T) {
		far := offset(v, 1, 0.9)
		got, ok := m.Match(far, enrolled)
		assert.False(t, ok)
		assert.Equal(t, "E1", got.Identity, "rejected match still reports the nearest identity")
		assert.GreaterOrEqual(t, got.Distance, 0.88)
	})

	t.Run("distance equal to threshold rejected", func(t *testing.T) {
		assert.False(t, m.Accepts(0.5))
		assert.True(t, m.Accepts(0.4999))
	})

	t.Run("empty reference set", func(t *testing.T) {
		_, ok := m.Match(v, nil)
		assert.False(t, ok)
	})
}

func TestNewMatcher_Default(t *testing.T) {
	assert.Equal(t, DefaultThreshold, NewMatcher(0).Threshold)
	assert.Equal(t, 0.6, NewMatcher(0.6).Threshold)
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		distance float64
		want     int
		display  int
	}{
		{0, 100, 100},
		{0.1, 90, 90},
		{0.456, 54, 54},
		{1, 0, 0},
		{1.3, -30, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Confidence(tt.distance), "distance %v", tt.distance)
		assert.Equal(t, tt.display, DisplayConfidence(tt.distance), "distance %v", tt.distance)
	}
}

func TestEmbedding_CloneIndependent(t *testing.T) {
	a := Embedding{1, 2, 3}
	b := a.Clone()
	b[0] = 9
	assert.Equal(t, float32(1), a[0])
	assert.Nil(t, Embedding(nil).Clone())
}
