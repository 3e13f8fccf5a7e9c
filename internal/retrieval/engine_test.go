package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumerag/internal/domain"
	"resumerag/internal/embedding/hashing"
	"resumerag/internal/indexer"
)

func build(t *testing.T, e domain.Embedder, texts ...string) *indexer.Index {
	t.Helper()
	chunks := make([]domain.Chunk, len(texts))
	for i, s := range texts {
		chunks[i] = domain.Chunk{ID: i, Text: s, Page: 1, BBox: domain.BBox{X0: 72, Y0: float64(100 + 20*i), X1: 300, Y1: float64(118 + 20*i)}}
	}
	idx, err := indexer.New(e, 2).Build(context.Background(), chunks)
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func ids(r domain.RetrievalResult) []int {
	out := make([]int, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk.ID
	}
	return out
}

func TestEngine_SingleChunkExample(t *testing.T) {
	emb := hashing.NewEmbedder(384)
	idx := build(t, emb, "Python, Go, Rust")

	res, err := NewEngine(emb, 4).Retrieve(context.Background(), idx, "What languages are known?", 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 0, res[0].Chunk.ID)
	assert.Equal(t, "Python, Go, Rust", res[0].Chunk.Text)
}

func TestEngine_RanksRelevantFirst(t *testing.T) {
	emb := hashing.NewEmbedder(384)
	idx := build(t, emb,
		"Bachelor of Science in Mathematics",
		"Built Kubernetes operators in Go",
		"Volunteer at the local food bank",
		"Go microservices with gRPC and Kubernetes",
	)
	eng := NewEngine(emb, 2)

	res, err := eng.Retrieve(context.Background(), idx, "Kubernetes Go experience", 0)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.ElementsMatch(t, []int{1, 3}, ids(res))
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestEngine_Deterministic(t *testing.T) {
	emb := hashing.NewEmbedder(1024)
	idx := build(t, emb, "alpha beta", "beta gamma delta epsilon", "gamma delta", "alpha beta")
	eng := NewEngine(emb, 4)

	first, err := eng.Retrieve(context.Background(), idx, "beta", 3)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := eng.Retrieve(context.Background(), idx, "beta", 3)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(again))
	}
	// identical texts tie; the lower id wins
	assert.Equal(t, 0, first[0].Chunk.ID)
	assert.Equal(t, 3, first[1].Chunk.ID)
}

func TestEngine_FewerChunksThanK(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	idx := build(t, emb, "one", "two")
	res, err := NewEngine(emb, 4).Retrieve(context.Background(), idx, "three", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, ids(res))
}

// blindEmbedder maps every chunk to the same vector and the query to zero,
// so only keyword matching can tell chunks apart.
type blindEmbedder struct{ query string }

func (b blindEmbedder) Name() string   { return "blind" }
func (b blindEmbedder) Dimension() int { return 2 }
func (b blindEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if text == b.query {
		return []float32{0, 0}, nil
	}
	return []float32{1, 0}, nil
}

func TestEngine_LexicalFallback(t *testing.T) {
	emb := blindEmbedder{query: "terraform"}
	idx := build(t, emb, "Education history", "Skills: Terraform, Ansible", "Hobbies")

	res, err := NewEngine(emb, 3).Retrieve(context.Background(), idx, "terraform", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 2}, ids(res))
	assert.Greater(t, res[0].Score, 0.0)
}

func TestEngine_StopwordQueryStillRanks(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	idx := build(t, emb, "Education history", "Skills: Terraform")
	res, err := NewEngine(emb, 2).Retrieve(context.Background(), idx, "what is the", 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, ids(res))
}

func TestEngine_Errors(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	idx := build(t, emb, "Python")
	eng := NewEngine(emb, 4)

	_, err := eng.Retrieve(context.Background(), idx, "   ", 4)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = eng.Retrieve(context.Background(), nil, "python", 4)
	assert.ErrorIs(t, err, domain.ErrEmptyIndex)

	_, err = NewEngine(hashing.NewEmbedder(32), 4).Retrieve(context.Background(), idx, "python", 4)
	assert.ErrorIs(t, err, domain.ErrEmbeddingMismatch)
}

func TestEngine_Isolation(t *testing.T) {
	emb := hashing.NewEmbedder(64)
	a := build(t, emb, "Rust")
	b := build(t, emb, "Rust", "Rust again", "More Rust")
	eng := NewEngine(emb, 10)

	res, err := eng.Retrieve(context.Background(), a, "Rust", 10)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, ids(res))

	res, err = eng.Retrieve(context.Background(), b, "Rust", 10)
	require.NoError(t, err)
	assert.Len(t, res, 3)
}
