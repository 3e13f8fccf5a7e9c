package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumerag/internal/domain"
	"resumerag/internal/embedding/hashing"
)

type failingEmbedder struct {
	failOn string
	calls  atomic.Int32
}

func (f *failingEmbedder) Name() string   { return "failing" }
func (f *failingEmbedder) Dimension() int { return 2 }
func (f *failingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	if text == f.failOn {
		return nil, errors.New("model unavailable")
	}
	return []float32{1, 0}, nil
}

func makeChunks(n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{ID: i, Text: fmt.Sprintf("chunk %d text", i), Page: 1, BBox: domain.BBox{X0: 1, Y0: 1, X1: 2, Y1: 2}}
	}
	return out
}

func TestIndexer_Build(t *testing.T) {
	ix := New(hashing.NewEmbedder(64), 4)
	chunks := makeChunks(10)

	idx, err := ix.Build(context.Background(), chunks)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, "hashing-64", idx.Model())
	assert.Equal(t, 10, idx.Len())
	assert.Equal(t, 10, idx.Vectors().Len())
	assert.Equal(t, 10, idx.Lexical().Len())
	assert.Equal(t, chunks, idx.Chunks())

	c, ok := idx.Chunk(7)
	require.True(t, ok)
	assert.Equal(t, chunks[7], c)
	_, ok = idx.Chunk(10)
	assert.False(t, ok)
}

func TestIndexer_FailsClosed(t *testing.T) {
	emb := &failingEmbedder{failOn: "chunk 5 text"}
	idx, err := New(emb, 1).Build(context.Background(), makeChunks(10))
	require.ErrorIs(t, err, domain.ErrIndexingFailed)
	assert.Nil(t, idx)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestIndexer_RejectsDuplicateIDs(t *testing.T) {
	chunks := makeChunks(3)
	chunks[2].ID = 1
	_, err := New(hashing.NewEmbedder(16), 2).Build(context.Background(), chunks)
	assert.ErrorIs(t, err, domain.ErrIndexingFailed)
}

func TestIndexer_Empty(t *testing.T) {
	_, err := New(hashing.NewEmbedder(16), 2).Build(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrIndexingFailed)
}

func TestIndex_CloseIsIdempotent(t *testing.T) {
	idx, err := New(hashing.NewEmbedder(16), 2).Build(context.Background(), makeChunks(2))
	require.NoError(t, err)
	require.NoError(t, idx.Close())
	require.NoError(t, idx.Close())
	assert.Equal(t, 0, idx.Vectors().Len())
}

func TestIndexer_SeparateInstances(t *testing.T) {
	ix := New(hashing.NewEmbedder(16), 2)
	a, err := ix.Build(context.Background(), makeChunks(2))
	require.NoError(t, err)
	b, err := ix.Build(context.Background(), makeChunks(2))
	require.NoError(t, err)
	assert.NotSame(t, a.Vectors(), b.Vectors())
	require.NoError(t, a.Close())
	assert.Equal(t, 2, b.Vectors().Len())
	require.NoError(t, b.Close())
}
