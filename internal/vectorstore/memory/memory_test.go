package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumerag/internal/vectorstore"
)

func TestStorage_SearchOrdersByScoreThenID(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert(2, []float32{1, 0}))
	require.NoError(t, s.Insert(0, []float32{1, 0}))
	require.NoError(t, s.Insert(1, []float32{0, 1}))
	require.NoError(t, s.Insert(3, []float32{1, 1}))

	hits, err := s.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 4)
	assert.Equal(t, []int{0, 2, 3, 1}, []int{hits[0].ID, hits[1].ID, hits[2].ID, hits[3].ID})
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.0, hits[3].Score, 1e-9)
}

func TestStorage_TopK(t *testing.T) {
	s := NewStorage()
	for i := 0; i < 6; i++ {
		require.NoError(t, s.Insert(i, []float32{float32(i + 1), 1}))
	}
	hits, err := s.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, 6, s.Len())
}

func TestStorage_InsertErrors(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert(0, []float32{1, 2, 3}))
	assert.ErrorIs(t, s.Insert(0, []float32{1, 2, 3}), vectorstore.ErrDuplicateID)
	assert.ErrorIs(t, s.Insert(1, []float32{1, 2}), vectorstore.ErrDimensionMismatch)
	assert.ErrorIs(t, s.Insert(1, nil), vectorstore.ErrDimensionMismatch)

	s.Seal()
	assert.ErrorIs(t, s.Insert(1, []float32{1, 2, 3}), vectorstore.ErrSealed)
	assert.Equal(t, []int{0}, s.IDs())
	assert.Equal(t, 3, s.Dimension())

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	_, err := s.Search([]float32{1, 2, 3}, 1)
	assert.ErrorIs(t, err, vectorstore.ErrClosed)
}

func TestStorage_ZeroQueryScoresZero(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Insert(0, []float32{1, 0}))
	require.NoError(t, s.Insert(1, []float32{0, 1}))
	hits, err := s.Search([]float32{0, 0}, 5)
	require.NoError(t, err)
	assert.Equal(t, []vectorstore.Hit{{ID: 0, Score: 0}, {ID: 1, Score: 0}}, hits)
}

func TestStorage_ConcurrentSealedSearch(t *testing.T) {
	s := NewStorage()
	for i := 0; i < 50; i++ {
		require.NoError(t, s.Insert(i, []float32{float32(i), float32(50 - i)}))
	}
	s.Seal()
	want, err := s.Search([]float32{1, 1}, 5)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				got, err := s.Search([]float32{1, 1}, 5)
				assert.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}()
	}
	wg.Wait()
}
