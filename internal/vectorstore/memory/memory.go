package memory

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"resumerag/internal/vectorstore"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// Each instance belongs to exactly one session. After Seal it is read-only
// and searches take no lock.
type Storage struct {
	mu        sync.Mutex
	sealed    atomic.Bool
	closed    atomic.Bool
	dimension int
	ids       []int
	vectors   [][]float32
	norms     []float64
	seen      map[int]struct{}
}

func NewStorage() *Storage { return &Storage{seen: make(map[int]struct{})} }

func (s *Storage) Insert(id int, vector []float32) error {
	if s.closed.Load() {
		return vectorstore.ErrClosed
	}
	if s.sealed.Load() {
		return vectorstore.ErrSealed
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty vector", vectorstore.ErrDimensionMismatch)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = len(vector)
	}
	if len(vector) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if _, dup := s.seen[id]; dup {
		return fmt.Errorf("%w: %d", vectorstore.ErrDuplicateID, id)
	}
	s.seen[id] = struct{}{}
	v := make([]float32, len(vector))
	copy(v, vector)
	s.ids = append(s.ids, id)
	s.vectors = append(s.vectors, v)
	s.norms = append(s.norms, norm(v))
	return nil
}

// Seal freezes the storage. Further inserts fail.
func (s *Storage) Seal() {
	s.mu.Lock()
	s.sealed.Store(true)
	s.mu.Unlock()
}

// Dimension returns the vector size fixed by the first insert.
func (s *Storage) Dimension() int {
	defer s.acquire()()
	return s.dimension
}

// IDs returns the indexed ids in insertion order.
func (s *Storage) IDs() []int {
	defer s.acquire()()
	out := make([]int, len(s.ids))
	copy(out, s.ids)
	return out
}

func (s *Storage) Len() int {
	defer s.acquire()()
	return len(s.ids)
}

// Search returns up to topK hits by descending cosine similarity, ties broken by ascending id.
func (s *Storage) Search(vector []float32, topK int) ([]vectorstore.Hit, error) {
	if s.closed.Load() {
		return nil, vectorstore.ErrClosed
	}
	defer s.acquire()()
	if len(s.ids) > 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", vectorstore.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if topK <= 0 {
		topK = 5
	}
	qn := norm(vector)
	hits := make([]vectorstore.Hit, len(s.ids))
	for i := range s.vectors {
		score := 0.0
		if qn > 0 && s.norms[i] > 0 {
			score = dot(s.vectors[i], vector) / (qn * s.norms[i])
		}
		hits[i] = vectorstore.Hit{ID: s.ids[i], Score: score}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if topK > len(hits) {
		topK = len(hits)
	}
	return hits[:topK], nil
}

// Close drops the vectors. It is safe to call more than once.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed.Store(true)
	s.ids = nil
	s.vectors = nil
	s.norms = nil
	s.seen = nil
	return nil
}

// acquire locks the storage unless it is sealed and returns the matching release.
func (s *Storage) acquire() func() {
	if s.sealed.Load() {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func dot(a []float32, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func norm(v []float32) float64 {
	return math.Sqrt(dot(v, v))
}
