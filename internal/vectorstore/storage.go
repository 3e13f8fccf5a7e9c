package vectorstore

import "errors"

var (
	ErrDuplicateID       = errors.New("vector id already indexed")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrSealed            = errors.New("storage is sealed")
	ErrClosed            = errors.New("storage is closed")
)

// Hit is one ranked search result.
type Hit struct {
	ID    int
	Score float64
}

// Storage holds id-keyed vectors and supports similarity search.
type Storage interface {
	Insert(id int, vector []float32) error
	Search(vector []float32, topK int) ([]Hit, error)
	Len() int
	Close() error
}
