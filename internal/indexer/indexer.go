package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"resumerag/internal/domain"
	"resumerag/internal/vectorstore"
	"resumerag/internal/vectorstore/lexical"
	"resumerag/internal/vectorstore/memory"
)

// Index is the immutable, session-private search structure over one document's chunks.
type Index struct {
	model   string
	vectors *memory.Storage
	lexical *lexical.Index
	chunks  map[int]domain.Chunk
	order   []int
	closed  atomic.Bool
}

// Model returns the name of the embedder that produced the indexed vectors.
func (x *Index) Model() string { return x.model }

// Len returns the number of indexed chunks.
func (x *Index) Len() int { return len(x.order) }

// Chunk looks a chunk up by id.
func (x *Index) Chunk(id int) (domain.Chunk, bool) {
	c, ok := x.chunks[id]
	return c, ok
}

// Chunks returns all chunks in id order.
func (x *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, 0, len(x.order))
	for _, id := range x.order {
		out = append(out, x.chunks[id])
	}
	return out
}

// Vectors exposes the nearest-neighbor storage.
func (x *Index) Vectors() vectorstore.Storage { return x.vectors }

// Lexical exposes the keyword index.
func (x *Index) Lexical() *lexical.Index { return x.lexical }

// Close releases vector and keyword memory. Only the first call has an effect.
func (x *Index) Close() error {
	if !x.closed.CompareAndSwap(false, true) {
		return nil
	}
	var errs []error
	if x.vectors != nil {
		errs = append(errs, x.vectors.Close())
	}
	if x.lexical != nil {
		errs = append(errs, x.lexical.Close())
	}
	x.chunks = nil
	return errors.Join(errs...)
}

// Indexer builds Index values with a given embedder.
type Indexer struct {
	embedder    domain.Embedder
	concurrency int
}

func New(embedder domain.Embedder, concurrency int) *Indexer {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Indexer{embedder: embedder, concurrency: concurrency}
}

// Build embeds every chunk and returns a sealed index. Any failure discards the
// partially built index and returns an error wrapping domain.ErrIndexingFailed.
func (ix *Indexer) Build(ctx context.Context, chunks []domain.Chunk) (*Index, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks", domain.ErrIndexingFailed)
	}
	lex, err := lexical.NewIndex()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexingFailed, err)
	}
	x := &Index{
		model:   ix.embedder.Name(),
		vectors: memory.NewStorage(),
		lexical: lex,
		chunks:  make(map[int]domain.Chunk, len(chunks)),
		order:   make([]int, 0, len(chunks)),
	}
	fail := func(err error) (*Index, error) {
		_ = x.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrIndexingFailed, err)
	}

	vecs := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)
	for i := range chunks {
		g.Go(func() error {
			v, err := ix.embedder.Embed(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", chunks[i].ID, err)
			}
			vecs[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail(err)
	}

	for i, c := range chunks {
		if _, dup := x.chunks[c.ID]; dup {
			return fail(fmt.Errorf("duplicate chunk id %d", c.ID))
		}
		if err := x.vectors.Insert(c.ID, vecs[i]); err != nil {
			return fail(fmt.Errorf("insert chunk %d: %w", c.ID, err))
		}
		if err := x.lexical.Add(c.ID, c.Text); err != nil {
			return fail(fmt.Errorf("lexical chunk %d: %w", c.ID, err))
		}
		x.chunks[c.ID] = c
		x.order = append(x.order, c.ID)
	}
	if x.vectors.Len() != len(chunks) {
		return fail(fmt.Errorf("indexed %d vectors for %d chunks", x.vectors.Len(), len(chunks)))
	}
	x.vectors.Seal()
	return x, nil
}
