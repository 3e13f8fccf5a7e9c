package retrieval

import (
	"context"
	"fmt"
	"strings"

	"resumerag/internal/domain"
	"resumerag/internal/indexer"
	"resumerag/internal/vectorstore"
)

const DefaultTopK = 4

// Engine ranks a session's chunks against a free-text query.
type Engine struct {
	embedder domain.Embedder
	topK     int
}

func NewEngine(embedder domain.Embedder, topK int) *Engine {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{embedder: embedder, topK: topK}
}

// Retrieve returns at most k chunks by descending similarity, ties broken by ascending chunk id.
// k <= 0 selects the engine default. The index is read-only, so concurrent calls need no locking.
func (e *Engine) Retrieve(ctx context.Context, idx *indexer.Index, query string, k int) (domain.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrInvalidQuery
	}
	if idx == nil || idx.Len() == 0 {
		return nil, domain.ErrEmptyIndex
	}
	if idx.Model() != e.embedder.Name() {
		return nil, fmt.Errorf("%w: index built with %q, query embedder is %q", domain.ErrEmbeddingMismatch, idx.Model(), e.embedder.Name())
	}
	if k <= 0 {
		k = e.topK
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := idx.Vectors().Search(vec, idx.Len())
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	if !anyPositive(hits) {
		// no shared vocabulary with any chunk; let keyword matching pick the order
		hits, err = e.lexicalRerank(idx, query, hits)
		if err != nil {
			return nil, err
		}
	}
	if k > len(hits) {
		k = len(hits)
	}
	out := make(domain.RetrievalResult, 0, k)
	for _, h := range hits[:k] {
		c, ok := idx.Chunk(h.ID)
		if !ok {
			continue
		}
		out = append(out, domain.ScoredChunk{Chunk: c, Score: h.Score})
	}
	return out, nil
}

// lexicalRerank puts BM25 matches first and keeps the remaining vector hits after them in their vector order.
// Matches carry their BM25 score, which is positive, so the result stays in descending order.
func (e *Engine) lexicalRerank(idx *indexer.Index, query string, hits []vectorstore.Hit) ([]vectorstore.Hit, error) {
	lex := idx.Lexical()
	if lex == nil {
		return hits, nil
	}
	matches, err := lex.Search(query, len(hits))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return hits, nil
	}
	seen := make(map[int]struct{}, len(matches))
	out := make([]vectorstore.Hit, 0, len(hits))
	for _, m := range matches {
		seen[m.ID] = struct{}{}
		out = append(out, m)
	}
	rest := make([]vectorstore.Hit, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.ID]; !ok {
			rest = append(rest, h)
		}
	}
	return append(out, rest...), nil
}

func anyPositive(hits []vectorstore.Hit) bool {
	for _, h := range hits {
		if h.Score > 1e-9 {
			return true
		}
	}
	return false
}
