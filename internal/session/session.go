package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"resumerag/internal/domain"
	"resumerag/internal/indexer"
)

// State is the externally visible status of a session id.
type State string

const (
	StateActive   State = "active"
	StateExpired  State = "expired"
	StateNotFound State = "not_found"
)

// Session is the isolated state of one uploaded document. Its index is immutable once
// the session is registered; mu guards only against destruction.
type Session struct {
	id        string
	createdAt time.Time
	ttl       time.Duration
	pages     []domain.PageDimension
	index     *indexer.Index
	name      string

	lastAccessed atomic.Int64

	mu        sync.RWMutex
	destroyed bool
}

func (s *Session) ID() string { return s.id }
func (s *Session) CreatedAt() time.Time { return s.createdAt }
func (s *Session) DocumentName() string { return s.name }
func (s *Session) Index() *indexer.Index { return s.index }
func (s *Session) ChunkCount() int { return s.index.Len() }
func (s *Session) LastAccessed() time.Time { return time.Unix(0, s.lastAccessed.Load()) }
func (s *Session) TTL() time.Duration { return s.ttl }
func (s *Session) PageCount() int { return len(s.pages) }

// PageDimensions returns a copy of the page table.
func (s *Session) PageDimensions() []domain.PageDimension {
	out := make([]domain.PageDimension, len(s.pages))
	copy(out, s.pages)
	return out
}

func (s *Session) expired(now time.Time) bool {
	return now.Sub(s.LastAccessed()) > s.ttl
}

func (s *Session) touch(now time.Time) { s.lastAccessed.Store(now.UnixNano()) }

// Info is a snapshot of a session returned to callers outside the manager.
type Info struct {
	ID             string                 `json:"session_id"`
	CreatedAt      time.Time              `json:"created_at"`
	PageCount      int                    `json:"page_count"`
	ChunkCount     int                    `json:"chunk_count"`
	PageDimensions []domain.PageDimension `json:"page_dimensions"`
}

func (s *Session) Info() Info {
	return Info{
		ID:             s.id,
		CreatedAt:      s.createdAt,
		PageCount:      s.PageCount(),
		ChunkCount:     s.ChunkCount(),
		PageDimensions: s.PageDimensions(),
	}
}

// Ingester turns document bytes into a ready index and its page table.
type Ingester interface {
	Ingest(ctx context.Context, data []byte) (*indexer.Index, []domain.PageDimension, error)
}

// Pipeline is the standard Ingester: extract, chunk, then index.
type Pipeline struct {
	Extractor domain.Extractor
	Chunker   domain.Chunker
	Indexer   *indexer.Indexer
}

func (p *Pipeline) Ingest(ctx context.Context, data []byte) (*indexer.Index, []domain.PageDimension, error) {
	pages, err := p.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	chunks, dims, err := p.Chunker.Chunk(pages)
	if err != nil {
		return nil, nil, fmt.Errorf("chunk: %w", err)
	}
	idx, err := p.Indexer.Build(ctx, chunks)
	if err != nil {
		return nil, nil, err
	}
	return idx, dims, nil
}
