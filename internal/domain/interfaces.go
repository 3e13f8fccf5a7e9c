package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// BBox is an axis-aligned rectangle (x0, y0, x1, y1) in page points, origin at the top-left corner.
type BBox struct {
	X0, Y0, X1, Y1 float64
}

// Valid reports whether the box is well-formed: 0 <= x0 <= x1 and 0 <= y0 <= y1.
func (b BBox) Valid() bool {
	return b.X0 >= 0 && b.Y0 >= 0 && b.X0 <= b.X1 && b.Y0 <= b.Y1
}

// Within reports whether the box lies inside a page of the given size.
func (b BBox) Within(width, height float64) bool {
	return b.Valid() && b.X1 <= width && b.Y1 <= height
}

// Union returns the smallest box containing both b and o.
func (b BBox) Union(o BBox) BBox {
	return BBox{
		X0: min(b.X0, o.X0),
		Y0: min(b.Y0, o.Y0),
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
	}
}

// Slice returns the box as [x0, y0, x1, y1].
func (b BBox) Slice() []float64 { return []float64{b.X0, b.Y0, b.X1, b.Y1} }

// MarshalJSON encodes the box as [x0, y0, x1, y1], the form viewers highlight from.
func (b BBox) MarshalJSON() ([]byte, error) { return json.Marshal(b.Slice()) }

func (b *BBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bbox: want 4 coordinates, got %d", len(v))
	}
	*b = BBox{X0: v[0], Y0: v[1], X1: v[2], Y1: v[3]}
	return nil
}

// PageDimension is the size of one physical page in document-native points.
type PageDimension struct {
	Page   int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Fragment is a short run of text with its own bounding box, as produced by the PDF parser.
type Fragment struct {
	Text string
	BBox BBox
}

// Page holds the fragments of one page in reading order.
type Page struct {
	Number    int
	Width     float64
	Height    float64
	Fragments []Fragment
}

// Dimension returns the page-dimension record of the page.
func (p Page) Dimension() PageDimension {
	return PageDimension{Page: p.Number, Width: p.Width, Height: p.Height}
}

// Document is an uploaded file awaiting ingestion.
type Document struct {
	Name string
	Data []byte
}

// Chunk is a contiguous, page-bounded span of extracted text used for indexing and citation.
type Chunk struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
	Page int    `json:"page"`
	BBox BBox   `json:"bbox"`
}

// ScoredChunk is a chunk paired with its similarity to a query.
type ScoredChunk struct {
	Chunk Chunk
	Score float64
}

// RetrievalResult is the ranked output of a single query, best first.
type RetrievalResult []ScoredChunk

// Chunks returns the chunks of the result in rank order.
func (r RetrievalResult) Chunks() []Chunk {
	out := make([]Chunk, len(r))
	for i, sc := range r {
		out[i] = sc.Chunk
	}
	return out
}

// Citation links an answer marker to the chunk it refers to.
type Citation struct {
	ID      int    `json:"id"`
	ChunkID int    `json:"chunk_id"`
	Text    string `json:"text"`
	Page    int    `json:"page"`
	BBox    BBox   `json:"bbox"`
}

// SegmentKind tags a Segment.
type SegmentKind string

const (
	SegmentText     SegmentKind = "text"
	SegmentCitation SegmentKind = "citation"
)

// Segment is one piece of a parsed answer: either literal text or a resolved citation marker.
type Segment struct {
	Kind     SegmentKind `json:"kind"`
	Text     string      `json:"text"`
	Citation *Citation   `json:"citation,omitempty"`
}

// Extractor turns document bytes into per-page positioned text fragments.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]Page, error)
}

// Chunker merges page fragments into chunks.
type Chunker interface {
	Chunk(pages []Page) ([]Chunk, []PageDimension, error)
}

// Embedder converts free text into a fixed-size numeric vector.
// Name identifies the model so that query and index vectors can be checked for consistency.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator writes an answer for a query from retrieved chunks, citing them with bracketed markers.
type Generator interface {
	Generate(ctx context.Context, query string, chunks []ScoredChunk) (string, error)
}

// Marker returns the bracketed marker number a generator uses to cite the chunk with the given id.
func Marker(chunkID int) int { return chunkID + 1 }

// ChunkIDForMarker is the inverse of Marker.
func ChunkIDForMarker(marker int) int { return marker - 1 }
