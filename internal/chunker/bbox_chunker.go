package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"resumerag/internal/domain"
)

// BBoxChunker merges positioned page fragments into size-bounded chunks that never cross a page.
type BBoxChunker struct {
	maxChars     int
	minChars     int
	overlapChars int
}

func NewBBoxChunker(maxChars, minChars, overlapChars int) *BBoxChunker {
	if maxChars <= 0 {
		maxChars = 500
	}
	if minChars < 0 {
		minChars = 0
	}
	if minChars > maxChars {
		minChars = maxChars
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = 0
	}
	return &BBoxChunker{maxChars: maxChars, minChars: minChars, overlapChars: overlapChars}
}

// Chunk validates page geometry and returns chunks (ids from 0) plus the page-dimension table.
func (c *BBoxChunker) Chunk(pages []domain.Page) ([]domain.Chunk, []domain.PageDimension, error) {
	if err := validate(pages); err != nil {
		return nil, nil, err
	}
	dims := make([]domain.PageDimension, len(pages))
	var chunks []domain.Chunk
	for i, p := range pages {
		dims[i] = p.Dimension()
		for _, pc := range c.chunkPage(p) {
			pc.ID = len(chunks)
			chunks = append(chunks, pc)
		}
	}
	if len(chunks) == 0 {
		return nil, nil, domain.ErrEmptyDocument
	}
	return chunks, dims, nil
}

func (c *BBoxChunker) chunkPage(p domain.Page) []domain.Chunk {
	var (
		out  []domain.Chunk
		cur  strings.Builder
		box  domain.BBox
		open bool
	)
	flush := func() {
		if !open {
			return
		}
		out = append(out, domain.Chunk{Text: cur.String(), Page: p.Number, BBox: box})
		cur.Reset()
		open = false
	}
	for _, f := range p.Fragments {
		text := normalizeSpace(f.Text)
		if text == "" {
			continue
		}
		n := utf8.RuneCountInString(text)
		if n > c.maxChars {
			flush()
			for _, w := range c.windows(text) {
				out = append(out, domain.Chunk{Text: w, Page: p.Number, BBox: f.BBox})
			}
			continue
		}
		if open && utf8.RuneCountInString(cur.String())+1+n > c.maxChars {
			flush()
		}
		if open {
			cur.WriteByte(' ')
			box = box.Union(f.BBox)
		} else {
			box = f.BBox
			open = true
		}
		cur.WriteString(text)
	}
	flush()
	return c.foldShort(out)
}

// foldShort merges every chunk shorter than minChars into a neighbour on the same page,
// preferring the preceding one, while the merged text stays within maxChars + minChars.
// A short chunk with no neighbour that fits is kept.
func (c *BBoxChunker) foldShort(chunks []domain.Chunk) []domain.Chunk {
	if c.minChars == 0 || len(chunks) < 2 {
		return chunks
	}
	out := make([]domain.Chunk, 0, len(chunks))
	for i := 0; i < len(chunks); i++ {
		ch := chunks[i]
		if utf8.RuneCountInString(ch.Text) >= c.minChars {
			out = append(out, ch)
			continue
		}
		if n := len(out); n > 0 && c.fits(out[n-1], ch) {
			out[n-1] = merge(out[n-1], ch)
			continue
		}
		if i+1 < len(chunks) && c.fits(ch, chunks[i+1]) {
			chunks[i+1] = merge(ch, chunks[i+1])
			continue
		}
		out = append(out, ch)
	}
	return out
}

func (c *BBoxChunker) fits(a, b domain.Chunk) bool {
	return utf8.RuneCountInString(a.Text)+1+utf8.RuneCountInString(b.Text) <= c.maxChars+c.minChars
}

func merge(a, b domain.Chunk) domain.Chunk {
	return domain.Chunk{Text: a.Text + " " + b.Text, Page: a.Page, BBox: a.BBox.Union(b.BBox)}
}

// windows splits an oversized fragment into overlapping windows of at most maxChars runes,
// preferring to cut at whitespace.
func (c *BBoxChunker) windows(text string) []string {
	runes := []rune(text)
	var out []string
	start := 0
	for start < len(runes) {
		end := start + c.maxChars
		if end >= len(runes) {
			out = append(out, strings.TrimSpace(string(runes[start:])))
			break
		}
		if cut := lastSpace(runes[start:end]); cut > c.maxChars/2 {
			end = start + cut
		}
		out = append(out, strings.TrimSpace(string(runes[start:end])))
		next := end - c.overlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == ' ' {
			return i
		}
	}
	return -1
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func validate(pages []domain.Page) error {
	for i, p := range pages {
		if p.Number != i+1 {
			return fmt.Errorf("%w: page %d out of sequence (expected %d)", domain.ErrMalformedGeometry, p.Number, i+1)
		}
		if !(p.Width > 0) || !(p.Height > 0) {
			return fmt.Errorf("%w: page %d has size %.2fx%.2f", domain.ErrMalformedGeometry, p.Number, p.Width, p.Height)
		}
		for j, f := range p.Fragments {
			if strings.TrimSpace(f.Text) == "" {
				continue
			}
			if !f.BBox.Within(p.Width, p.Height) {
				return fmt.Errorf("%w: fragment %d on page %d has bbox %v outside %.2fx%.2f",
					domain.ErrMalformedGeometry, j, p.Number, f.BBox.Slice(), p.Width, p.Height)
			}
		}
	}
	return nil
}
