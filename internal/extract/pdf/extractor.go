package pdf

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"unicode"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/ternarybob/arbor"

	"resumerag/internal/domain"
	"resumerag/internal/logging"
)

var disableConfigDir sync.Once

// Extractor reads positioned text runs from PDF bytes. Coordinates are returned
// with the origin at the top-left corner of the page, y growing downward.
type Extractor struct {
	logger arbor.ILogger
}

func NewExtractor(logger arbor.ILogger) *Extractor {
	disableConfigDir.Do(api.DisableConfigDir)
	if logger == nil {
		logger = logging.Discard()
	}
	return &Extractor{logger: logger}
}

// Extract returns every page in order with the text fragments found on it.
// A page without a text layer yields no fragments.
func (e *Extractor) Extract(ctx context.Context, data []byte) (pages []domain.Page, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", domain.ErrUnreadableDocument)
	}
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: parser panic: %v", domain.ErrUnreadableDocument, r)
		}
	}()

	r, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnreadableDocument, err)
	}
	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("%w: no pages", domain.ErrUnreadableDocument)
	}
	dims := e.pageDims(data, n)

	pages = make([]domain.Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		page := domain.Page{Number: i}
		if dims != nil {
			page.Width, page.Height = dims[i-1].w, dims[i-1].h
		}
		if p.V.IsNull() {
			pages = append(pages, page)
			continue
		}
		ox, oy, w, h := mediaBox(p.V)
		if dims == nil {
			page.Width, page.Height = w, h
		}
		page.Fragments = fragments(p.Content().Text, ox, oy, page.Width, page.Height)
		pages = append(pages, page)
	}
	return pages, nil
}

type dim struct{ w, h float64 }

// pageDims reads the page size table with pdfcpu. It returns nil when pdfcpu cannot
// parse the file or disagrees on the page count, and callers fall back to the MediaBox.
func (e *Extractor) pageDims(data []byte, n int) []dim {
	conf := model.NewDefaultConfiguration()
	ds, err := api.PageDims(bytes.NewReader(data), conf)
	if err != nil || len(ds) != n {
		e.logger.Debug().Err(err).Int("pages", n).Msg("Page table unavailable, using MediaBox")
		return nil
	}
	out := make([]dim, len(ds))
	for i, d := range ds {
		out[i] = dim{w: d.Width, h: d.Height}
	}
	return out
}

// mediaBox resolves the possibly inherited MediaBox of a page.
func mediaBox(page lpdf.Value) (ox, oy, w, h float64) {
	v := page
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		mb := v.Key("MediaBox")
		if !mb.IsNull() && mb.Len() == 4 {
			x0, y0 := mb.Index(0).Float64(), mb.Index(1).Float64()
			x1, y1 := mb.Index(2).Float64(), mb.Index(3).Float64()
			return math.Min(x0, x1), math.Min(y0, y1), math.Abs(x1 - x0), math.Abs(y1 - y0)
		}
		v = v.Key("Parent")
	}
	return 0, 0, 0, 0
}

// run accumulates glyphs sharing a baseline.
type run struct {
	text     strings.Builder
	x0, x1   float64
	baseline float64
	size     float64
	inPage   bool
}

// fragments groups glyphs into runs of horizontally contiguous text on one baseline.
func fragments(glyphs []lpdf.Text, ox, oy, width, height float64) []domain.Fragment {
	var (
		out []domain.Fragment
		cur *run
	)
	flush := func() {
		if cur == nil {
			return
		}
		text := strings.TrimSpace(cur.text.String())
		if text != "" {
			out = append(out, domain.Fragment{Text: text, BBox: cur.bbox(width, height)})
		}
		cur = nil
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = 10
		}
		x, y := g.X-ox, g.Y-oy
		w := g.W
		if w <= 0 {
			// fonts without a width table report zero advance
			w = 0.5 * size * float64(len([]rune(g.S)))
		}

		if cur != nil {
			sameLine := math.Abs(y-cur.baseline) <= 0.3*math.Max(size, cur.size)
			gap := x - cur.x1
			if !sameLine || gap > 2*math.Max(size, cur.size) || (g.W > 0 && gap < -0.5*size) {
				flush()
			}
		}
		if cur == nil {
			cur = &run{x0: x, x1: x, baseline: y, size: size, inPage: x >= 0 && x <= width && y >= 0 && y <= height}
		}
		if g.W <= 0 && x < cur.x1 {
			x = cur.x1
		}
		if isSpace(g.S) {
			cur.text.WriteByte(' ')
		} else {
			if x-cur.x1 > 0.15*size && cur.text.Len() > 0 && !strings.HasSuffix(cur.text.String(), " ") {
				cur.text.WriteByte(' ')
			}
			cur.text.WriteString(g.S)
		}
		cur.x1 = math.Max(cur.x1, x+w)
		cur.size = math.Max(cur.size, size)
		if !(x >= 0 && x <= width && y >= 0 && y <= height) {
			cur.inPage = false
		}
	}
	flush()
	return out
}

// bbox converts the run to a top-left-origin box. Extents overshooting the page are
// clamped when every glyph origin lies on the page; otherwise they are left as is.
func (r *run) bbox(width, height float64) domain.BBox {
	b := domain.BBox{
		X0: r.x0,
		Y0: height - (r.baseline + r.size),
		X1: r.x1,
		Y1: height - r.baseline + 0.2*r.size,
	}
	if !r.inPage {
		return b
	}
	b.X0 = clamp(b.X0, 0, width)
	b.X1 = clamp(b.X1, 0, width)
	b.Y0 = clamp(b.Y0, 0, height)
	b.Y1 = clamp(b.Y1, 0, height)
	return b
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func isSpace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
