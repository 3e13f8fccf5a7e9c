package pdf

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-pdf/fpdf"
	lpdf "github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumerag/internal/domain"
)

func letterPDF(t *testing.T, pages ...func(f *fpdf.Fpdf)) []byte {
	t.Helper()
	f := fpdf.New("P", "pt", "Letter", "")
	f.SetFont("Helvetica", "", 12)
	for _, draw := range pages {
		f.AddPage()
		draw(f)
	}
	var buf bytes.Buffer
	require.NoError(t, f.Output(&buf))
	return buf.Bytes()
}

func TestExtractor_SingleLine(t *testing.T) {
	data := letterPDF(t, func(f *fpdf.Fpdf) { f.Text(72, 100, "Python, Go, Rust") })

	pages, err := NewExtractor(nil).Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 1)

	p := pages[0]
	assert.Equal(t, 1, p.Number)
	assert.InDelta(t, 612, p.Width, 0.5)
	assert.InDelta(t, 792, p.Height, 0.5)
	require.Len(t, p.Fragments, 1)

	frag := p.Fragments[0]
	assert.Equal(t, "Python, Go, Rust", frag.Text)
	assert.InDelta(t, 72, frag.BBox.X0, 0.5)
	assert.InDelta(t, 88, frag.BBox.Y0, 0.5)
	assert.InDelta(t, 102.4, frag.BBox.Y1, 0.5)
	assert.Greater(t, frag.BBox.X1, frag.BBox.X0)
	assert.True(t, frag.BBox.Within(p.Width, p.Height))
}

func TestExtractor_MultiPage(t *testing.T) {
	data := letterPDF(t,
		func(f *fpdf.Fpdf) {
			f.Text(72, 80, "Jane Doe")
			f.Text(72, 300, "Experience")
		},
		func(f *fpdf.Fpdf) { f.Text(72, 80, "Education") },
		func(f *fpdf.Fpdf) {},
	)

	pages, err := NewExtractor(nil).Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 3)
	for i, p := range pages {
		assert.Equal(t, i+1, p.Number)
	}
	require.Len(t, pages[0].Fragments, 2)
	assert.Equal(t, "Jane Doe", pages[0].Fragments[0].Text)
	assert.Equal(t, "Experience", pages[0].Fragments[1].Text)
	assert.Less(t, pages[0].Fragments[0].BBox.Y1, pages[0].Fragments[1].BBox.Y0)
	require.Len(t, pages[1].Fragments, 1)
	assert.Empty(t, pages[2].Fragments)
}

func TestExtractor_Unreadable(t *testing.T) {
	e := NewExtractor(nil)
	_, err := e.Extract(context.Background(), []byte("definitely not a pdf"))
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)

	_, err = e.Extract(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)
}

func TestFragments_Grouping(t *testing.T) {
	glyphs := []lpdf.Text{
		{FontSize: 10, X: 50, Y: 700, W: 6, S: "G"},
		{FontSize: 10, X: 56, Y: 700, W: 6, S: "o"},
		{FontSize: 10, X: 62, Y: 700, W: 3, S: " "},
		{FontSize: 10, X: 65, Y: 700, W: 6, S: "!"},
		// far to the right: new fragment
		{FontSize: 10, X: 400, Y: 700, W: 6, S: "X"},
		// next line
		{FontSize: 10, X: 50, Y: 680, W: 6, S: "Y"},
	}
	frags := fragments(glyphs, 0, 0, 612, 792)
	require.Len(t, frags, 3)
	assert.Equal(t, "Go !", frags[0].Text)
	assert.Equal(t, domain.BBox{X0: 50, Y0: 82, X1: 71, Y1: 94}, frags[0].BBox)
	assert.Equal(t, "X", frags[1].Text)
	assert.Equal(t, "Y", frags[2].Text)
}

func TestFragments_ClampsOnlyInPageOrigins(t *testing.T) {
	overshoot := fragments([]lpdf.Text{{FontSize: 12, X: 600, Y: 700, W: 20, S: "Z"}}, 0, 0, 612, 792)
	require.Len(t, overshoot, 1)
	assert.Equal(t, 612.0, overshoot[0].BBox.X1)

	outside := fragments([]lpdf.Text{{FontSize: 12, X: 700, Y: 700, W: 20, S: "Z"}}, 0, 0, 612, 792)
	require.Len(t, outside, 1)
	assert.False(t, outside[0].BBox.Within(612, 792))
}
