package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resumerag/internal/chunker"
	"resumerag/internal/domain"
	"resumerag/internal/embedding/hashing"
	"resumerag/internal/extract/pdf"
	"resumerag/internal/generator/extractive"
	"resumerag/internal/indexer"
	"resumerag/internal/retrieval"
	"resumerag/internal/session"
)

func resumePDF(t *testing.T, lines ...string) []byte {
	t.Helper()
	f := fpdf.New("P", "pt", "Letter", "")
	f.SetFont("Helvetica", "", 12)
	f.AddPage()
	for i, line := range lines {
		f.Text(72, float64(100+i*60), line)
	}
	var buf bytes.Buffer
	require.NoError(t, f.Output(&buf))
	return buf.Bytes()
}

type generatorFunc func(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error)

func (f generatorFunc) Generate(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error) {
	return f(ctx, query, chunks)
}

func newService(t *testing.T, gen domain.Generator, timeout time.Duration) *RAGServiceImpl {
	t.Helper()
	emb := hashing.NewEmbedder(256)
	m := session.NewManager(&session.Pipeline{
		Extractor: pdf.NewExtractor(nil),
		Chunker:   chunker.NewBBoxChunker(500, 50, 50),
		Indexer:   indexer.New(emb, 2),
	})
	t.Cleanup(m.Close)
	return NewRAGService(m, retrieval.NewEngine(emb, 4), gen, timeout, nil, nil)
}

func TestRAGService_IngestAndChat(t *testing.T) {
	svc := newService(t, extractive.NewGenerator(), time.Second)
	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Python, Go, Rust"))
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Equal(t, 1, res.PageCount)
	assert.Equal(t, 1, res.ChunkCount)
	require.Len(t, res.PageDimensions, 1)
	assert.InDelta(t, 612, res.PageDimensions[0].Width, 0.5)

	chat, err := svc.Chat(context.Background(), res.SessionID, "What languages are known?")
	require.NoError(t, err)
	assert.Contains(t, chat.Answer, "[1] Python, Go, Rust")
	require.Len(t, chat.Citations, 1)
	c := chat.Citations[0]
	assert.Equal(t, 1, c.ID)
	assert.Equal(t, 0, c.ChunkID)
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, "Python, Go, Rust", c.Text)
	assert.InDelta(t, 72, c.BBox.X0, 0.5)
	assert.NotEmpty(t, chat.Segments)

	assert.Equal(t, session.StateActive, svc.Status(res.SessionID))
	svc.EndSession(res.SessionID)
	assert.Equal(t, session.StateExpired, svc.Status(res.SessionID))

	_, err = svc.Chat(context.Background(), res.SessionID, "Go?")
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
}

func TestRAGService_RejectsBadInput(t *testing.T) {
	svc := newService(t, extractive.NewGenerator(), time.Second)

	_, err := svc.Ingest(context.Background(), "x.pdf", []byte("not a pdf"))
	assert.ErrorIs(t, err, domain.ErrUnreadableDocument)

	_, err = svc.Ingest(context.Background(), "blank.pdf", resumePDF(t))
	assert.ErrorIs(t, err, domain.ErrEmptyDocument)

	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Go"))
	require.NoError(t, err)
	_, err = svc.Chat(context.Background(), res.SessionID, "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)

	_, err = svc.Chat(context.Background(), "missing", "Go?")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRAGService_GenerationTimeout(t *testing.T) {
	slow := generatorFunc(func(ctx context.Context, _ string, _ []domain.ScoredChunk) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	svc := newService(t, slow, 20*time.Millisecond)
	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Go"))
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), res.SessionID, "Go?")
	assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
	assert.True(t, domain.IsRetryable(err))
}

func TestRAGService_GeneratorErrorDoesNotTimeout(t *testing.T) {
	boom := errors.New("upstream down")
	failing := generatorFunc(func(context.Context, string, []domain.ScoredChunk) (string, error) { return "", boom })
	svc := newService(t, failing, time.Second)
	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Go"))
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), res.SessionID, "Go?")
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, domain.ErrGenerationTimeout)
}

func TestRAGService_UnresolvedMarkersStayInText(t *testing.T) {
	gen := generatorFunc(func(context.Context, string, []domain.ScoredChunk) (string, error) {
		return "Go [1] and something else [7].", nil
	})
	svc := newService(t, gen, time.Second)
	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Go"))
	require.NoError(t, err)

	chat, err := svc.Chat(context.Background(), res.SessionID, "Go?")
	require.NoError(t, err)
	require.Len(t, chat.Citations, 1)
	last := chat.Segments[len(chat.Segments)-1]
	assert.Equal(t, domain.SegmentText, last.Kind)
	assert.Contains(t, last.Text, "[7]")
}

func TestRAGService_SessionsAreIsolated(t *testing.T) {
	svc := newService(t, extractive.NewGenerator(), time.Second)
	a, err := svc.Ingest(context.Background(), "a.pdf", resumePDF(t, "Kubernetes operator"))
	require.NoError(t, err)
	b, err := svc.Ingest(context.Background(), "b.pdf", resumePDF(t, "Watercolor painting"))
	require.NoError(t, err)

	chat, err := svc.Chat(context.Background(), b.SessionID, "kubernetes")
	require.NoError(t, err)
	for _, c := range chat.Citations {
		assert.NotContains(t, c.Text, "Kubernetes")
	}
	svc.EndSession(a.SessionID)
	assert.Equal(t, session.StateActive, svc.Status(b.SessionID))
}

func TestRAGService_EndSessionDoesNotWaitForGeneration(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	blocking := generatorFunc(func(ctx context.Context, _ string, chunks []domain.ScoredChunk) (string, error) {
		close(entered)
		<-release
		return "Go [1]", nil
	})
	svc := newService(t, blocking, 10*time.Second)
	res, err := svc.Ingest(context.Background(), "cv.pdf", resumePDF(t, "Go"))
	require.NoError(t, err)

	type outcome struct {
		chat ChatResult
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		chat, err := svc.Chat(context.Background(), res.SessionID, "Go?")
		done <- outcome{chat, err}
	}()
	<-entered

	ended := make(chan struct{})
	go func() {
		svc.EndSession(res.SessionID)
		assert.Equal(t, session.StateExpired, svc.Status(res.SessionID))
		close(ended)
	}()
	select {
	case <-ended:
	case <-time.After(2 * time.Second):
		t.Fatal("EndSession blocked behind generation")
	}

	close(release)
	out := <-done
	require.NoError(t, out.err)
	require.Len(t, out.chat.Citations, 1)
	assert.Equal(t, 0, out.chat.Citations[0].ChunkID)
	assert.Equal(t, session.StateExpired, svc.Status(res.SessionID))
}
