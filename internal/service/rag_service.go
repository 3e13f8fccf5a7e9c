package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"resumerag/internal/citation"
	"resumerag/internal/domain"
	"resumerag/internal/embedding/hashing"
	"resumerag/internal/logging"
	"resumerag/internal/metrics"
	"resumerag/internal/retrieval"
	"resumerag/internal/session"
)

const DefaultGenerationTimeout = 30 * time.Second

// IngestResult describes a freshly created session.
type IngestResult struct {
	SessionID      string                 `json:"session_id"`
	PageCount      int                    `json:"page_count"`
	ChunkCount     int                    `json:"chunk_count"`
	PageDimensions []domain.PageDimension `json:"page_dimensions"`
}

// ChatResult is an answer with its citations resolved to page regions.
type ChatResult struct {
	Answer    string            `json:"answer"`
	Citations []domain.Citation `json:"citations"`
	Segments  []domain.Segment  `json:"segments"`
}

// RAGServiceImpl wires sessions, retrieval, generation and citation linking together.
type RAGServiceImpl struct {
	sessions   *session.Manager
	engine     *retrieval.Engine
	generator  domain.Generator
	genTimeout time.Duration
	metrics    *metrics.Metrics
	logger     arbor.ILogger
}

func NewRAGService(sessions *session.Manager, engine *retrieval.Engine, generator domain.Generator, genTimeout time.Duration, m *metrics.Metrics, logger arbor.ILogger) *RAGServiceImpl {
	if genTimeout <= 0 {
		genTimeout = DefaultGenerationTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &RAGServiceImpl{sessions: sessions, engine: engine, generator: generator, genTimeout: genTimeout, metrics: m, logger: logger}
}

// Ingest parses, chunks and indexes a document into a new session.
func (s *RAGServiceImpl) Ingest(ctx context.Context, name string, data []byte) (IngestResult, error) {
	s.logger.Debug().Str("document", name).Int("bytes", len(data)).Str("fingerprint", hashing.Fingerprint(data)).Msg("Ingesting document")
	info, err := s.sessions.Create(ctx, domain.Document{Name: name, Data: data})
	if err != nil {
		return IngestResult{}, err
	}
	return IngestResult{
		SessionID:      info.ID,
		PageCount:      info.PageCount,
		ChunkCount:     info.ChunkCount,
		PageDimensions: info.PageDimensions,
	}, nil
}

// Chat answers query from the session's document. The session lock is held only while
// retrieving; generation works on the retrieved copy so that ending the session is never
// blocked by a slow generator. The session is refreshed only when an answer is produced.
func (s *RAGServiceImpl) Chat(ctx context.Context, sessionID, query string) (res ChatResult, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = domain.CodeOf(err)
		}
		s.metrics.ChatDone(result)
		if err != nil {
			ev := s.logger.Debug()
			if errors.Is(err, domain.ErrGenerationTimeout) {
				ev = s.logger.Warn()
			}
			ev.Str("session_id", sessionID).Str("code", domain.CodeOf(err)).Err(err).Msg("Chat failed")
		}
	}()

	var retrieved domain.RetrievalResult
	err = s.sessions.View(sessionID, func(sess *session.Session) error {
		start := time.Now()
		r, err := s.engine.Retrieve(ctx, sess.Index(), query, 0)
		s.metrics.ObserveRetrieval(time.Since(start))
		retrieved = r
		return err
	})
	if err != nil {
		return ChatResult{}, err
	}

	answer, err := s.generate(ctx, query, retrieved)
	if err != nil {
		return ChatResult{}, err
	}

	linked := citation.Link(answer, retrieved)
	if len(linked.Unresolved) > 0 {
		markers := make([]string, len(linked.Unresolved))
		for i, n := range linked.Unresolved {
			markers[i] = fmt.Sprintf("[%d]", n)
		}
		s.logger.Warn().Str("session_id", sessionID).Strs("markers", markers).Msg("Answer cites sources that were not retrieved")
	}
	if terr := s.sessions.Touch(sessionID); terr != nil {
		s.logger.Debug().Str("session_id", sessionID).Err(terr).Msg("Session ended while answering")
	}
	return ChatResult{Answer: linked.Answer, Citations: linked.Citations, Segments: linked.Segments}, nil
}

// generate bounds the generator by genTimeout. A deadline of the generator's own context is
// reported as ErrGenerationTimeout; cancellation by the caller is returned unchanged.
func (s *RAGServiceImpl) generate(ctx context.Context, query string, retrieved domain.RetrievalResult) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, s.genTimeout)
	defer cancel()
	answer, err := s.generator.Generate(genCtx, query, retrieved)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w after %s", domain.ErrGenerationTimeout, s.genTimeout)
	}
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	return answer, nil
}

// Status reports whether the session is active, refreshing it when it is.
func (s *RAGServiceImpl) Status(sessionID string) session.State {
	return s.sessions.Status(sessionID)
}

// EndSession destroys the session. Unknown ids are ignored.
func (s *RAGServiceImpl) EndSession(sessionID string) {
	s.sessions.Destroy(sessionID)
}
