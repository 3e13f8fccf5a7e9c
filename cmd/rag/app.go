package main

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"resumerag/internal/chunker"
	"resumerag/internal/config"
	"resumerag/internal/domain"
	"resumerag/internal/embedding/hashing"
	embopenai "resumerag/internal/embedding/openai"
	"resumerag/internal/extract/pdf"
	"resumerag/internal/generator/extractive"
	genopenai "resumerag/internal/generator/openai"
	"resumerag/internal/indexer"
	"resumerag/internal/metrics"
	"resumerag/internal/retrieval"
	"resumerag/internal/service"
	"resumerag/internal/session"
	"resumerag/internal/spool"
)

// app holds the assembled pipeline shared by every command.
type app struct {
	manager *session.Manager
	service *service.RAGServiceImpl
}

func newEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "hashing", "":
		return hashing.NewEmbedder(cfg.Dimension), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		return embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Dimension: cfg.Dimension,
			Timeout:   cfg.OpenAI.Timeout(),
		})
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "extractive", "":
		return extractive.NewGenerator(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, fmt.Errorf("openai generator config missing")
		}
		return genopenai.NewGenerator(genopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
		})
	default:
		return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
	}
}

func newApp(cfg *config.AppConfig, m *metrics.Metrics, logger arbor.ILogger) (*app, error) {
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	gen, err := newGenerator(cfg.Generator)
	if err != nil {
		return nil, err
	}

	spoolURL := cfg.Session.SpoolURL
	if spoolURL == "" {
		spoolURL = spool.DefaultURL()
	}
	pipeline := &session.Pipeline{
		Extractor: pdf.NewExtractor(logger),
		Chunker:   chunker.NewBBoxChunker(cfg.Chunker.MaxChars, cfg.Chunker.MinChars, cfg.Chunker.OverlapChars),
		Indexer:   indexer.New(emb, cfg.Embedder.Concurrency),
	}
	mgr := session.NewManager(pipeline,
		session.WithTTL(cfg.Session.TTL()),
		session.WithSweepInterval(cfg.Session.SweepInterval()),
		session.WithTombstoneRetention(cfg.Session.TombstoneRetention()),
		session.WithSpool(spool.New(spoolURL)),
		session.WithMetrics(m),
		session.WithLogger(logger),
	)
	svc := service.NewRAGService(mgr, retrieval.NewEngine(emb, cfg.Retrieval.TopK), gen, cfg.Generator.Timeout(), m, logger)

	logger.Info().
		Str("embedder", emb.Name()).
		Str("generator", cfg.Generator.Type).
		Int("top_k", cfg.Retrieval.TopK).
		Str("spool", spoolURL).
		Msg("Pipeline ready")
	return &app{manager: mgr, service: svc}, nil
}
