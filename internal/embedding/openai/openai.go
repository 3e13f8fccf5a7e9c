package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// Client is an OpenAI-compatible embeddings client implementing the Embedder interface.
type Client struct {
	client    *goopenai.Client
	model     string
	timeout   time.Duration
	dimension atomic.Int64
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	conf := goopenai.DefaultConfig(key)
	conf.BaseURL = cfg.BaseURL
	c := &Client{client: goopenai.NewClientWithConfig(conf), model: cfg.Model, timeout: t}
	c.dimension.Store(int64(cfg.Dimension))
	return c, nil
}

// Name returns the identifier of the remote model, so indexes built with another model are rejected.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension returns the configured dimension, or the one observed on the first response.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns an embedding vector for the given text. Errors are returned as-is; retrying is the caller's decision.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}
	v := resp.Data[0].Embedding
	if !c.dimension.CompareAndSwap(0, int64(len(v))) && int(c.dimension.Load()) != len(v) {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(v), c.dimension.Load())
	}
	return v, nil
}
