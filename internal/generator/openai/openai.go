package openai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"resumerag/internal/citation"
	"resumerag/internal/domain"
)

const systemPrompt = `You answer questions about a single uploaded document using only the sources below.
Cite every statement with the bracketed number of the source it comes from, for example [1].
Only use numbers that appear in the source list. If the sources do not contain the answer, say so.

Sources:
%s`

// Config configures the chat completion generator.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
}

// Generator writes cited answers with an OpenAI-compatible chat completion endpoint.
type Generator struct {
	client *goopenai.Client
	model  string
}

func NewGenerator(cfg Config) (*Generator, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	conf := goopenai.DefaultConfig(key)
	conf.BaseURL = cfg.BaseURL
	return &Generator{client: goopenai.NewClientWithConfig(conf), model: cfg.Model}, nil
}

// Generate asks the model to answer query from chunks. The caller bounds the call with ctx.
func (g *Generator) Generate(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: g.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: fmt.Sprintf(systemPrompt, Sources(chunks))},
			{Role: goopenai.ChatMessageRoleUser, Content: query},
		},
		Temperature: 0,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response generated")
	}
	return resp.Choices[0].Message.Content, nil
}

// Sources renders chunks as the numbered list the model cites from.
func Sources(chunks []domain.ScoredChunk) string {
	var b strings.Builder
	for _, sc := range chunks {
		fmt.Fprintf(&b, "[%d] (page %d) %s\n", domain.Marker(sc.Chunk.ID), sc.Chunk.Page, citation.Escape(sc.Chunk.Text))
	}
	return b.String()
}
