package extractive

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"

	"resumerag/internal/citation"
	"resumerag/internal/domain"
)

const (
	Preamble  = "Based on the document, I found the following relevant information:"
	NoResults = "I couldn't find any relevant information in the document for your query."

	maxSnippet = 200
)

// Generator answers without a language model: it quotes the most relevant sentence of each
// retrieved chunk and cites it. Sentences are ranked by query-term frequency.
type Generator struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// NewGenerator creates an extractive, citation-only generator.
func NewGenerator() *Generator {
	return &Generator{
		tokenPattern:    regexp.MustCompile(`[\p{L}\p{N}]+(?:['’+#.][\p{L}\p{N}]+)*`),
		sentencePattern: regexp.MustCompile(`[^.!?;•\n]+[.!?;]?`),
		stopwords:       defaultStopwords(),
	}
}

// Generate returns one "[n] snippet" paragraph per chunk in rank order.
func (g *Generator) Generate(ctx context.Context, query string, chunks []domain.ScoredChunk) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(chunks) == 0 {
		return NoResults, nil
	}
	q := g.queryWeights(query)
	parts := make([]string, 0, len(chunks))
	for _, sc := range chunks {
		parts = append(parts, fmt.Sprintf("[%d] %s", domain.Marker(sc.Chunk.ID), g.snippet(sc.Chunk.Text, q)))
	}
	return Preamble + "\n\n" + strings.Join(parts, "\n\n"), nil
}

// queryWeights maps each query term to a normalized frequency.
func (g *Generator) queryWeights(query string) map[string]float64 {
	freq := map[string]float64{}
	for _, tok := range g.tokens(query) {
		if _, ok := g.stopwords[tok]; ok {
			continue
		}
		freq[tok]++
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

// snippet picks the sentence of text that scores highest against the query, falling back
// to the start of the chunk, and truncates it.
func (g *Generator) snippet(text string, q map[string]float64) string {
	best := strings.TrimSpace(text)
	if len(q) > 0 {
		bestScore := 0.0
		for _, sent := range g.sentencePattern.FindAllString(text, -1) {
			toks := g.tokens(sent)
			if len(toks) == 0 {
				continue
			}
			score := 0.0
			for _, tok := range toks {
				score += q[tok]
			}
			// length-normalized
			score /= math.Sqrt(float64(len(toks)))
			if score > bestScore {
				bestScore = score
				best = strings.TrimSpace(sent)
			}
		}
	}
	return truncate(citation.Escape(best), maxSnippet)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}

func (g *Generator) tokens(text string) []string {
	lower := strings.ToLower(text)
	return g.tokenPattern.FindAllString(lower, -1)
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "does", "do", "did", "has", "have", "had", "candidate", "resume",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
