// Package genai embeds text with the Gemini embedding API.
package genai

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/becomeliminal/nim-memory/memory"
)

// DefaultModel is the Gemini embedding model.
const DefaultModel = "gemini-embedding-001"

// taskSemanticSimilarity tunes vectors for comparing short phrases.
const taskSemanticSimilarity = "SEMANTIC_SIMILARITY"

// Embedder calls Models.EmbedContent.
type Embedder struct {
	client     *genai.Client
	model      string
	dimensions int
}

// New creates a Gemini embedder. dimensions requests a reduced output size
// when > 0.
func New(ctx context.Context, apiKey, model string, dimensions int) (*Embedder, error) {
	if apiKey == "" {
		return nil, errors.New("genai api key is required")
	}
	if model == "" {
		model = DefaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Embedder{client: client, model: model, dimensions: dimensions}, nil
}

// Embed implements memory.Embedder.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	config := &genai.EmbedContentConfig{TaskType: taskSemanticSimilarity}
	if e.dimensions > 0 {
		d := int32(e.dimensions)
		config.OutputDimensionality = &d
	}

	result, err := e.client.Models.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		config,
	)
	if err != nil {
		return nil, fmt.Errorf("genai embed: %w", err)
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0].Values) == 0 {
		return nil, errors.New("genai returned no embeddings")
	}
	return result.Embeddings[0].Values, nil
}

// Dimensions implements memory.Embedder. It is 0 when the model default is
// used.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

var _ memory.Embedder = (*Embedder)(nil)
