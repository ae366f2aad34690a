package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/kolade-dev/pagetutor/internal/core"
)

type GeminiEmbedder struct {
	client    *genai.Client
	modelName string
	dim       int
}

var _ core.EmbeddingProvider = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder builds an embedder that truncates every vector to dim so
// the whole store keeps a single dimensionality.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dim int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	return &GeminiEmbedder{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiEmbedder) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalDocument)
}

func (g *GeminiEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return g.embed(ctx, text, genai.TaskTypeRetrievalQuery)
}

func (g *GeminiEmbedder) embed(ctx context.Context, text string, task genai.TaskType) ([]float32, error) {
	em := g.client.EmbeddingModel(g.modelName)
	em.TaskType = task

	resp, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if resp.Embedding == nil || len(resp.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding")
	}

	vec := resp.Embedding.Values
	if g.dim > 0 && len(vec) > g.dim {
		vec = vec[:g.dim]
	}
	return vec, nil
}
