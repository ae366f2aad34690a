package core

import "context"

// EmbeddingProvider turns text into fixed-dimension vectors. Documents and
// queries must go through the same provider so dimensionality matches at
// search time.
type EmbeddingProvider interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// TokenStream is a lazy, finite, non-restartable sequence of generated text
// fragments. Next returns io.EOF after the last fragment; any other error is
// terminal too.
type TokenStream interface {
	Next() (string, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt string, userPrompt string) TokenStream
}
