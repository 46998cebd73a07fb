package inference

import (
	"context"

	"github.com/openai/openai-go/v3"
)

// Inferencer runs a single system+user chat completion against a language model.
type Inferencer interface {
	Infer(ctx context.Context, params *openai.ChatCompletionNewParams, system, user string) (string, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}
