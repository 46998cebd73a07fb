package inference

import (
	"cmp"
	"context"
	"fmt"
)

// Provider names a hosted model API.
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderGemini   Provider = "gemini"
	ProviderGrok     Provider = "grok"
	ProviderMoonshot Provider = "moonshot"
	ProviderKimi     Provider = "kimi"
	// ProviderLocal is an OpenAI-compatible server such as LM Studio.
	ProviderLocal Provider = "local"
)

type preset struct {
	baseURL string
	model   string
}

// OpenAI-compatible endpoints. An empty baseURL keeps the SDK default.
var presets = map[Provider]preset{
	ProviderOpenAI:   {model: "gpt-4o-mini"},
	ProviderGrok:     {baseURL: "https://api.x.ai/v1", model: "grok-4-fast-reasoning"},
	ProviderMoonshot: {baseURL: "https://api.moonshot.ai/v1", model: "kimi-k2-5"},
	ProviderKimi:     {baseURL: "https://api.kimi.com/coding/v1", model: "kimi-for-coding"},
	ProviderLocal:    {baseURL: "http://localhost:1234/v1"},
}

func (p Provider) Known() bool {
	_, ok := presets[p]
	return ok || p == ProviderGemini
}

// Options configures New. Empty fields fall back to the provider's preset.
type Options struct {
	APIKey         string
	Model          string
	BaseURL        string
	EmbeddingModel string
}

// New builds the Inferencer for a provider. The Embedder is nil when the
// provider has no embeddings endpoint this package supports.
func New(ctx context.Context, p Provider, opts Options) (Inferencer, Embedder, error) {
	if p == ProviderGemini {
		g, err := NewGeminiInferencer(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini client: %w", err)
		}
		return g, nil, nil
	}

	pre, ok := presets[p]
	if !ok {
		return nil, nil, fmt.Errorf("unknown provider %q", p)
	}
	o := NewOpenAIInferencer(opts.APIKey, cmp.Or(opts.Model, pre.model))
	if url := cmp.Or(opts.BaseURL, pre.baseURL); url != "" {
		o.ChangeBaseURL(url)
	}
	o.SetEmbeddingModel(opts.EmbeddingModel)

	switch p {
	case ProviderOpenAI, ProviderLocal:
		return o, o, nil
	default:
		return o, nil, nil
	}
}
