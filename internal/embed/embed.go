// Package embed provides pluggable text-embedding providers for the
// course-content vector store.
package embed

import (
	"context"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/ollama/ollama/api"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OllamaEmbedder embeds text via a local Ollama server (OLLAMA_HOST).
type OllamaEmbedder struct {
	client *api.Client
	model  string
}

func NewOllamaEmbedder(model string) (*OllamaEmbedder, error) {
	if strings.TrimSpace(model) == "" {
		model = "nomic-embed-text"
	}
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("ollama client: %w", err)
	}
	return &OllamaEmbedder{client: client, model: model}, nil
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embed(ctx, &api.EmbedRequest{Model: e.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, fmt.Errorf("ollama embed: empty response for model %q", e.model)
	}
	return resp.Embeddings[0], nil
}

// HashEmbedder is a deterministic, dependency-free fallback. Vectors are
// stable per input and unit-normalised, which keeps nearest-neighbour
// ordering meaningful enough for tests and offline runs.
type HashEmbedder struct {
	Dim int
}

func (h HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = 384
	}
	vec := make([]float32, dim)
	for i, ch := range []byte(text) {
		vec[(i*31+int(ch))%dim] += float32(ch) / 255.0
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}

// Auto picks a provider from the environment: Ollama when OLLAMA_HOST is set,
// otherwise the hash fallback.
func Auto(model string, dim int) Embedder {
	if os.Getenv("OLLAMA_HOST") != "" {
		if e, err := NewOllamaEmbedder(model); err == nil {
			return e
		}
	}
	return HashEmbedder{Dim: dim}
}
