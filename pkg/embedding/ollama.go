package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/ollama/ollama/api"
)

const (
	ollamaTimeout    = 15 * time.Second
	ollamaDefaultURL = "http://localhost:11434"
)

type ollamaClient struct {
	client *api.Client
	model  string
}

func newOllamaClient(cfg Config) (Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = ollamaDefaultURL
	}
	uri, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama: parsing base url %q: %w", baseURL, err)
	}

	model := cfg.Model
	if model == "" {
		model = "nomic-embed-text"
	}

	return &ollamaClient{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
	}, nil
}

func (c *ollamaClient) Provider() Provider { return ProviderOllama }

// Embed sends one request per input, matching Ollama's single-prompt
// embeddings endpoint: unlike the remote batched providers, there is no
// server-side batching to exploit here.
func (c *ollamaClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		reqCtx, cancel := context.WithTimeout(ctx, ollamaTimeout)
		resp, err := c.client.Embeddings(reqCtx, &api.EmbeddingRequest{
			Model:  c.model,
			Prompt: text,
		})
		cancel()
		if err != nil {
			return nil, fmt.Errorf("embedding: ollama: input %d: %w", i, err)
		}

		vec := make([]float32, len(resp.Embedding))
		for j, v := range resp.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}
