package embedding

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

const googleTimeout = 30 * time.Second

type googleClient struct {
	client *genai.Client
	model  string
}

func newGoogleClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: google: missing api key")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: google: creating client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = "text-embedding-004"
	}

	return &googleClient{client: client, model: model}, nil
}

func (c *googleClient) Provider() Provider { return ProviderGoogle }

func (c *googleClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, googleTimeout)
	defer cancel()

	out := make([][]float32, 0, len(texts))
	for _, batch := range splitBatches(texts) {
		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = &genai.Content{Parts: []*genai.Part{{Text: text}}}
		}

		resp, err := c.client.Models.EmbedContent(ctx, c.model, contents, nil)
		if err != nil {
			return nil, fmt.Errorf("embedding: google: %w", err)
		}
		if len(resp.Embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding: google: expected %d embeddings, got %d", len(batch), len(resp.Embeddings))
		}
		for _, e := range resp.Embeddings {
			out = append(out, e.Values)
		}
	}
	return out, nil
}
