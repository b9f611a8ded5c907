package embedding

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const openAITimeout = 30 * time.Second

type openAIClient struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func newOpenAIClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("embedding: openai: missing api key")
	}
	model := openai.SmallEmbedding3
	if cfg.Model != "" {
		model = openai.EmbeddingModel(cfg.Model)
	}
	return &openAIClient{
		client: openai.NewClient(cfg.APIKey),
		model:  model,
	}, nil
}

func (c *openAIClient) Provider() Provider { return ProviderOpenAI }

func (c *openAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, openAITimeout)
	defer cancel()

	out := make([][]float32, 0, len(texts))
	for _, batch := range splitBatches(texts) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: c.model,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: openai: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("embedding: openai: expected %d embeddings, got %d", len(batch), len(resp.Data))
		}
		for _, d := range resp.Data {
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}
