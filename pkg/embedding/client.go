// Package embedding provides a tagged-variant text-to-vector client:
// OpenAI-style and Google remote batched providers, and a local Ollama
// HTTP provider, all behind one interface. There is no open plugin
// system here — the provider set is closed and enumerated, matching
// the spec's configuration surface.
package embedding

import "context"

// Provider names the enumerated embedding backends.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderOllama Provider = "ollama"
	ProviderGoogle Provider = "google"
)

// Default vector dimensions per provider, used when a caller has not
// pinned a store to an existing dimension yet.
const (
	DefaultDimensionOpenAI = 1536
	DefaultDimensionOllama = 768
	DefaultDimensionGoogle = 768
)

// maxBatchChars bounds the aggregate character count of any single
// request to a batching remote provider.
const maxBatchChars = 800_000

// Client embeds a sequence of texts into vectors, preserving input
// order. Implementations do not retry internally; a connection or
// timeout failure propagates to the caller.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Provider() Provider
}

// Config selects and configures one embedding provider.
type Config struct {
	Provider Provider

	// OpenAI / Google
	APIKey string
	Model  string

	// Ollama
	BaseURL string
}

// New constructs the Client for cfg.Provider.
func New(cfg Config) (Client, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderOllama:
		return newOllamaClient(cfg)
	case ProviderGoogle:
		return newGoogleClient(cfg)
	default:
		return nil, unsupportedProviderError(cfg.Provider)
	}
}
