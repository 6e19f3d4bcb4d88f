package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	Provider      string
	Model         string
	BaseURL       string // Ollama server URL or OpenAI-compatible endpoint
	APIKey        string
	BatchSize     int
	StripNewLines bool
}

// Embedder computes embeddings for chunk texts.
type Embedder struct {
	Config EmbedderConfig
	Embed  embeddings.Embedder
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Provider == "" {
		config.Provider = ProviderOllama
	}

	var (
		client embeddings.EmbedderClient
		err    error
	)

	switch config.Provider {
	case ProviderOllama:
		if config.Model == "" {
			config.Model = "nomic-embed-text:latest" // Default Ollama model
		}
		if config.BaseURL == "" {
			config.BaseURL = "http://localhost:11434" // Default Ollama URL
		}
		client, err = ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
	case ProviderOpenAI:
		if config.Model == "" {
			config.Model = "text-embedding-ada-002"
		}
		opts := []openai.Option{openai.WithEmbeddingModel(config.Model)}
		if config.APIKey != "" {
			opts = append(opts, openai.WithToken(config.APIKey))
		}
		if config.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(config.BaseURL))
		}
		client, err = openai.New(opts...)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s embedder: %w", config.Provider, err)
	}

	return NewEmbedder(config, client)
}

// NewEmbedder wraps an already constructed embedding client.
func NewEmbedder(config EmbedderConfig, client embeddings.EmbedderClient) (*Embedder, error) {
	if config.BatchSize <= 0 {
		config.BatchSize = 512
	}

	emb, err := embeddings.NewEmbedder(client,
		embeddings.WithBatchSize(config.BatchSize),
		embeddings.WithStripNewLines(config.StripNewLines),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	return &Embedder{
		Config: config,
		Embed:  emb,
	}, nil
}

func (e *Embedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := e.Embed.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%s: create embeddings: %w", e.Config.Provider, err)
	}
	return vectors, nil
}
