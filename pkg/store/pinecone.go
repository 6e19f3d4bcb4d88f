package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
	"github.com/tmc/langchaingo/vectorstores/pinecone"
	"github.com/xhad/pdfingest/internal/models"
)

type PineconeConfig struct {
	Host   string
	APIKey string
}

// DocumentAdder is implemented by langchaingo vector stores.
type DocumentAdder interface {
	AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error)
}

// Pinecone upserts batches through langchaingo's pinecone vector store. The
// index is addressed by host; ids are assigned by the vector store.
type Pinecone struct {
	config  PineconeConfig
	newFunc func(textKey string) (DocumentAdder, error)

	mu     sync.Mutex
	stores map[string]DocumentAdder
}

func NewPinecone(config PineconeConfig, embedder embeddings.Embedder) (*Pinecone, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("pinecone host is required")
	}
	return NewPineconeWith(config, func(textKey string) (DocumentAdder, error) {
		opts := []pinecone.Option{
			pinecone.WithHost(config.Host),
			pinecone.WithEmbedder(embedder),
			pinecone.WithTextKey(textKey),
		}
		if config.APIKey != "" {
			opts = append(opts, pinecone.WithAPIKey(config.APIKey))
		}
		s, err := pinecone.New(opts...)
		if err != nil {
			return nil, err
		}
		return &s, nil
	}), nil
}

// NewPineconeWith builds the store from a constructor keyed by text field.
func NewPineconeWith(config PineconeConfig, newFunc func(textKey string) (DocumentAdder, error)) *Pinecone {
	return &Pinecone{
		config:  config,
		newFunc: newFunc,
		stores:  make(map[string]DocumentAdder),
	}
}

func (p *Pinecone) Store(ctx context.Context, batch models.Batch, target models.Target) error {
	if len(batch) == 0 {
		return nil
	}

	s, err := p.store(target)
	if err != nil {
		return err
	}

	docs := make([]schema.Document, len(batch))
	for i, c := range batch {
		metadata := make(map[string]any, len(c.Metadata)+2)
		for k, v := range c.Metadata {
			metadata[k] = v
		}
		metadata["chunk_start"] = c.Start
		metadata["chunk_end"] = c.End
		docs[i] = schema.Document{PageContent: c.Content, Metadata: metadata}
	}

	if _, err := s.AddDocuments(ctx, docs, vectorstores.WithNameSpace(target.Namespace)); err != nil {
		return fmt.Errorf("failed to upsert into pinecone index %s/%s: %w", target.Index, target.Namespace, err)
	}
	return nil
}

// store returns the vector store for target's text key, creating it once.
func (p *Pinecone) store(target models.Target) (DocumentAdder, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.stores[target.TextField]; ok {
		return s, nil
	}
	s, err := p.newFunc(target.TextField)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pinecone index %s: %w", target.Index, err)
	}
	p.stores[target.TextField] = s
	return s, nil
}

func (p *Pinecone) Close() {}
