package types

import (
	"context"

	"github.com/xhad/pdfingest/internal/models"
)

// Core interfaces
type Loader interface {
	Load(ctx context.Context, path string) ([]models.Segment, error)
}

type Splitter interface {
	Split(segments []models.Segment) ([]models.Chunk, error)
}

type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// VectorStore embeds a batch and upserts it into the target partition.
type VectorStore interface {
	Store(ctx context.Context, batch models.Batch, target models.Target) error
	Close()
}

// Observer receives progress signals from an ingestion run. Calls arrive
// sequentially from the goroutine running the ingestion.
type Observer interface {
	RunStarted(files int)
	FileStarted(path string, n int)
	BatchesPlanned(path string, batches int)
	BatchStored(path string, n int, size int)
	FileFinished(job models.IngestionJob)
	RunFinished(jobs []models.IngestionJob)
}
