package processor

import (
	"errors"

	"github.com/xhad/pdfingest/internal/models"
)

var ErrInvalidBatchSize = errors.New("batch size must be positive")

// Batch partitions chunks into contiguous groups of at most maxSize chunks.
// Every batch but the last is full. No chunks means no batches.
func Batch(chunks []models.Chunk, maxSize int) ([]models.Batch, error) {
	if maxSize <= 0 {
		return nil, ErrInvalidBatchSize
	}

	batches := make([]models.Batch, 0, (len(chunks)+maxSize-1)/maxSize)
	for i := 0; i < len(chunks); i += maxSize {
		end := i + maxSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, models.Batch(chunks[i:end:end]))
	}

	return batches, nil
}
