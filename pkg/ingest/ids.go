package ingest

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/xhad/pdfingest/internal/models"
)

// IDFunc assigns the identifier a chunk is stored under.
type IDFunc func(c models.Chunk) string

// chunkNamespace scopes StableID so ids never collide with other uuid v5 users.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/xhad/pdfingest/chunk"))

// RandomID gives every stored chunk a fresh id. Re-running an ingestion
// after a partial failure stores the already written chunks again.
func RandomID(models.Chunk) string {
	return uuid.NewString()
}

// StableID derives the id from the chunk's source, page, offsets and text,
// so re-ingesting the same file overwrites instead of duplicating.
func StableID(c models.Chunk) string {
	key := fmt.Sprintf("%s\x00%d\x00%d\x00%d\x00%s", c.Source(), c.Page(), c.Start, c.End, c.Content)
	return uuid.NewSHA1(chunkNamespace, []byte(key)).String()
}
