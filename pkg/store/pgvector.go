package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/pdfingest/internal/models"
	"github.com/xhad/pdfingest/internal/types"
)

// DB is the subset of *pgxpool.Pool used by the store.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

type VectorStoreConfig struct {
	ConnString string
	VectorDim  int
}

// PGVector writes embedded chunks into a pgvector table named after the
// target index. The namespace is stored as a column.
type PGVector struct {
	config   VectorStoreConfig
	db       DB
	embedder types.Embedder

	mu    sync.Mutex
	ready map[string]bool
}

func NewWithConfig(ctx context.Context, config VectorStoreConfig, embedder types.Embedder) (*PGVector, error) {
	pool, err := pgxpool.New(ctx, config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewWithDB(pool, config, embedder), nil
}

func NewWithDB(db DB, config VectorStoreConfig, embedder types.Embedder) *PGVector {
	if config.VectorDim == 0 {
		config.VectorDim = 768 // nomic-embed-text
	}
	return &PGVector{
		config:   config,
		db:       db,
		embedder: embedder,
		ready:    make(map[string]bool),
	}
}

// ensureSchema creates the extension, table and index for target once per
// table and text column.
func (vs *PGVector) ensureSchema(ctx context.Context, target models.Target) error {
	key := target.Index + "\x00" + target.TextField

	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.ready[key] {
		return nil
	}

	table := pgx.Identifier{target.Index}.Sanitize()
	textCol := pgx.Identifier{target.TextField}.Sanitize()
	indexName := pgx.Identifier{target.Index + "_embedding_idx"}.Sanitize()

	if _, err := vs.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			namespace TEXT NOT NULL DEFAULT '',
			%s TEXT NOT NULL,
			source TEXT,
			page INTEGER,
			chunk_start INTEGER,
			chunk_end INTEGER,
			embedding vector(%d),
			metadata JSONB
		)`, table, textCol, vs.config.VectorDim)
	if _, err := vs.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`, indexName, table)
	if _, err := vs.db.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	vs.ready[key] = true
	return nil
}

// Store embeds the batch and upserts every chunk in a single transaction.
func (vs *PGVector) Store(ctx context.Context, batch models.Batch, target models.Target) (err error) {
	if len(batch) == 0 {
		return nil
	}

	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}
	vectors, err := vs.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
	}

	if err := vs.ensureSchema(ctx, target); err != nil {
		return err
	}

	tx, err := vs.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = fmt.Errorf("rollback failed: %v; original error: %w", rbErr, err)
			}
		}
	}()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, namespace, %s, source, page, chunk_start, chunk_end, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			namespace = EXCLUDED.namespace,
			%s = EXCLUDED.%s,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`,
		pgx.Identifier{target.Index}.Sanitize(),
		pgx.Identifier{target.TextField}.Sanitize(),
		pgx.Identifier{target.TextField}.Sanitize(),
		pgx.Identifier{target.TextField}.Sanitize(),
	)

	for i, c := range batch {
		if len(vectors[i]) != vs.config.VectorDim {
			return fmt.Errorf("chunk %s: embedding has %d dimensions, table expects %d",
				c.ID, len(vectors[i]), vs.config.VectorDim)
		}
		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata for chunk %s: %w", c.ID, err)
		}
		_, err = tx.Exec(ctx, stmt,
			c.ID,
			target.Namespace,
			c.Content,
			c.Source(),
			c.Page(),
			c.Start,
			c.End,
			pgvector.NewVector(vectors[i]),
			metadata,
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (vs *PGVector) Close() {
	if vs.db != nil {
		vs.db.Close()
	}
}
