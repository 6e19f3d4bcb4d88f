package config

import (
	"fmt"
	"net/url"
	"regexp"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate embedder config
	switch c.Embedder.Provider {
	case "ollama", "openai":
	default:
		errors = append(errors, ValidationError{
			Field:   "embedder.provider",
			Message: fmt.Sprintf("unknown provider %q (want ollama or openai)", c.Embedder.Provider),
		})
	}

	if c.Embedder.BaseURL != "" {
		if u, err := url.Parse(c.Embedder.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "embedder.base_url",
				Message: "invalid embedder base URL",
			})
		}
	}

	if c.Embedder.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.batch_size",
			Message: "batch_size must be positive",
		})
	}

	// Validate index config
	if c.Index.Name == "" {
		errors = append(errors, ValidationError{
			Field:   "index.name",
			Message: "index name is required",
		})
	}

	if !identifierPattern.MatchString(c.Index.TextField) {
		errors = append(errors, ValidationError{
			Field:   "index.text_field",
			Message: fmt.Sprintf("text_field must be a plain identifier, got %q", c.Index.TextField),
		})
	}

	switch c.Index.Backend {
	case "pgvector":
		if c.Database.URL == "" {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "database URL is required for the pgvector backend",
			})
		} else if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
		if c.Database.VectorDim < 1 {
			errors = append(errors, ValidationError{
				Field:   "database.vector_dim",
				Message: "vector_dim must be positive",
			})
		}
	case "pinecone":
		if c.Pinecone.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "pinecone.host",
				Message: "pinecone host is required for the pinecone backend",
			})
		}
		// The pinecone vector store assigns its own ids, so they cannot be
		// derived from chunk content.
		if c.Ingest.StableIDs {
			errors = append(errors, ValidationError{
				Field:   "ingest.stable_ids",
				Message: "stable_ids is only supported by the pgvector backend",
			})
		}
	default:
		errors = append(errors, ValidationError{
			Field:   "index.backend",
			Message: fmt.Sprintf("unknown backend %q (want pgvector or pinecone)", c.Index.Backend),
		})
	}

	// Validate Processor config
	if c.Processor.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Processor.ChunkOverlap < 0 || c.Processor.ChunkOverlap >= c.Processor.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "processor.chunk_overlap",
			Message: "chunk_overlap must be non-negative and less than chunk_size",
		})
	}

	// Validate ingest config
	if c.Ingest.DocsDir == "" {
		errors = append(errors, ValidationError{
			Field:   "ingest.docs_dir",
			Message: "docs_dir is required",
		})
	}

	if c.Ingest.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "ingest.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Ingest.StoreTimeout < 0 {
		errors = append(errors, ValidationError{
			Field:   "ingest.store_timeout",
			Message: "store_timeout cannot be negative",
		})
	}

	if c.Ingest.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "ingest.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	// Validate fetch config
	if c.Fetch.URL != "" {
		if u, err := url.Parse(c.Fetch.URL); err != nil || u.Scheme == "" || u.Host == "" {
			errors = append(errors, ValidationError{
				Field:   "fetch.url",
				Message: "invalid fetch URL",
			})
		}
	}

	if c.Fetch.MaxDepth < 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.max_depth",
			Message: "max_depth cannot be negative",
		})
	}

	if c.Fetch.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "fetch.rate_limit",
			Message: "rate_limit cannot be negative",
		})
	}

	return errors
}
