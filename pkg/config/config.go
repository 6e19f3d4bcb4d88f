package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Embedder struct {
		Provider  string `yaml:"provider"`
		BaseURL   string `yaml:"base_url"`
		Model     string `yaml:"model"`
		APIKey    string `yaml:"api_key"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"embedder"`

	Index struct {
		Backend   string `yaml:"backend"`
		Name      string `yaml:"name"`
		Namespace string `yaml:"namespace"`
		TextField string `yaml:"text_field"`
	} `yaml:"index"`

	Database struct {
		URL       string `yaml:"url"`
		VectorDim int    `yaml:"vector_dim"`
	} `yaml:"database"`

	Pinecone struct {
		Host   string `yaml:"host"`
		APIKey string `yaml:"api_key"`
	} `yaml:"pinecone"`

	Processor struct {
		ChunkSize      int  `yaml:"chunk_size"`
		ChunkOverlap   int  `yaml:"chunk_overlap"`
		SplitLongWords bool `yaml:"split_long_words"`
	} `yaml:"processor"`

	Ingest struct {
		DocsDir      string        `yaml:"docs_dir"`
		BatchSize    int           `yaml:"batch_size"`
		StoreTimeout time.Duration `yaml:"store_timeout"`
		RateLimit    float64       `yaml:"rate_limit"`
		StableIDs    bool          `yaml:"stable_ids"`
	} `yaml:"ingest"`

	Fetch struct {
		URL            string   `yaml:"url"`
		MaxDepth       int      `yaml:"max_depth"`
		RateLimit      float64  `yaml:"rate_limit"`
		IgnorePatterns []string `yaml:"ignore_patterns"`
	} `yaml:"fetch"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/pdfingest/config.yaml"),
			"/etc/pdfingest/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Start from the defaults so that keys missing from the file keep them;
	// chunk_overlap: 0 is a legitimate setting.
	config := newDefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	// Merge with environment variables
	mergeWithEnv(config)

	// Apply defaults for unset values
	applyDefaults(config)

	return config, nil
}

func getDefaultConfig() (*Config, error) {
	config := newDefaultConfig()
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func newDefaultConfig() *Config {
	config := &Config{}
	config.Processor.ChunkSize = 1000
	config.Processor.ChunkOverlap = 200
	return config
}

func applyDefaults(config *Config) {
	if config.Embedder.Provider == "" {
		config.Embedder.Provider = "ollama"
	}
	if config.Embedder.BatchSize == 0 {
		config.Embedder.BatchSize = 512
	}

	if config.Index.Backend == "" {
		config.Index.Backend = "pgvector"
	}
	if config.Index.Name == "" {
		config.Index.Name = "documents"
	}
	if config.Index.TextField == "" {
		config.Index.TextField = "text"
	}

	if config.Database.VectorDim == 0 {
		config.Database.VectorDim = 768
	}

	if config.Processor.ChunkSize == 0 {
		config.Processor.ChunkSize = 1000
	}

	if config.Ingest.DocsDir == "" {
		config.Ingest.DocsDir = "docs"
	}
	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 50
	}

	if config.Fetch.MaxDepth == 0 {
		config.Fetch.MaxDepth = 3
	}
	if config.Fetch.RateLimit == 0 {
		config.Fetch.RateLimit = 2
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.Embedder.BaseURL = baseURL
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		config.Embedder.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
	if apiKey := os.Getenv("PINECONE_API_KEY"); apiKey != "" {
		config.Pinecone.APIKey = apiKey
	}
	if host := os.Getenv("PINECONE_HOST"); host != "" {
		config.Pinecone.Host = host
	}
	if name := os.Getenv("PINECONE_INDEX_NAME"); name != "" {
		config.Index.Name = name
	}
	if ns := os.Getenv("PINECONE_NAME_SPACE"); ns != "" {
		config.Index.Namespace = ns
	}
}
