package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/pdfingest/internal/models"
	"github.com/xhad/pdfingest/internal/types"
	cfgPkg "github.com/xhad/pdfingest/pkg/config"
	"github.com/xhad/pdfingest/pkg/ingest"
	"github.com/xhad/pdfingest/pkg/llm"
	"github.com/xhad/pdfingest/pkg/loader"
	"github.com/xhad/pdfingest/pkg/processor"
	"github.com/xhad/pdfingest/pkg/progress"
	"github.com/xhad/pdfingest/pkg/scraper"
	"github.com/xhad/pdfingest/pkg/store"
)

type options struct {
	configPath string
	progress   string
}

func main() {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	cfg, opts, err := parseFlags()
	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		color.Red("Error: %v", err)
		stop()
		os.Exit(1)
	}
}

func parseFlags() (*cfgPkg.Config, options, error) {
	var opts options
	var (
		docsDir   string
		backend   string
		index     string
		namespace string
		dbURL     string
		ollamaURL string
		fetchURL  string
		stableIDs bool
		timeout   time.Duration
	)

	flag.StringVar(&opts.configPath, "config", "", "Path to config file")
	flag.StringVar(&opts.progress, "progress", "bar", "Progress output: bar, log or none")
	flag.StringVar(&docsDir, "docs", "", "Directory to search for PDF files")
	flag.StringVar(&backend, "backend", "", "Vector index backend: pgvector or pinecone")
	flag.StringVar(&index, "index", "", "Index (table) name")
	flag.StringVar(&namespace, "namespace", "", "Index namespace")
	flag.StringVar(&dbURL, "db-url", "", "PostgreSQL connection string")
	flag.StringVar(&ollamaURL, "ollama-url", "", "Ollama server URL")
	flag.StringVar(&fetchURL, "fetch-url", "", "Documentation page to crawl for PDFs before ingesting")
	flag.BoolVar(&stableIDs, "stable-ids", false, "Derive chunk IDs from content so re-runs overwrite (pgvector only)")
	flag.DurationVar(&timeout, "timeout", 0, "Timeout per store call (0 disables)")
	flag.Parse()

	cfg, err := cfgPkg.LoadConfig(opts.configPath)
	if err != nil {
		return nil, opts, err
	}

	// Command line flags override the config file when provided
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "docs":
			cfg.Ingest.DocsDir = docsDir
		case "backend":
			cfg.Index.Backend = backend
		case "index":
			cfg.Index.Name = index
		case "namespace":
			cfg.Index.Namespace = namespace
		case "db-url":
			cfg.Database.URL = dbURL
		case "ollama-url":
			cfg.Embedder.BaseURL = ollamaURL
		case "fetch-url":
			cfg.Fetch.URL = fetchURL
		case "stable-ids":
			cfg.Ingest.StableIDs = stableIDs
		case "timeout":
			cfg.Ingest.StoreTimeout = timeout
		}
	})

	if errs := cfg.Validate(); len(errs) > 0 {
		joined := make([]error, len(errs))
		for i, e := range errs {
			joined[i] = e
		}
		return nil, opts, fmt.Errorf("invalid configuration: %w", errors.Join(joined...))
	}

	switch opts.progress {
	case "bar", "log", "none":
	default:
		return nil, opts, fmt.Errorf("unknown progress mode %q (want bar, log or none)", opts.progress)
	}

	return cfg, opts, nil
}

func run(ctx context.Context, cfg *cfgPkg.Config, opts options) error {
	if cfg.Fetch.URL != "" {
		if err := fetchPDFs(ctx, cfg); err != nil {
			return err
		}
	}

	paths, err := loader.FindPDFs(cfg.Ingest.DocsDir)
	if err != nil {
		return fmt.Errorf("failed to list PDF files: %w", err)
	}
	if len(paths) == 0 {
		color.Yellow("No PDF files found in %s", cfg.Ingest.DocsDir)
		return nil
	}

	// Initialize components
	embedder, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{
		Provider:  cfg.Embedder.Provider,
		Model:     cfg.Embedder.Model,
		BaseURL:   cfg.Embedder.BaseURL,
		APIKey:    cfg.Embedder.APIKey,
		BatchSize: cfg.Embedder.BatchSize,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorStore, err := newVectorStore(ctx, cfg, embedder)
	if err != nil {
		return fmt.Errorf("failed to initialize vector store: %w", err)
	}
	defer vectorStore.Close()

	splitter, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:      cfg.Processor.ChunkSize,
		ChunkOverlap:   cfg.Processor.ChunkOverlap,
		SplitLongWords: cfg.Processor.SplitLongWords,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize text splitter: %w", err)
	}

	logger := log.New(os.Stderr, "", log.LstdFlags)

	ids := ingest.RandomID
	if cfg.Ingest.StableIDs {
		ids = ingest.StableID
	}

	ingestor, err := ingest.New(ingest.Config{
		Target: models.Target{
			Index:     cfg.Index.Name,
			Namespace: cfg.Index.Namespace,
			TextField: cfg.Index.TextField,
		},
		BatchSize:    cfg.Ingest.BatchSize,
		StoreTimeout: cfg.Ingest.StoreTimeout,
		RateLimit:    cfg.Ingest.RateLimit,
		IDs:          ids,
	}, loader.NewPDF(), splitter, vectorStore,
		ingest.WithObserver(newObserver(opts.progress, logger)),
		ingest.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	color.Blue("\nIngesting %d PDF files from %s into %s (%s)\n",
		len(paths), cfg.Ingest.DocsDir, cfg.Index.Name, cfg.Index.Backend)

	report, err := ingestor.Run(ctx, paths)
	if err != nil {
		return err
	}

	color.Green("\n✓ ingestion complete: %d files, %d chunks, %d batches\n",
		len(report.Jobs), report.Chunks, report.Batches)
	return nil
}

// fetchPDFs downloads the PDFs linked from the fetch URL into the docs
// directory so the regular discovery picks them up.
func fetchPDFs(ctx context.Context, cfg *cfgPkg.Config) error {
	color.Blue("\nCrawling %s for PDF files\n", cfg.Fetch.URL)

	spinner := getSpinner("🔍 Crawling...")
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        cfg.Fetch.URL,
		MaxDepth:       cfg.Fetch.MaxDepth,
		RateLimit:      cfg.Fetch.RateLimit,
		IgnorePatterns: cfg.Fetch.IgnorePatterns,
		OnProgress: func(string) {
			spinner.Add(1)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	links, err := s.FindPDFLinks(ctx)
	spinner.Finish()
	if err != nil {
		return fmt.Errorf("failed to crawl %s: %w", cfg.Fetch.URL, err)
	}

	downloaded, err := s.Download(ctx, links, cfg.Ingest.DocsDir)
	if err != nil {
		return err
	}
	color.Green("✓ Downloaded %d PDF files into %s\n", len(downloaded), cfg.Ingest.DocsDir)

	return nil
}

func getSpinner(description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func newVectorStore(ctx context.Context, cfg *cfgPkg.Config, embedder *llm.Embedder) (types.VectorStore, error) {
	switch cfg.Index.Backend {
	case "pinecone":
		return store.NewPinecone(store.PineconeConfig{
			Host:   cfg.Pinecone.Host,
			APIKey: cfg.Pinecone.APIKey,
		}, embedder.Embed)
	default:
		return store.NewWithConfig(ctx, store.VectorStoreConfig{
			ConnString: cfg.Database.URL,
			VectorDim:  cfg.Database.VectorDim,
		}, embedder)
	}
}

func newObserver(mode string, logger *log.Logger) types.Observer {
	switch mode {
	case "log":
		return progress.NewLog(logger)
	case "none":
		return progress.Nop{}
	default:
		return progress.NewBars(os.Stderr)
	}
}
