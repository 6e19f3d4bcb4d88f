package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/xhad/pdfingest/internal/models"
	"github.com/xhad/pdfingest/internal/types"
	"github.com/xhad/pdfingest/pkg/processor"
	"github.com/xhad/pdfingest/pkg/progress"
	"golang.org/x/time/rate"
)

const DefaultBatchSize = 50

type Config struct {
	Target       models.Target
	BatchSize    int
	StoreTimeout time.Duration // per store call, 0 disables
	RateLimit    float64       // store calls per second, 0 disables
	IDs          IDFunc
}

// Ingestor drives files through load, split, batch and store, one file and
// one batch at a time. The first error stops the run.
type Ingestor struct {
	config   Config
	loader   types.Loader
	splitter types.Splitter
	store    types.VectorStore
	observer types.Observer
	limiter  *rate.Limiter
	logger   *log.Logger
}

type Option func(*Ingestor)

func WithObserver(o types.Observer) Option {
	return func(in *Ingestor) {
		if o != nil {
			in.observer = o
		}
	}
}

func WithLogger(l *log.Logger) Option {
	return func(in *Ingestor) {
		in.logger = l
	}
}

// Report summarises a run. Jobs holds one entry per fully ingested file.
type Report struct {
	Jobs    []models.IngestionJob
	Chunks  int
	Batches int
}

func New(config Config, loader types.Loader, splitter types.Splitter, store types.VectorStore, opts ...Option) (*Ingestor, error) {
	if loader == nil || splitter == nil || store == nil {
		return nil, errors.New("loader, splitter and store are required")
	}
	if config.BatchSize == 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.BatchSize < 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", config.BatchSize)
	}
	if config.StoreTimeout < 0 {
		return nil, fmt.Errorf("store timeout cannot be negative, got %s", config.StoreTimeout)
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative, got %g", config.RateLimit)
	}
	if config.Target.TextField == "" {
		config.Target.TextField = "text"
	}
	if config.IDs == nil {
		config.IDs = RandomID
	}

	in := &Ingestor{
		config:   config,
		loader:   loader,
		splitter: splitter,
		store:    store,
		observer: progress.Nop{},
	}
	if config.RateLimit > 0 {
		in.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	for _, opt := range opts {
		opt(in)
	}

	return in, nil
}

// Run ingests paths in order. Cancellation of ctx is honoured before each
// file and before each batch, never in the middle of a store call.
func (in *Ingestor) Run(ctx context.Context, paths []string) (Report, error) {
	var report Report

	in.observer.RunStarted(len(paths))

	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return report, &IngestionError{Path: path, Stage: StageCancelled, Err: err}
		}

		job, err := in.ingestFile(ctx, i+1, path)
		if err != nil {
			in.logf("Ingestion stopped at %s: %v", path, err)
			return report, err
		}

		report.Jobs = append(report.Jobs, job)
		report.Chunks += job.Chunks
		report.Batches += job.Batches
	}

	in.observer.RunFinished(report.Jobs)
	in.logf("Ingested %d files into %d chunks (%d batches)", len(report.Jobs), report.Chunks, report.Batches)

	return report, nil
}

func (in *Ingestor) ingestFile(ctx context.Context, n int, path string) (models.IngestionJob, error) {
	job := models.IngestionJob{Path: path}

	in.observer.FileStarted(path, n)
	in.logf("Processing file: %s", path)

	segments, err := in.loader.Load(ctx, path)
	if err != nil {
		var le *LoadError
		if !errors.As(err, &le) {
			err = &LoadError{Path: path, Err: err}
		}
		return job, &IngestionError{Path: path, Stage: StageLoad, Err: err}
	}

	chunks, err := in.splitter.Split(segments)
	if err != nil {
		return job, &IngestionError{Path: path, Stage: StageSplit, Err: err}
	}
	for i := range chunks {
		chunks[i].ID = in.config.IDs(chunks[i])
	}

	batches, err := processor.Batch(chunks, in.config.BatchSize)
	if err != nil {
		return job, &IngestionError{Path: path, Stage: StageBatch, Err: err}
	}

	job.Chunks = len(chunks)
	job.Batches = len(batches)
	in.logf("Split %s into %d segments, %d chunks, %d batches", path, len(segments), job.Chunks, job.Batches)
	in.observer.BatchesPlanned(path, len(batches))

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return job, &IngestionError{Path: path, Stage: StageCancelled, Err: err}
		}
		if in.limiter != nil {
			if err := in.limiter.Wait(ctx); err != nil {
				return job, &IngestionError{Path: path, Stage: StageCancelled, Err: err}
			}
		}

		if err := in.storeBatch(ctx, batch); err != nil {
			return job, &IngestionError{
				Path:  path,
				Stage: StageStore,
				Err:   &StoreError{Path: path, Batch: i + 1, Size: len(batch), Err: err},
			}
		}
		in.observer.BatchStored(path, i+1, len(batch))
	}

	in.observer.FileFinished(job)
	return job, nil
}

func (in *Ingestor) storeBatch(ctx context.Context, batch models.Batch) error {
	if in.config.StoreTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, in.config.StoreTimeout)
		defer cancel()
	}
	return in.store.Store(ctx, batch, in.config.Target)
}

func (in *Ingestor) logf(format string, args ...interface{}) {
	if in.logger != nil {
		in.logger.Printf(format, args...)
	}
}
