package ingest

import "fmt"

// Stage names the step of the pipeline at which a run failed.
type Stage string

const (
	StageLoad      Stage = "load"
	StageSplit     Stage = "split"
	StageBatch     Stage = "batch"
	StageStore     Stage = "store"
	StageCancelled Stage = "cancelled"
)

// LoadError reports a file that could not be read or parsed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// StoreError reports a failed embedding or upsert call. Batch is 1-based.
type StoreError struct {
	Path  string
	Batch int
	Size  int
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store batch %d (%d chunks) of %s: %v", e.Batch, e.Size, e.Path, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// IngestionError is the error returned by Run. It carries the file being
// processed when the run stopped.
type IngestionError struct {
	Path  string
	Stage Stage
	Err   error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingestion failed at %s stage for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
