package ingest_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/pdfingest/internal/models"
	"github.com/xhad/pdfingest/pkg/ingest"
	"github.com/xhad/pdfingest/pkg/processor"
)

// fakeLoader returns n one-word segments per file, or the configured error.
type fakeLoader struct {
	segments map[string]int
	errs     map[string]error
	loaded   []string
}

func (f *fakeLoader) Load(_ context.Context, path string) ([]models.Segment, error) {
	f.loaded = append(f.loaded, path)
	if err := f.errs[path]; err != nil {
		return nil, err
	}
	segs := make([]models.Segment, f.segments[path])
	for i := range segs {
		segs[i] = models.Segment{
			Content:  fmt.Sprintf("segment-%d", i),
			Metadata: map[string]interface{}{"source": path, "page": i + 1},
		}
	}
	return segs, nil
}

// wholeSplitter turns every segment into exactly one chunk.
type wholeSplitter struct{}

func (wholeSplitter) Split(segments []models.Segment) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, len(segments))
	for i, s := range segments {
		chunks[i] = models.Chunk{Content: s.Content, Metadata: s.Metadata, End: len(s.Content)}
	}
	return chunks, nil
}

type storeCall struct {
	source string
	size   int
	target models.Target
	ids    []string
}

type fakeStore struct {
	calls  []storeCall
	failAt int // 1-based call number that fails, 0 never
	err    error
	block  bool
}

func (f *fakeStore) Store(ctx context.Context, batch models.Batch, target models.Target) error {
	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	f.calls = append(f.calls, storeCall{source: batch[0].Source(), size: len(batch), target: target, ids: ids})
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if f.failAt == len(f.calls) {
		return f.err
	}
	return nil
}

func (f *fakeStore) Close() {}

type event struct {
	kind  string
	path  string
	value int
}

type recorder struct {
	events []event
}

func (r *recorder) RunStarted(files int) {
	r.events = append(r.events, event{"run-start", "", files})
}
func (r *recorder) FileStarted(path string, n int) {
	r.events = append(r.events, event{"file-start", path, n})
}
func (r *recorder) BatchesPlanned(path string, batches int) {
	r.events = append(r.events, event{"batches", path, batches})
}
func (r *recorder) BatchStored(path string, n, size int) {
	r.events = append(r.events, event{"batch", path, size})
}
func (r *recorder) FileFinished(job models.IngestionJob) {
	r.events = append(r.events, event{"file-done", job.Path, job.Chunks})
}
func (r *recorder) RunFinished(jobs []models.IngestionJob) {
	r.events = append(r.events, event{"run-done", "", len(jobs)})
}

func (r *recorder) count(kind string) int {
	n := 0
	for _, e := range r.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

var target = models.Target{Index: "pdf-docs", Namespace: "cases", TextField: "text"}

func newIngestor(t *testing.T, config ingest.Config, l *fakeLoader, s *fakeStore, rec *recorder) *ingest.Ingestor {
	t.Helper()
	config.Target = target
	in, err := ingest.New(config, l, wholeSplitter{}, s, ingest.WithObserver(rec))
	require.NoError(t, err)
	return in
}

func TestNew(t *testing.T) {
	l, s := &fakeLoader{}, &fakeStore{}

	tests := []struct {
		name    string
		config  ingest.Config
		wantErr bool
	}{
		{name: "defaults", config: ingest.Config{}},
		{name: "negative batch size", config: ingest.Config{BatchSize: -1}, wantErr: true},
		{name: "negative timeout", config: ingest.Config{StoreTimeout: -time.Second}, wantErr: true},
		{name: "negative rate", config: ingest.Config{RateLimit: -1}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ingest.New(tt.config, l, wholeSplitter{}, s)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	_, err := ingest.New(ingest.Config{}, nil, wholeSplitter{}, s)
	assert.Error(t, err)
}

func TestIngestor_Run(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"a.pdf": 120, "b.pdf": 3}}
	s := &fakeStore{}
	rec := &recorder{}
	in := newIngestor(t, ingest.Config{BatchSize: 50}, l, s, rec)

	report, err := in.Run(context.Background(), []string{"a.pdf", "b.pdf"})
	require.NoError(t, err)

	assert.Equal(t, []models.IngestionJob{
		{Path: "a.pdf", Chunks: 120, Batches: 3},
		{Path: "b.pdf", Chunks: 3, Batches: 1},
	}, report.Jobs)
	assert.Equal(t, 123, report.Chunks)
	assert.Equal(t, 4, report.Batches)

	require.Len(t, s.calls, 4)
	sizes := []int{s.calls[0].size, s.calls[1].size, s.calls[2].size, s.calls[3].size}
	assert.Equal(t, []int{50, 50, 20, 3}, sizes)
	assert.Equal(t, "a.pdf", s.calls[2].source)
	assert.Equal(t, "b.pdf", s.calls[3].source)
	assert.Equal(t, target, s.calls[0].target)

	assert.Equal(t, []event{
		{"run-start", "", 2},
		{"file-start", "a.pdf", 1},
		{"batches", "a.pdf", 3},
		{"batch", "a.pdf", 50},
		{"batch", "a.pdf", 50},
		{"batch", "a.pdf", 20},
		{"file-done", "a.pdf", 120},
		{"file-start", "b.pdf", 2},
		{"batches", "b.pdf", 1},
		{"batch", "b.pdf", 3},
		{"file-done", "b.pdf", 3},
		{"run-done", "", 2},
	}, rec.events)
}

func TestIngestor_RunStopsAtFailingBatch(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"a.pdf": 120, "b.pdf": 10}}
	cause := errors.New("index capacity exceeded")
	s := &fakeStore{failAt: 2, err: cause}
	rec := &recorder{}
	in := newIngestor(t, ingest.Config{BatchSize: 50}, l, s, rec)

	report, err := in.Run(context.Background(), []string{"a.pdf", "b.pdf"})
	require.Error(t, err)

	var ie *ingest.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "a.pdf", ie.Path)
	assert.Equal(t, ingest.StageStore, ie.Stage)

	var se *ingest.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 2, se.Batch)
	assert.Equal(t, 50, se.Size)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, []string{"a.pdf"}, l.loaded, "b.pdf must never be loaded")
	assert.Len(t, s.calls, 2, "batch 3 must never be stored")
	assert.Empty(t, report.Jobs)
	assert.Equal(t, 1, rec.count("batch"))
	assert.Zero(t, rec.count("file-done"))
	assert.Zero(t, rec.count("run-done"))
}

func TestIngestor_RunLoadFailure(t *testing.T) {
	cause := errors.New("not a PDF file")
	l := &fakeLoader{
		segments: map[string]int{"a.pdf": 2, "c.pdf": 2},
		errs:     map[string]error{"b.pdf": cause},
	}
	s := &fakeStore{}
	rec := &recorder{}
	in := newIngestor(t, ingest.Config{}, l, s, rec)

	report, err := in.Run(context.Background(), []string{"a.pdf", "b.pdf", "c.pdf"})

	var le *ingest.LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "b.pdf", le.Path)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "b.pdf")

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, l.loaded)
	assert.Len(t, report.Jobs, 1)
	assert.Len(t, s.calls, 1)
}

func TestIngestor_RunKeepsLoaderLoadError(t *testing.T) {
	original := &ingest.LoadError{Path: "other-name.pdf", Err: errors.New("boom")}
	l := &fakeLoader{errs: map[string]error{"a.pdf": original}}
	in := newIngestor(t, ingest.Config{}, l, &fakeStore{}, &recorder{})

	_, err := in.Run(context.Background(), []string{"a.pdf"})

	var le *ingest.LoadError
	require.ErrorAs(t, err, &le)
	assert.Same(t, original, le)
}

func TestIngestor_RunEmptyFile(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"empty.pdf": 0}}
	s := &fakeStore{}
	rec := &recorder{}
	in := newIngestor(t, ingest.Config{}, l, s, rec)

	report, err := in.Run(context.Background(), []string{"empty.pdf"})
	require.NoError(t, err)

	assert.Equal(t, []models.IngestionJob{{Path: "empty.pdf"}}, report.Jobs)
	assert.Empty(t, s.calls)
	assert.Equal(t, []event{
		{"run-start", "", 1},
		{"file-start", "empty.pdf", 1},
		{"batches", "empty.pdf", 0},
		{"file-done", "empty.pdf", 0},
		{"run-done", "", 1},
	}, rec.events)
}

func TestIngestor_RunNoFiles(t *testing.T) {
	rec := &recorder{}
	in := newIngestor(t, ingest.Config{}, &fakeLoader{}, &fakeStore{}, rec)

	report, err := in.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Jobs)
	assert.Equal(t, []event{{"run-start", "", 0}, {"run-done", "", 0}}, rec.events)
}

// cancellingObserver cancels the run once a given number of batches is stored.
type cancellingObserver struct {
	recorder
	after  int
	cancel context.CancelFunc
}

func (c *cancellingObserver) BatchStored(path string, n, size int) {
	c.recorder.BatchStored(path, n, size)
	if c.count("batch") == c.after {
		c.cancel()
	}
}

func TestIngestor_RunCancelledBetweenBatches(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &fakeLoader{segments: map[string]int{"a.pdf": 30, "b.pdf": 5}}
	s := &fakeStore{}
	obs := &cancellingObserver{after: 2, cancel: cancel}
	in, err := ingest.New(ingest.Config{Target: target, BatchSize: 10}, l, wholeSplitter{}, s, ingest.WithObserver(obs))
	require.NoError(t, err)

	_, err = in.Run(ctx, []string{"a.pdf", "b.pdf"})

	var ie *ingest.IngestionError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, ingest.StageCancelled, ie.Stage)
	assert.Equal(t, "a.pdf", ie.Path)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, s.calls, 2)
	assert.Equal(t, []string{"a.pdf"}, l.loaded)
}

func TestIngestor_RunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := &fakeLoader{segments: map[string]int{"a.pdf": 1}}
	in := newIngestor(t, ingest.Config{}, l, &fakeStore{}, &recorder{})

	_, err := in.Run(ctx, []string{"a.pdf"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, l.loaded)
}

func TestIngestor_RunStoreTimeout(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"a.pdf": 3}}
	s := &fakeStore{block: true}
	in := newIngestor(t, ingest.Config{StoreTimeout: 20 * time.Millisecond}, l, s, &recorder{})

	_, err := in.Run(context.Background(), []string{"a.pdf"})

	var se *ingest.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Batch)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, s.calls, 1)
}

func TestIngestor_RunRateLimited(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"a.pdf": 4}}
	s := &fakeStore{}
	in := newIngestor(t, ingest.Config{BatchSize: 1, RateLimit: 50}, l, s, &recorder{})

	start := time.Now()
	_, err := in.Run(context.Background(), []string{"a.pdf"})
	require.NoError(t, err)

	assert.Len(t, s.calls, 4)
	// burst of one, then 20ms between calls
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestIngestor_RunAssignsIDs(t *testing.T) {
	l := &fakeLoader{segments: map[string]int{"a.pdf": 3}}

	run := func(ids ingest.IDFunc) []string {
		s := &fakeStore{}
		in := newIngestor(t, ingest.Config{IDs: ids}, l, s, &recorder{})
		_, err := in.Run(context.Background(), []string{"a.pdf"})
		require.NoError(t, err)
		require.Len(t, s.calls, 1)
		return s.calls[0].ids
	}

	stable1, stable2 := run(ingest.StableID), run(ingest.StableID)
	assert.Equal(t, stable1, stable2)
	assert.Len(t, stable1, 3)
	assert.NotEqual(t, stable1[0], stable1[1])

	random1, random2 := run(nil), run(nil)
	assert.NotEqual(t, random1, random2)
	for _, id := range random1 {
		assert.NotEmpty(t, id)
	}
}

func TestIngestor_RunWithProcessor(t *testing.T) {
	// end to end with the real splitter: 19 chars, size 10, overlap 3
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 10, ChunkOverlap: 3})
	require.NoError(t, err)

	l := &textLoader{text: "AAAA BBBB CCCC DDDD"}
	s := &fakeStore{}
	var logs bytes.Buffer
	in, err := ingest.New(ingest.Config{Target: target, BatchSize: 2}, l, p, s,
		ingest.WithLogger(log.New(&logs, "", 0)))
	require.NoError(t, err)

	report, err := in.Run(context.Background(), []string{"abcd.pdf"})
	require.NoError(t, err)

	assert.Equal(t, []models.IngestionJob{{Path: "abcd.pdf", Chunks: 3, Batches: 2}}, report.Jobs)
	require.Len(t, s.calls, 2)
	assert.Equal(t, 2, s.calls[0].size)
	assert.Equal(t, 1, s.calls[1].size)
	assert.Contains(t, logs.String(), "Processing file: abcd.pdf")
}

type textLoader struct {
	text string
}

func (l *textLoader) Load(_ context.Context, path string) ([]models.Segment, error) {
	return []models.Segment{{Content: l.text, Metadata: map[string]interface{}{"source": path, "page": 1}}}, nil
}
