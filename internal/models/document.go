package models

// Segment is a run of raw text produced by a loader, usually one PDF page.
type Segment struct {
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded slice of a segment's text. Start and End are offsets
// into the segment's text counted in code points.
type Chunk struct {
	ID       string
	Content  string
	Metadata map[string]interface{}
	Start    int
	End      int
}

// Batch is a contiguous group of chunks sent to the index in one call.
type Batch []Chunk

// IngestionJob describes the outcome of processing a single file.
type IngestionJob struct {
	Path    string
	Chunks  int
	Batches int
}

// Target names the destination partition of the vector index.
type Target struct {
	Index     string
	Namespace string
	TextField string
}

// Source returns the "source" metadata value, or "" when absent.
func (c Chunk) Source() string {
	s, _ := c.Metadata["source"].(string)
	return s
}

// Page returns the "page" metadata value, or 0 when absent.
func (c Chunk) Page() int {
	switch p := c.Metadata["page"].(type) {
	case int:
		return p
	case int64:
		return int(p)
	case float64:
		return int(p)
	}
	return 0
}
