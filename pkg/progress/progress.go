package progress

import (
	"fmt"
	"io"
	"log"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/xhad/pdfingest/internal/models"
)

func getProgressBar(out io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(out),
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
	)
}

// Bars renders the file counter and the per-file batch counter as two
// terminal progress bars.
type Bars struct {
	out     io.Writer
	total   int
	files   *progressbar.ProgressBar
	batches *progressbar.ProgressBar
}

func NewBars(out io.Writer) *Bars {
	return &Bars{out: out}
}

func (b *Bars) RunStarted(files int) {
	b.total = files
	if files > 0 {
		b.files = getProgressBar(b.out, files, "📄 Files")
	}
}

func (b *Bars) FileStarted(path string, n int) {
	if b.files == nil {
		return
	}
	b.files.Describe(color.BlueString("📄 [%d/%d] %s", n, b.total, filepath.Base(path)))
	b.files.Add(1)
}

func (b *Bars) BatchesPlanned(path string, batches int) {
	b.batches = nil
	if batches > 0 {
		b.batches = getProgressBar(b.out, batches, "💾 Embedding "+filepath.Base(path))
	}
}

func (b *Bars) BatchStored(string, int, int) {
	if b.batches != nil {
		b.batches.Add(1)
	}
}

func (b *Bars) FileFinished(models.IngestionJob) {
	if b.batches != nil {
		b.batches.Finish()
		b.batches = nil
	}
}

func (b *Bars) RunFinished([]models.IngestionJob) {
	if b.files != nil {
		b.files.Finish()
	}
}

// Log reports progress as log lines, for output that is not a terminal.
type Log struct {
	logger  *log.Logger
	files   int
	batches int
}

func NewLog(logger *log.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) RunStarted(files int) {
	l.files = files
	l.logger.Printf("Ingesting %d files", files)
}

func (l *Log) FileStarted(path string, n int) {
	l.logger.Printf("[%d/%d] Processing file: %s", n, l.files, path)
}

func (l *Log) BatchesPlanned(path string, batches int) {
	l.batches = batches
	l.logger.Printf("%s: %d batches to embed", path, batches)
}

func (l *Log) BatchStored(path string, n, size int) {
	l.logger.Printf("%s: embedded batch %d/%d (%d chunks)", path, n, l.batches, size)
}

func (l *Log) FileFinished(job models.IngestionJob) {
	l.logger.Printf("%s: done, %d chunks in %d batches", job.Path, job.Chunks, job.Batches)
}

func (l *Log) RunFinished(jobs []models.IngestionJob) {
	l.logger.Printf("Finished %d files", len(jobs))
}

// Nop ignores every signal.
type Nop struct{}

func (Nop) RunStarted(int) {}

func (Nop) FileStarted(string, int) {}

func (Nop) BatchesPlanned(string, int) {}

func (Nop) BatchStored(string, int, int) {}

func (Nop) FileFinished(models.IngestionJob) {}

func (Nop) RunFinished([]models.IngestionJob) {}
