package loader

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/xhad/pdfingest/internal/models"
)

// PDF loads one segment per page of text from a PDF file.
type PDF struct{}

func NewPDF() *PDF {
	return &PDF{}
}

// Load extracts the plain text of every page. Pages without text are
// skipped, so an image-only document yields no segments. The pdf parser
// panics on some malformed files; those panics are returned as errors.
func (l *PDF) Load(ctx context.Context, path string) (segments []models.Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segments = nil
			err = fmt.Errorf("could not read PDF %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not read PDF %s: %w", path, err)
	}
	defer f.Close()

	total := r.NumPage()
	segments = make([]models.Segment, 0, total)

	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("could not extract page %d of %s: %w", i, path, err)
		}
		text = sanitizeUTF8(text)
		if strings.TrimSpace(text) == "" {
			continue
		}

		segments = append(segments, models.Segment{
			Content: text,
			Metadata: map[string]interface{}{
				"source":      path,
				"page":        i,
				"total_pages": total,
			},
		})
	}

	return segments, nil
}

func sanitizeUTF8(s string) string {
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for i, r := range s {
			if r == utf8.RuneError {
				_, size := utf8.DecodeRuneInString(s[i:])
				if size == 1 {
					continue
				}
			}
			v = append(v, r)
		}
		return string(v)
	}
	return s
}
