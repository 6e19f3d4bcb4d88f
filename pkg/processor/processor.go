package processor

import (
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/xhad/pdfingest/internal/models"
)

type ProcessorConfig struct {
	ChunkSize      int
	ChunkOverlap   int
	SplitLongWords bool
}

// Strategy locates a split position in text. Last returns the greatest
// position p with from < p <= to at which text may be cut, or -1.
type Strategy struct {
	Name string
	Last func(text []rune, from, to int) int
}

var (
	Paragraph = Strategy{Name: "paragraph", Last: lastParagraphBreak}
	Sentence  = Strategy{Name: "sentence", Last: lastSentenceBreak}
	Word      = Strategy{Name: "word", Last: lastWordBreak}
	Character = Strategy{Name: "character", Last: func(_ []rune, from, to int) int {
		if to > from {
			return to
		}
		return -1
	}}
)

// Processor splits segments into overlapping chunks, trying its strategies
// in order and taking the first one that yields a cut inside the size budget.
type Processor struct {
	config     ProcessorConfig
	strategies []Strategy
}

func NewWithConfig(config ProcessorConfig) (*Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 1000
	}
	if config.ChunkSize < 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap < 0 || config.ChunkOverlap >= config.ChunkSize {
		return nil, fmt.Errorf("chunk overlap %d must be non-negative and less than chunk size %d",
			config.ChunkOverlap, config.ChunkSize)
	}

	strategies := []Strategy{Paragraph, Sentence, Word}
	if config.SplitLongWords {
		strategies = append(strategies, Character)
	}

	return &Processor{
		config:     config,
		strategies: strategies,
	}, nil
}

// Strategies returns the names of the boundary strategies in priority order.
func (p *Processor) Strategies() []string {
	names := make([]string, len(p.strategies))
	for i, s := range p.strategies {
		names[i] = s.Name
	}
	return names
}

// Split chunks every segment independently. Chunk order follows segment
// order and text order; metadata is copied from the originating segment.
func (p *Processor) Split(segments []models.Segment) ([]models.Chunk, error) {
	var chunks []models.Chunk

	for i, seg := range segments {
		if !utf8.ValidString(seg.Content) {
			return nil, fmt.Errorf("segment %d: content is not valid UTF-8", i)
		}
		text := []rune(seg.Content)
		for _, span := range p.spans(text) {
			chunks = append(chunks, models.Chunk{
				Content:  string(text[span[0]:span[1]]),
				Metadata: cloneMetadata(seg.Metadata),
				Start:    span[0],
				End:      span[1],
			})
		}
	}

	return chunks, nil
}

// spans returns the [start, end) ranges of the chunks of text. Every chunk
// after the first starts ChunkOverlap runes before the end of the previous
// one; the overlap is dropped only when no cut fits the budget with it.
func (p *Processor) spans(text []rune) [][2]int {
	overlap := p.config.ChunkOverlap
	n := len(text)

	var spans [][2]int
	prevStart, prevEnd := 0, 0

	for prevEnd < n {
		start := prevEnd
		if len(spans) > 0 {
			start = max(prevEnd-overlap, prevStart+1)
		}

		end := p.fit(text, start, prevEnd)
		if end < 0 && start < prevEnd {
			start = prevEnd
			end = p.fit(text, start, prevEnd)
		}
		if end < 0 {
			// a single unit that does not fit anywhere is emitted whole
			end = nextWordBreak(text, prevEnd)
		}

		spans = append(spans, [2]int{start, end})
		prevStart, prevEnd = start, end
	}

	return spans
}

// fit returns the end of a chunk starting at start that adds text after
// prevEnd, or -1 when no strategy finds a cut within the size budget.
func (p *Processor) fit(text []rune, start, prevEnd int) int {
	limit := start + p.config.ChunkSize
	if limit >= len(text) {
		return len(text)
	}
	return p.cut(text, prevEnd, limit)
}

func (p *Processor) cut(text []rune, from, to int) int {
	for _, s := range p.strategies {
		if pos := s.Last(text, from, to); pos > from {
			return pos
		}
	}
	return -1
}

// isRunEnd reports whether pos sits right after a whitespace run.
func isRunEnd(text []rune, pos int) bool {
	if pos <= 0 || pos > len(text) || !unicode.IsSpace(text[pos-1]) {
		return false
	}
	return pos == len(text) || !unicode.IsSpace(text[pos])
}

// runStart returns the index of the first rune of the whitespace run ending at pos.
func runStart(text []rune, pos int) int {
	i := pos
	for i > 0 && unicode.IsSpace(text[i-1]) {
		i--
	}
	return i
}

func lastWordBreak(text []rune, from, to int) int {
	for pos := to; pos > from; pos-- {
		if isRunEnd(text, pos) {
			return pos
		}
	}
	return -1
}

func lastSentenceBreak(text []rune, from, to int) int {
	for pos := to; pos > from; pos-- {
		if !isRunEnd(text, pos) {
			continue
		}
		i := runStart(text, pos)
		for i > 0 && isCloser(text[i-1]) {
			i--
		}
		if i > 0 && isTerminal(text[i-1]) {
			return pos
		}
	}
	return -1
}

func lastParagraphBreak(text []rune, from, to int) int {
	for pos := to; pos > from; pos-- {
		if !isRunEnd(text, pos) {
			continue
		}
		newlines := 0
		for _, r := range text[runStart(text, pos):pos] {
			if r == '\n' {
				newlines++
			}
		}
		if newlines >= 2 {
			return pos
		}
	}
	return -1
}

func nextWordBreak(text []rune, from int) int {
	for pos := from + 1; pos < len(text); pos++ {
		if isRunEnd(text, pos) {
			return pos
		}
	}
	return len(text)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '”', '’':
		return true
	}
	return false
}

func cloneMetadata(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
