package processors

import (
	"strings"

	"mediarag/config"
)

// RawSegment is one piece of recognizer output, usually a sub-sentence
// fragment.
type RawSegment struct {
	Text  string
	Start float64
	End   float64
}

// Chunk is one aggregated, retrieval-sized segment. Indices restart at 0 and
// are independent of the raw segment stream.
type Chunk struct {
	Index int
	Text  string
	Start float64
	End   float64
}

// Chunker turns a stream of raw recognizer segments into retrieval-sized
// chunks. Raw output is too fine-grained for embedding quality on its own
// and unbounded accumulation overruns downstream model limits, so the buffer
// is flushed on the first of: a hard duration ceiling, a sentence boundary
// inside the soft window, or a character budget inside the soft window.
//
// The input may be hours long; Push processes it incrementally and never
// materializes the full stream.
type Chunker struct {
	cfg   config.ChunkerConfig
	buf   []RawSegment
	chars int
	next  int
}

func NewChunker(cfg config.ChunkerConfig) *Chunker {
	if cfg.MinDuration <= 0 {
		cfg.MinDuration = 30
	}
	if cfg.MaxDuration <= cfg.MinDuration {
		cfg.MaxDuration = 90
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 2400
	}
	return &Chunker{cfg: cfg}
}

// Push appends one raw segment and reports a completed chunk when a flush
// condition is met.
func (c *Chunker) Push(seg RawSegment) (Chunk, bool) {
	c.buf = append(c.buf, seg)
	c.chars += len(seg.Text)
	if !c.shouldFlush() {
		return Chunk{}, false
	}
	return c.flush(), true
}

// Flush emits whatever remains after the input stream ends. The final
// partial chunk is flushed unconditionally.
func (c *Chunker) Flush() (Chunk, bool) {
	if len(c.buf) == 0 {
		return Chunk{}, false
	}
	return c.flush(), true
}

func (c *Chunker) shouldFlush() bool {
	duration := c.buf[len(c.buf)-1].End - c.buf[0].Start

	if duration >= c.cfg.MaxDuration {
		return true
	}
	if duration >= c.cfg.MinDuration {
		last := strings.TrimSpace(c.buf[len(c.buf)-1].Text)
		if strings.HasSuffix(last, ".") || strings.HasSuffix(last, "?") || strings.HasSuffix(last, "!") {
			return true
		}
		if c.chars > c.cfg.MaxChars {
			return true
		}
	}
	return false
}

func (c *Chunker) flush() Chunk {
	first := c.buf[0]
	last := c.buf[len(c.buf)-1]

	var sb strings.Builder
	for _, seg := range c.buf {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(text)
	}

	chunk := Chunk{
		Index: c.next,
		Text:  sb.String(),
		Start: first.Start,
		End:   last.End,
	}
	c.next++
	c.buf = c.buf[:0]
	c.chars = 0
	return chunk
}
