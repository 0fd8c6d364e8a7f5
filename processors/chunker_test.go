package processors

import (
	"fmt"
	"strings"
	"testing"

	"mediarag/config"
)

func defaults() config.ChunkerConfig {
	return config.ChunkerConfig{MinDuration: 30, MaxDuration: 90, MaxChars: 2400}
}

func drain(c *Chunker, raw []RawSegment) []Chunk {
	var out []Chunk
	for _, seg := range raw {
		if chunk, ok := c.Push(seg); ok {
			out = append(out, chunk)
		}
	}
	if chunk, ok := c.Flush(); ok {
		out = append(out, chunk)
	}
	return out
}

func TestChunkerHardCeiling(t *testing.T) {
	// 0-95s with no punctuation: the hard ceiling must cut at or before 90s.
	var raw []RawSegment
	for start := 0.0; start < 95; start += 5 {
		raw = append(raw, RawSegment{Text: "words without any ending", Start: start, End: start + 5})
	}
	chunks := drain(NewChunker(defaults()), raw)
	if len(chunks) < 2 {
		t.Fatalf("expected a flush before end of stream, got %d chunks", len(chunks))
	}
	if d := chunks[0].End - chunks[0].Start; d > 90 {
		t.Errorf("first chunk spans %.0fs, exceeds the 90s ceiling", d)
	}
}

func TestChunkerSentenceBoundaryInSoftWindow(t *testing.T) {
	// 35s ending in '.' must flush there, not run to 90s.
	raw := []RawSegment{
		{Text: "the first part of a thought", Start: 0, End: 20},
		{Text: "now it concludes.", Start: 20, End: 35},
		{Text: "a new thought begins", Start: 35, End: 50},
	}
	chunks := drain(NewChunker(defaults()), raw)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].End != 35 {
		t.Errorf("first chunk ends at %.0fs, want 35 (sentence boundary)", chunks[0].End)
	}
	if chunks[0].Text != "the first part of a thought now it concludes." {
		t.Errorf("unexpected chunk text: %q", chunks[0].Text)
	}
}

func TestChunkerNoFlushBelowSoftWindow(t *testing.T) {
	c := NewChunker(defaults())
	if _, ok := c.Push(RawSegment{Text: "Short and done.", Start: 0, End: 10}); ok {
		t.Error("flushed below the soft window despite punctuation")
	}
	if chunk, ok := c.Flush(); !ok || chunk.Text != "Short and done." {
		t.Errorf("final flush lost the partial buffer: %+v, %v", chunk, ok)
	}
}

func TestChunkerCharBudgetWithoutPunctuation(t *testing.T) {
	// Inside the soft window with a blown character budget, flush even
	// though no sentence ever ends.
	long := strings.Repeat("na ", 450) // ~1350 chars per segment
	raw := []RawSegment{
		{Text: long, Start: 0, End: 20},
		{Text: long, Start: 20, End: 40},
		{Text: "still going", Start: 40, End: 50},
	}
	chunks := drain(NewChunker(defaults()), raw)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].End != 40 {
		t.Errorf("char-budget flush at %.0fs, want 40", chunks[0].End)
	}
}

func TestChunkerRoundTripAndContiguity(t *testing.T) {
	var raw []RawSegment
	for i := 0; i < 40; i++ {
		text := fmt.Sprintf("  fragment %d ", i)
		if i%7 == 6 {
			text = fmt.Sprintf("fragment %d.", i)
		}
		raw = append(raw, RawSegment{Text: text, Start: float64(i) * 8, End: float64(i+1) * 8})
	}
	chunks := drain(NewChunker(defaults()), raw)

	var wantParts []string
	for _, seg := range raw {
		wantParts = append(wantParts, strings.TrimSpace(seg.Text))
	}
	want := strings.Join(wantParts, " ")

	var gotParts []string
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d has index %d", i, chunk.Index)
		}
		gotParts = append(gotParts, chunk.Text)
		if i > 0 && chunks[i-1].End != chunk.Start {
			t.Errorf("chunks %d and %d are not contiguous: %.0f vs %.0f", i-1, i, chunks[i-1].End, chunk.Start)
		}
	}
	if got := strings.Join(gotParts, " "); got != want {
		t.Errorf("concatenated chunks do not reproduce normalized input\ngot:  %q\nwant: %q", got, want)
	}
	if chunks[0].Start != 0 || chunks[len(chunks)-1].End != 320 {
		t.Errorf("chunk spans do not cover the input: %+v", chunks)
	}
}

func TestChunkerEndToEndScenario(t *testing.T) {
	// Three raw segments over 120s: punctuation-triggered flush after the
	// first, end-of-stream flush for the rest.
	raw := []RawSegment{
		{Text: "Hello world.", Start: 0, End: 40},
		{Text: "This is a test", Start: 40, End: 80},
		{Text: "of the system.", Start: 80, End: 120},
	}
	chunks := drain(NewChunker(defaults()), raw)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != "Hello world." || chunks[0].Start != 0 || chunks[0].End != 40 {
		t.Errorf("chunk 0: %+v", chunks[0])
	}
	if chunks[1].Text != "This is a test of the system." || chunks[1].Start != 40 || chunks[1].End != 120 {
		t.Errorf("chunk 1: %+v", chunks[1])
	}
}

func TestChunkerEmptyInput(t *testing.T) {
	c := NewChunker(defaults())
	if _, ok := c.Flush(); ok {
		t.Error("flush on empty buffer emitted a chunk")
	}
}
