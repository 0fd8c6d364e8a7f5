package processors

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"mediarag/config"
)

// RecognitionResult is what a recognizer reports once the segment stream has
// been fully emitted.
type RecognitionResult struct {
	Language        string
	DurationSeconds float64
}

// Recognizer streams raw timed segments for an audio file through emit. The
// stream can be very long; callers must not buffer it whole. An empty model
// selects the recognizer's configured default.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath, model string, emit func(RawSegment) error) (RecognitionResult, error)
}

// WhisperASR transcribes through an OpenAI-compatible audio endpoint,
// requesting the verbose response so each segment carries timing.
type WhisperASR struct {
	cli          *openai.Client
	defaultModel string
}

func NewWhisperASR(cli *openai.Client, defaultModel string) *WhisperASR {
	return &WhisperASR{cli: cli, defaultModel: defaultModel}
}

func (w *WhisperASR) Transcribe(ctx context.Context, audioPath, model string, emit func(RawSegment) error) (RecognitionResult, error) {
	if model == "" {
		model = w.defaultModel
	}
	resp, err := w.cli.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return RecognitionResult{}, fmt.Errorf("transcription request: %w", err)
	}

	if len(resp.Segments) == 0 {
		// Some compatible servers return only flat text.
		text := strings.TrimSpace(resp.Text)
		if text == "" {
			return RecognitionResult{}, fmt.Errorf("empty transcription result")
		}
		dur := resp.Duration
		if dur == 0 {
			dur, _ = ProbeDuration(ctx, audioPath)
		}
		if err := emit(RawSegment{Text: text, Start: 0, End: dur}); err != nil {
			return RecognitionResult{}, err
		}
		return RecognitionResult{Language: resp.Language, DurationSeconds: dur}, nil
	}

	for _, seg := range resp.Segments {
		if err := emit(RawSegment{Text: seg.Text, Start: seg.Start, End: seg.End}); err != nil {
			return RecognitionResult{}, err
		}
	}
	return RecognitionResult{Language: resp.Language, DurationSeconds: resp.Duration}, nil
}

// MockASR fabricates placeholder segments from the file duration, for
// development without a recognizer.
type MockASR struct{}

func (MockASR) Transcribe(ctx context.Context, audioPath, _ string, emit func(RawSegment) error) (RecognitionResult, error) {
	dur, err := ProbeDuration(ctx, audioPath)
	if err != nil {
		return RecognitionResult{}, err
	}
	const segLen = 15.0
	for start := 0.0; start < dur; start += segLen {
		end := start + segLen
		if end > dur {
			end = dur
		}
		seg := RawSegment{Text: fmt.Sprintf("Placeholder transcript from %.0fs to %.0fs.", start, end), Start: start, End: end}
		if err := emit(seg); err != nil {
			return RecognitionResult{}, err
		}
	}
	return RecognitionResult{Language: "en", DurationSeconds: dur}, nil
}

// NewRecognizer picks the recognizer implementation from configuration.
func NewRecognizer(cfg *config.Config, cli *openai.Client) (Recognizer, error) {
	switch cfg.ASRProvider {
	case "openai":
		return NewWhisperASR(cli, cfg.WhisperModel), nil
	case "mock":
		return MockASR{}, nil
	default:
		return nil, fmt.Errorf("unknown ASR provider %q", cfg.ASRProvider)
	}
}
