package processors

import "context"

// AudioExtractor canonicalizes media into recognizer input and reports
// durations. It exists as an interface so stage logic can be exercised
// without ffmpeg on the machine.
type AudioExtractor interface {
	Extract(ctx context.Context, inputPath, audioOut string) error
	Duration(ctx context.Context, path string) (float64, error)
}

// FFmpegExtractor shells out to ffmpeg/ffprobe.
type FFmpegExtractor struct{}

func (FFmpegExtractor) Extract(ctx context.Context, inputPath, audioOut string) error {
	return ExtractAudio(ctx, inputPath, audioOut)
}

func (FFmpegExtractor) Duration(ctx context.Context, path string) (float64, error) {
	return ProbeDuration(ctx, path)
}
