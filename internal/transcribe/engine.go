package transcribe

import "context"

// Engine is the speech-to-text inference collaborator. Implementations are
// stateless and reentrant; errors are transient inference failures.
type Engine interface {
	// Transcribe converts the audio file at path into plain text.
	Transcribe(ctx context.Context, path string) (string, error)
}

// Normalizer is the audio decode/resample/segment collaborator.
type Normalizer interface {
	// Normalize converts src to a canonical working WAV and returns its
	// path plus the measured duration in seconds. The caller owns the file.
	Normalize(ctx context.Context, src string) (string, float64, error)
	// Segment slices the working WAV into fixed windows of segmentSeconds,
	// returning chunk paths in temporal order. The caller owns the files.
	Segment(ctx context.Context, wavPath string, segmentSeconds int) ([]string, error)
}
