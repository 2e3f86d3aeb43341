package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// NormalizationError indicates the source audio could not be decoded or
// resampled. It is fatal for the job's transcription step; per-segment
// isolation does not apply to it.
type NormalizationError struct {
	Err error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize audio: %v", e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

// Result is the assembled transcript for one audio file.
type Result struct {
	Header   string  // pass mode, chunk count, measured duration
	Body     string  // non-empty segment texts joined by blank lines, temporal order
	Duration float64 // seconds
	Chunked  bool
	Chunks   int // number of segments when chunked
}

// Text renders the transcript as delivered to the recipient.
func (r Result) Text() string {
	return r.Header + "\n\n" + r.Body
}

// Orchestrator decides whole-file vs. chunked transcription, runs the
// inference engine per segment with failure isolation, and assembles the
// transcript. Segments are processed strictly in temporal order.
type Orchestrator struct {
	log            *slog.Logger
	norm           Normalizer
	engine         Engine
	segmentSeconds int
	chunkThreshold int
}

// NewOrchestrator builds an Orchestrator. Durations above chunkThreshold
// seconds are split into segmentSeconds windows.
func NewOrchestrator(logger *slog.Logger, norm Normalizer, engine Engine, segmentSeconds, chunkThreshold int) *Orchestrator {
	return &Orchestrator{
		log:            logger,
		norm:           norm,
		engine:         engine,
		segmentSeconds: segmentSeconds,
		chunkThreshold: chunkThreshold,
	}
}

// Transcribe processes the audio at audioPath. A failed normalization is
// returned as *NormalizationError; every failure past that point is
// captured inside the Result as an inline marker instead of an error.
func (o *Orchestrator) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	wavPath, duration, err := o.norm.Normalize(ctx, audioPath)
	if err != nil {
		return Result{}, &NormalizationError{Err: err}
	}
	defer func() {
		if err := os.Remove(wavPath); err != nil {
			o.log.Warn("working wav cleanup failed", "path", wavPath, "err", err)
		}
	}()

	if duration > float64(o.chunkThreshold) {
		return o.transcribeChunked(ctx, wavPath, duration)
	}
	return o.transcribeSingle(ctx, wavPath, duration), nil
}

func (o *Orchestrator) transcribeSingle(ctx context.Context, wavPath string, duration float64) Result {
	parts := o.runSegments(ctx, []string{wavPath}, false)
	return Result{
		Header:   fmt.Sprintf("(Single-pass — duration %.1fs)", duration),
		Body:     joinParts(parts),
		Duration: duration,
	}
}

func (o *Orchestrator) transcribeChunked(ctx context.Context, wavPath string, duration float64) (Result, error) {
	segments, err := o.norm.Segment(ctx, wavPath, o.segmentSeconds)
	if err != nil {
		// Splitting is part of the normalization precondition.
		return Result{}, &NormalizationError{Err: err}
	}
	parts := o.runSegments(ctx, segments, true)
	return Result{
		Header:   fmt.Sprintf("(Chunked — %d chunks, original duration %.1fs)", len(segments), duration),
		Body:     joinParts(parts),
		Duration: duration,
		Chunked:  true,
		Chunks:   len(segments),
	}, nil
}

// runSegments invokes the engine per segment in temporal order. A failing
// segment contributes an inline error marker at its position rather than
// aborting its siblings. When removeAfter is set, each segment file is
// deleted as soon as its result is captured so temp storage never
// accumulates across segments.
func (o *Orchestrator) runSegments(ctx context.Context, segments []string, removeAfter bool) []string {
	parts := make([]string, 0, len(segments))
	for i, seg := range segments {
		text, err := o.engine.Transcribe(ctx, seg)
		if err != nil {
			o.log.Warn("segment inference failed", "segment", i+1, "err", err)
			text = fmt.Sprintf("[ERROR transcribing chunk %d: %v]", i+1, err)
		}
		parts = append(parts, text)
		if removeAfter {
			if err := os.Remove(seg); err != nil {
				o.log.Warn("segment cleanup failed", "path", seg, "err", err)
			}
		}
	}
	return parts
}

func joinParts(parts []string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
