package transcribe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeNormalizer struct {
	dir          string
	duration     float64
	normalizeErr error
	segmentErr   error

	workingPath  string
	segmentPaths []string
}

func (f *fakeNormalizer) Normalize(ctx context.Context, src string) (string, float64, error) {
	if f.normalizeErr != nil {
		return "", 0, f.normalizeErr
	}
	path := filepath.Join(f.dir, "working.wav")
	if err := os.WriteFile(path, []byte("wav"), 0o644); err != nil {
		return "", 0, err
	}
	f.workingPath = path
	return path, f.duration, nil
}

func (f *fakeNormalizer) Segment(ctx context.Context, wavPath string, segmentSeconds int) ([]string, error) {
	if f.segmentErr != nil {
		return nil, f.segmentErr
	}
	count := int(math.Ceil(f.duration / float64(segmentSeconds)))
	paths := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p := filepath.Join(f.dir, fmt.Sprintf("chunk_%03d.wav", i))
		if err := os.WriteFile(p, []byte("chunk"), 0o644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	f.segmentPaths = paths
	return paths, nil
}

type fakeEngine struct {
	mu     sync.Mutex
	calls  []string
	texts  []string
	errAt  map[int]error
	sleeps []time.Duration
}

func (e *fakeEngine) Transcribe(ctx context.Context, path string) (string, error) {
	e.mu.Lock()
	idx := len(e.calls)
	e.calls = append(e.calls, path)
	e.mu.Unlock()
	if idx < len(e.sleeps) {
		time.Sleep(e.sleeps[idx])
	}
	if err, ok := e.errAt[idx]; ok {
		return "", err
	}
	if idx < len(e.texts) {
		return e.texts[idx], nil
	}
	return fmt.Sprintf("text-%d", idx), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestTranscribe_SinglePassAtThreshold(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 40.0}
	eng := &fakeEngine{texts: []string{"hello there"}}
	o := NewOrchestrator(testLogger(), norm, eng, 20, 40)

	res, err := o.Transcribe(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Chunked {
		t.Fatalf("duration == threshold should take the single-pass branch")
	}
	if res.Header != "(Single-pass — duration 40.0s)" {
		t.Fatalf("header = %q", res.Header)
	}
	if res.Body != "hello there" {
		t.Fatalf("body = %q", res.Body)
	}
	if len(eng.calls) != 1 || eng.calls[0] != norm.workingPath {
		t.Fatalf("engine should see the working wav once, got %v", eng.calls)
	}
	if _, err := os.Stat(norm.workingPath); !os.IsNotExist(err) {
		t.Fatalf("working wav should be removed, stat err = %v", err)
	}
	if got := res.Text(); got != res.Header+"\n\n"+res.Body {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTranscribe_Chunked90sProducesFiveChunks(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 90.0}
	eng := &fakeEngine{texts: []string{"one", "two", "three", "four", "five"}}
	o := NewOrchestrator(testLogger(), norm, eng, 20, 40)

	res, err := o.Transcribe(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !res.Chunked || res.Chunks != 5 {
		t.Fatalf("expected 5 chunks, got chunked=%v chunks=%d", res.Chunked, res.Chunks)
	}
	if res.Header != "(Chunked — 5 chunks, original duration 90.0s)" {
		t.Fatalf("header = %q", res.Header)
	}
	if res.Body != "one\n\ntwo\n\nthree\n\nfour\n\nfive" {
		t.Fatalf("body = %q", res.Body)
	}
	// Each segment file must be deleted right after its result is captured.
	for _, p := range norm.segmentPaths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("segment %s should be removed, stat err = %v", p, err)
		}
	}
	if _, err := os.Stat(norm.workingPath); !os.IsNotExist(err) {
		t.Fatalf("working wav should be removed, stat err = %v", err)
	}
}

func TestTranscribe_SegmentOrderSurvivesLatencyVariance(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 60.0}
	eng := &fakeEngine{
		texts:  []string{"first", "second", "third"},
		sleeps: []time.Duration{30 * time.Millisecond, 1 * time.Millisecond, 15 * time.Millisecond},
	}
	o := NewOrchestrator(testLogger(), norm, eng, 20, 40)

	res, err := o.Transcribe(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Body != "first\n\nsecond\n\nthird" {
		t.Fatalf("body order broken: %q", res.Body)
	}
	for i, p := range eng.calls {
		if p != norm.segmentPaths[i] {
			t.Fatalf("segment %d processed out of temporal order: %v", i, eng.calls)
		}
	}
}

func TestTranscribe_OneFailingSegmentBecomesMarker(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 100.0}
	eng := &fakeEngine{
		texts: []string{"a", "b", "", "d", "e"},
		errAt: map[int]error{2: errors.New("gpu fell over")},
	}
	o := NewOrchestrator(testLogger(), norm, eng, 20, 40)

	res, err := o.Transcribe(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	parts := strings.Split(res.Body, "\n\n")
	if len(parts) != 5 {
		t.Fatalf("expected 5 positions, got %d: %q", len(parts), res.Body)
	}
	if parts[2] != "[ERROR transcribing chunk 3: gpu fell over]" {
		t.Fatalf("marker mismatch: %q", parts[2])
	}
	if parts[0] != "a" || parts[4] != "e" {
		t.Fatalf("sibling segments should keep real text: %v", parts)
	}
	// The failing segment's file is still cleaned up.
	for _, p := range norm.segmentPaths {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("segment %s should be removed", p)
		}
	}
}

func TestTranscribe_EmptySegmentTextIsDropped(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 60.0}
	eng := &fakeEngine{texts: []string{"a", "", "c"}}
	o := NewOrchestrator(testLogger(), norm, eng, 20, 40)

	res, err := o.Transcribe(context.Background(), "in.mp3")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.Body != "a\n\nc" {
		t.Fatalf("body = %q", res.Body)
	}
}

func TestTranscribe_NormalizeFailureIsFatal(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), normalizeErr: errors.New("codec unknown")}
	o := NewOrchestrator(testLogger(), norm, &fakeEngine{}, 20, 40)

	_, err := o.Transcribe(context.Background(), "in.mp3")
	var nerr *NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
}

func TestTranscribe_SegmentFailureIsFatalAndCleansWorkingFile(t *testing.T) {
	norm := &fakeNormalizer{dir: t.TempDir(), duration: 90.0, segmentErr: errors.New("disk full")}
	o := NewOrchestrator(testLogger(), norm, &fakeEngine{}, 20, 40)

	_, err := o.Transcribe(context.Background(), "in.mp3")
	var nerr *NormalizationError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected NormalizationError, got %v", err)
	}
	if _, err := os.Stat(norm.workingPath); !os.IsNotExist(err) {
		t.Fatalf("working wav should be removed even on the error path")
	}
}
