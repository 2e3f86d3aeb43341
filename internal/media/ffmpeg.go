package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"audiototext/internal/common"
)

// FFmpeg normalizes and segments audio by shelling out to ffmpeg/ffprobe.
// All intermediate files are written to tmpDir and owned by the caller.
type FFmpeg struct {
	tmpDir string
}

// New creates an FFmpeg helper writing to tmpDir, or os.TempDir() if empty.
func New(tmpDir string) *FFmpeg {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	return &FFmpeg{tmpDir: tmpDir}
}

// ProbeDuration returns the duration of the audio at path in seconds.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (float64, error) {
	// ffprobe -v error -show_entries format=duration -of default=noprint_wrappers=1:nokey=1 input
	cmd := exec.CommandContext(ctx, common.FFprobeExecutable,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return parseProbeDuration(stdout.String())
}

// Normalize converts the source audio to a canonical mono 16kHz WAV in the
// temp dir and returns its path together with the measured duration in
// seconds. The caller owns the returned file and must remove it.
func (f *FFmpeg) Normalize(ctx context.Context, src string) (string, float64, error) {
	out := filepath.Join(f.tmpDir, common.WorkingWAVPrefix+randomToken()+".wav")

	// ffmpeg -y -i input -ac 1 -ar 16000 -f wav output
	cmd := exec.CommandContext(ctx, common.FFmpegExecutable,
		"-y", "-i", src,
		"-ac", "1", "-ar", "16000",
		"-f", "wav",
		out,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(out)
		return "", 0, fmt.Errorf("ffmpeg normalize: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	dur, err := f.ProbeDuration(ctx, out)
	if err != nil {
		_ = os.Remove(out)
		return "", 0, err
	}
	return out, dur, nil
}

// Segment slices the WAV at wavPath into fixed windows of segmentSeconds
// (the last window may be shorter) and returns the chunk paths in temporal
// order. The caller owns the returned files.
func (f *FFmpeg) Segment(ctx context.Context, wavPath string, segmentSeconds int) ([]string, error) {
	if segmentSeconds <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %d", segmentSeconds)
	}
	token := randomToken()
	pattern := filepath.Join(f.tmpDir, common.SegmentPrefix+token+"_%03d.wav")

	// ffmpeg -y -i input -f segment -segment_time N -c copy pattern
	cmd := exec.CommandContext(ctx, common.FFmpegExecutable,
		"-y", "-i", wavPath,
		"-f", "segment",
		"-segment_time", strconv.Itoa(segmentSeconds),
		"-c", "copy",
		pattern,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg segment: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	glob := filepath.Join(f.tmpDir, common.SegmentPrefix+token+"_*.wav")
	paths, err := filepath.Glob(glob)
	if err != nil {
		return nil, fmt.Errorf("glob segments: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no segments for %s", wavPath)
	}
	// %03d indices sort lexically, which is temporal order.
	sort.Strings(paths)
	return paths, nil
}

func parseProbeDuration(out string) (float64, error) {
	s := strings.TrimSpace(out)
	if s == "" || s == "N/A" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	dur, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration %q: %w", s, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("negative duration %f", dur)
	}
	return dur, nil
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
