package whisper

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"batch-transcription-service/internal/domain/ports/adapter"
)

var _ adapter.AudioSplitter = (*FFmpegSplitter)(nil)

// FFmpegSplitter cuts audio into fixed-length parts with ffmpeg's segment
// muxer. Split artifacts live in a temp dir under workDir and are removed by
// Cleanup; splitting always re-runs from the original file.
type FFmpegSplitter struct {
	ffmpegPath  string
	ffprobePath string
	workDir     string
	runner      commandRunner
}

func NewFFmpegSplitter(ffmpegPath, ffprobePath, workDir string) *FFmpegSplitter {
	return &FFmpegSplitter{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		workDir:     workDir,
		runner:      &execRunner{},
	}
}

func (s *FFmpegSplitter) Probe(ctx context.Context, path string) (float64, error) {
	res, err := s.runner.Run(ctx, s.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s (exit=%d): %w", path, res.ExitCode, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(res.Stdout), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned unparseable duration %q", res.Stdout)
	}
	return dur, nil
}

func (s *FFmpegSplitter) Split(ctx context.Context, path string, partSeconds float64) ([]adapter.AudioPart, error) {
	if partSeconds <= 0 {
		return nil, fmt.Errorf("part seconds must be positive, got %f", partSeconds)
	}
	total, err := s.Probe(ctx, path)
	if err != nil {
		return nil, err
	}

	tempDir, err := os.MkdirTemp(s.workDir, "split-")
	if err != nil {
		return nil, fmt.Errorf("create split dir: %w", err)
	}

	pattern := filepath.Join(tempDir, "part_%04d"+filepath.Ext(path))
	res, err := s.runner.Run(ctx, s.ffmpegPath,
		"-hide_banner", "-nostdin",
		"-i", path,
		"-f", "segment",
		"-segment_time", strconv.FormatFloat(partSeconds, 'f', -1, 64),
		"-c", "copy",
		"-reset_timestamps", "1",
		pattern)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, fmt.Errorf("ffmpeg split %s (exit=%d): %w", path, res.ExitCode, err)
	}

	entries, err := os.ReadDir(tempDir)
	if err != nil {
		_ = os.RemoveAll(tempDir)
		return nil, err
	}

	var parts []adapter.AudioPart
	offset := 0.0
	for i, e := range entries {
		if e.IsDir() {
			continue
		}
		dur := partSeconds
		if remaining := total - offset; remaining < dur {
			dur = remaining
		}
		parts = append(parts, adapter.AudioPart{
			Index:           i,
			Path:            filepath.Join(tempDir, e.Name()),
			StartSeconds:    offset,
			DurationSeconds: dur,
		})
		offset += dur
	}
	if len(parts) == 0 {
		_ = os.RemoveAll(tempDir)
		return nil, fmt.Errorf("ffmpeg produced no parts for %s", path)
	}
	return parts, nil
}

func (s *FFmpegSplitter) Cleanup(parts []adapter.AudioPart) error {
	if len(parts) == 0 {
		return nil
	}
	// All parts of one split share a temp dir.
	return os.RemoveAll(filepath.Dir(parts[0].Path))
}
