package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
)

var _ adapter.Transcriber = (*CLITranscriber)(nil)

// CLITranscriber shells out to a local whisper binary for on-demand
// transcription. One invocation per file; segment timestamps in the output
// are relative to the given file's own start.
type CLITranscriber struct {
	whisperPath string
	workDir     string
	device      string
	runner      commandRunner
}

func NewCLITranscriber(whisperPath, workDir string) *CLITranscriber {
	return &CLITranscriber{
		whisperPath: whisperPath,
		workDir:     workDir,
		runner:      &execRunner{},
	}
}

// whisperOutput matches the CLI's json output format.
type whisperOutput struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

func (t *CLITranscriber) Transcribe(ctx context.Context, path string, transcriptionModel string) (*model.Transcript, error) {
	outDir, err := os.MkdirTemp(t.workDir, "whisper-")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	args := []string{
		path,
		"--output_format", "json",
		"--output_dir", outDir,
	}
	if transcriptionModel != "" {
		args = append(args, "--model", transcriptionModel)
	}
	if t.device != "" {
		args = append(args, "--device", t.device)
	}

	res, err := t.runner.Run(ctx, t.whisperPath, args...)
	if err != nil {
		return nil, fmt.Errorf("whisper %s (exit=%d): %w: %s",
			filepath.Base(path), res.ExitCode, err, tail(res.Stderr))
	}

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	raw, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse whisper output: %w", err)
	}

	tr := &model.Transcript{
		Text:     strings.TrimSpace(out.Text),
		Language: out.Language,
	}
	for _, s := range out.Segments {
		tr.Segments = append(tr.Segments, model.Segment{
			Start: s.Start,
			End:   s.End,
			Text:  strings.TrimSpace(s.Text),
		})
		if s.End > tr.DurationSeconds {
			tr.DurationSeconds = s.End
		}
	}
	return tr, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 400 {
		return s
	}
	return "..." + s[len(s)-400:]
}
