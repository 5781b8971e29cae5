package adapter

import (
	"context"

	"batch-transcription-service/internal/domain/model"
)

// AudioPart is one time-bounded slice produced by splitting an oversized
// recording.
type AudioPart struct {
	Index           int
	Path            string
	StartSeconds    float64
	DurationSeconds float64
}

// AudioSplitter cuts a recording into ordered parts. Splitting is not
// resumable: intermediate artifacts are not persisted, so it always re-runs
// from the original file.
type AudioSplitter interface {
	// Probe returns the total duration of the audio in seconds.
	Probe(ctx context.Context, path string) (float64, error)
	// Split produces parts of at most partSeconds each, in order.
	Split(ctx context.Context, path string, partSeconds float64) ([]AudioPart, error)
	// Cleanup removes the split artifacts of a previous Split call.
	Cleanup(parts []AudioPart) error
}

// Transcriber turns one audio file (a whole recording or a single part) into
// a transcript. Segment timestamps are relative to the given file's own
// start.
type Transcriber interface {
	Transcribe(ctx context.Context, path string, transcriptionModel string) (*model.Transcript, error)
}
