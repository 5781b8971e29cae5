package model

import "fmt"

// PartResult is the persisted outcome of one completed chunk. Segment
// timestamps are stored relative to the part's own start; offset
// reconstruction happens at assembly time, never in storage, so replaying a
// checkpoint is safe no matter how often processing is interrupted.
type PartResult struct {
	Text                  string    `json:"text"`
	ProcessingTimeSeconds float64   `json:"processing_time_seconds"`
	Segments              []Segment `json:"segments,omitempty"`
	PartDurationSeconds   float64   `json:"part_duration_seconds"`
}

// Checkpoint is the resume state of a chunked on-demand transcription.
// LastCompletedPartIndex is -1 until the first part finishes.
type Checkpoint struct {
	LastCompletedPartIndex int          `json:"last_completed_part_index"`
	PartResults            []PartResult `json:"part_results"`
}

// NewCheckpoint returns the state before any part has completed.
func NewCheckpoint() Checkpoint {
	return Checkpoint{LastCompletedPartIndex: -1}
}

// Validate enforces len(PartResults) == LastCompletedPartIndex + 1. A
// checkpoint loaded from storage that fails this check is corrupt and must
// not be resumed from.
func (c Checkpoint) Validate() error {
	if c.LastCompletedPartIndex < -1 {
		return fmt.Errorf("checkpoint: invalid last completed part index %d", c.LastCompletedPartIndex)
	}
	if len(c.PartResults) != c.LastCompletedPartIndex+1 {
		return fmt.Errorf("checkpoint: %d part results for last completed index %d",
			len(c.PartResults), c.LastCompletedPartIndex)
	}
	return nil
}

// Append records the result of part LastCompletedPartIndex+1.
func (c Checkpoint) Append(r PartResult) Checkpoint {
	return Checkpoint{
		LastCompletedPartIndex: c.LastCompletedPartIndex + 1,
		PartResults:            append(append([]PartResult(nil), c.PartResults...), r),
	}
}

// NextPart is the index processing should resume at.
func (c Checkpoint) NextPart() int {
	return c.LastCompletedPartIndex + 1
}

// Assemble reconstructs a single transcript from the ordered part results.
// Each part's segment timestamps are shifted by the cumulative audio
// duration of all prior parts (not their processing time). When no part
// produced timed segments the text-only fallback segmentation is used.
func (c Checkpoint) Assemble() Transcript {
	var (
		texts    []string
		segments []Segment
		offset   float64
	)
	for _, p := range c.PartResults {
		if t := p.Text; t != "" {
			texts = append(texts, t)
		}
		for _, s := range p.Segments {
			segments = append(segments, Segment{
				Start: offset + s.Start,
				End:   offset + s.End,
				Text:  s.Text,
			})
		}
		offset += p.PartDurationSeconds
	}

	full := joinParts(texts)
	if len(segments) == 0 {
		segments = FallbackSegments(full)
	}
	return Transcript{
		Text:            full,
		DurationSeconds: offset,
		Segments:        segments,
	}
}

func joinParts(texts []string) string {
	switch len(texts) {
	case 0:
		return ""
	case 1:
		return texts[0]
	}
	out := texts[0]
	for _, t := range texts[1:] {
		out += " " + t
	}
	return out
}
