package model

import "strings"

// Segment is one timed span of transcript text. Start and End are seconds
// from the beginning of whatever the segment is stored against: a part's own
// start for checkpointed part results, the full recording for assembled
// transcripts.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the normalized transcription payload stored on a completed
// item.
type Transcript struct {
	Text            string    `json:"text"`
	Language        string    `json:"language,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Segments        []Segment `json:"segments,omitempty"`
}

// estimatedWordsPerSecond drives the fallback segmentation when a transcript
// carries no timing information at all.
const estimatedWordsPerSecond = 2.5

// FallbackSegments splits plain text into sentence-ish segments with
// estimated timings so downstream consumers always receive a non-empty
// segment list.
func FallbackSegments(text string) []Segment {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var pieces []string
	var b strings.Builder
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			if s := strings.TrimSpace(b.String()); s != "" {
				pieces = append(pieces, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		pieces = append(pieces, s)
	}

	segments := make([]Segment, 0, len(pieces))
	offset := 0.0
	for _, p := range pieces {
		words := len(strings.Fields(p))
		if words == 0 {
			continue
		}
		dur := float64(words) / estimatedWordsPerSecond
		segments = append(segments, Segment{Start: offset, End: offset + dur, Text: p})
		offset += dur
	}
	return segments
}
