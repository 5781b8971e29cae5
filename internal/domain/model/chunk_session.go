package model

import "time"

type ChunkItemStatus string

const (
	ChunkItemStatusPending      ChunkItemStatus = "pending"
	ChunkItemStatusSplitting    ChunkItemStatus = "splitting"
	ChunkItemStatusTranscribing ChunkItemStatus = "transcribing"
	ChunkItemStatusAssembling   ChunkItemStatus = "assembling"
	ChunkItemStatusCompleted    ChunkItemStatus = "completed"
	ChunkItemStatusFailed       ChunkItemStatus = "failed"
)

func (s ChunkItemStatus) IsTerminal() bool {
	return s == ChunkItemStatusCompleted || s == ChunkItemStatusFailed
}

// ValidChunkTransition enforces the allowed edges of the on-demand item
// state machine. Failed items may re-enter transcribing (retry resumes from
// the retained checkpoint) or splitting (when no checkpoint survived).
// Non-terminal in-flight states may also fall back to splitting: a process
// that dies mid-item leaves the row in splitting/transcribing/assembling,
// and recovery always re-runs the non-resumable split step first.
func ValidChunkTransition(from, to ChunkItemStatus) bool {
	switch from {
	case ChunkItemStatusPending:
		return to == ChunkItemStatusSplitting || to == ChunkItemStatusTranscribing || to == ChunkItemStatusFailed
	case ChunkItemStatusSplitting:
		return to == ChunkItemStatusTranscribing || to == ChunkItemStatusFailed
	case ChunkItemStatusTranscribing:
		return to == ChunkItemStatusAssembling || to == ChunkItemStatusSplitting || to == ChunkItemStatusFailed
	case ChunkItemStatusAssembling:
		return to == ChunkItemStatusCompleted || to == ChunkItemStatusSplitting || to == ChunkItemStatusFailed
	case ChunkItemStatusFailed:
		return to == ChunkItemStatusSplitting || to == ChunkItemStatusTranscribing
	default:
		return false
	}
}

// ChunkItem is one on-demand (non-batch) transcription request. Oversized
// audio is split into ordered parts and transcribed sequentially with a
// persisted checkpoint after every part, so an interrupted item resumes at
// the first unprocessed part.
type ChunkItem struct {
	ID           string
	OriginalName string
	SourcePath   string
	Model        string
	Status       ChunkItemStatus
	Checkpoint   Checkpoint
	Result       *Transcript
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}
