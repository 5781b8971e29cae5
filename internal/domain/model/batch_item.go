package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type BatchItemStatus string

const (
	BatchItemStatusPending    BatchItemStatus = "pending"
	BatchItemStatusProcessing BatchItemStatus = "processing"
	BatchItemStatusCompleted  BatchItemStatus = "completed"
	BatchItemStatusFailed     BatchItemStatus = "failed"
)

func (s BatchItemStatus) IsTerminal() bool {
	return s == BatchItemStatusCompleted || s == BatchItemStatusFailed
}

// BatchItem is one audio file within a batch job. Items transition
// pending -> {completed, failed} exactly once; a retry creates a new item in
// a new job instead of mutating history.
type BatchItem struct {
	ID             string
	BatchJobID     string
	CustomID       string // correlation key embedded in the remote manifest
	OriginalName   string
	SourceLocation string // fetchable URL or path for the audio bytes
	SizeBytes      int64
	Status         BatchItemStatus
	Result         *Transcript
	ErrorMessage   string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// CustomID builds the manifest correlation key for item `index` of job
// `jobID`. The format is a fixed convention relied upon for result
// correlation even if the local item id is lost.
func CustomID(jobID string, index int) string {
	return fmt.Sprintf("%s_%d", jobID, index)
}

// ParseCustomID splits a manifest correlation key back into job id and item
// ordinal. The ordinal is everything after the last separator, so the parse
// holds even for job ids that themselves contain underscores.
func ParseCustomID(customID string) (jobID string, index int, err error) {
	i := strings.LastIndex(customID, "_")
	if i <= 0 || i == len(customID)-1 {
		return "", 0, fmt.Errorf("malformed custom id %q", customID)
	}
	n, err := strconv.Atoi(customID[i+1:])
	if err != nil || n < 0 {
		return "", 0, fmt.Errorf("malformed custom id ordinal %q", customID)
	}
	return customID[:i], n, nil
}
