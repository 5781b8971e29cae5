package model

import (
	"fmt"
	"time"
)

type BatchJobStatus string

const (
	BatchJobStatusPreparing  BatchJobStatus = "preparing"
	BatchJobStatusUploading  BatchJobStatus = "uploading"
	BatchJobStatusSubmitted  BatchJobStatus = "submitted"
	BatchJobStatusValidating BatchJobStatus = "validating"
	BatchJobStatusProcessing BatchJobStatus = "processing"
	BatchJobStatusCompleted  BatchJobStatus = "completed"
	BatchJobStatusFailed     BatchJobStatus = "failed"
	BatchJobStatusExpired    BatchJobStatus = "expired"
	BatchJobStatusCancelled  BatchJobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s BatchJobStatus) IsTerminal() bool {
	switch s {
	case BatchJobStatusCompleted, BatchJobStatusFailed, BatchJobStatusExpired, BatchJobStatusCancelled:
		return true
	}
	return false
}

// CompletionWindow is the external API's maximum turnaround commitment.
type CompletionWindow string

const (
	CompletionWindowFast     CompletionWindow = "fast"     // remote "24h"
	CompletionWindowExtended CompletionWindow = "extended" // remote "7d" where supported
)

// RemoteValue returns the wire value the external batch API expects.
func (w CompletionWindow) RemoteValue() string {
	if w == CompletionWindowExtended {
		return "7d"
	}
	return "24h"
}

// Duration is the upper bound used for completion estimates.
func (w CompletionWindow) Duration() time.Duration {
	if w == CompletionWindowExtended {
		return 7 * 24 * time.Hour
	}
	return 24 * time.Hour
}

// BatchJob is one submission of one or more audio items to the external
// asynchronous transcription API. It is the single source of truth for
// job-level status; item-level outcomes live on BatchItem.
type BatchJob struct {
	ID              string
	ExternalBatchID string // empty until the remote API accepts the manifest
	Status          BatchJobStatus
	Model           string
	Window          CompletionWindow
	TotalItems      int
	CompletedItems  int
	FailedItems     int
	Metadata        map[string]string
	ErrorMessage    string
	CreatedAt       time.Time
	SubmittedAt     *time.Time
	CompletedAt     *time.Time
}

// CanCancel reports whether a local cancel request is still permitted.
func (j *BatchJob) CanCancel() bool {
	switch j.Status {
	case BatchJobStatusPreparing, BatchJobStatusUploading, BatchJobStatusSubmitted, BatchJobStatusValidating:
		return true
	}
	return false
}

// ProgressPercent derives completion progress from the item counters.
func (j *BatchJob) ProgressPercent() int {
	if j.TotalItems == 0 {
		return 0
	}
	return (j.CompletedItems + j.FailedItems) * 100 / j.TotalItems
}

// EstimatedCompletion returns the latest moment the remote API promised
// results by, or nil when the job was never submitted.
func (j *BatchJob) EstimatedCompletion() *time.Time {
	if j.SubmittedAt == nil || j.Status.IsTerminal() {
		return nil
	}
	t := j.SubmittedAt.Add(j.Window.Duration())
	return &t
}

// ValidateCounts enforces completed + failed <= total.
func (j *BatchJob) ValidateCounts() error {
	if j.CompletedItems+j.FailedItems > j.TotalItems {
		return fmt.Errorf("job %s: item counts exceed total (%d+%d > %d)",
			j.ID, j.CompletedItems, j.FailedItems, j.TotalItems)
	}
	return nil
}

// MapRemoteStatus translates the external batch API's status vocabulary onto
// the local enum. Unknown remote values are treated as still processing so a
// new remote state can never regress or terminate a job by accident.
func MapRemoteStatus(remote string) BatchJobStatus {
	switch remote {
	case "validating", "in_progress", "finalizing":
		return BatchJobStatusProcessing
	case "completed":
		return BatchJobStatusCompleted
	case "failed":
		return BatchJobStatusFailed
	case "expired":
		return BatchJobStatusExpired
	case "cancelling", "cancelled":
		return BatchJobStatusCancelled
	default:
		return BatchJobStatusProcessing
	}
}
