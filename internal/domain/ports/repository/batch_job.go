package repository

import (
	"context"

	"batch-transcription-service/internal/domain/model"
)

type BatchJobRepository interface {
	Save(ctx context.Context, tx Tx, job *model.BatchJob) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BatchJob, error)
	// List returns the most recent jobs first.
	List(ctx context.Context, tx Tx, limit int) ([]*model.BatchJob, error)
	// ListActive returns every job whose status is not terminal.
	ListActive(ctx context.Context, tx Tx) ([]*model.BatchJob, error)
	// RefreshCounts recomputes completed/failed counters from the items
	// table so the counts can never drift from the underlying rows.
	RefreshCounts(ctx context.Context, tx Tx, jobID string) error
	// Delete removes the job; items are removed by cascade.
	Delete(ctx context.Context, tx Tx, id string) error
}
