package repository

import (
	"context"

	"batch-transcription-service/internal/domain/model"
)

type BatchItemRepository interface {
	Save(ctx context.Context, tx Tx, item *model.BatchItem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.BatchItem, error)
	ListByJob(ctx context.Context, tx Tx, jobID string) ([]*model.BatchItem, error)
	// MarkCompleted stores the transcription result and flips the item to
	// completed in one write.
	MarkCompleted(ctx context.Context, tx Tx, id string, result *model.Transcript) error
	// MarkFailed stores the failure reason and flips the item to failed.
	MarkFailed(ctx context.Context, tx Tx, id string, errMsg string) error
	// FailPending marks every still-pending item of the job as failed with
	// the given message, returning how many rows changed.
	FailPending(ctx context.Context, tx Tx, jobID string, errMsg string) (int, error)
}
