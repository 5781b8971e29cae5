package repository

import (
	"context"

	"batch-transcription-service/internal/domain/model"
)

type ChunkItemRepository interface {
	Save(ctx context.Context, tx Tx, item *model.ChunkItem) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.ChunkItem, error)
	List(ctx context.Context, tx Tx, limit int) ([]*model.ChunkItem, error)
	// UpdateStatus changes only the lifecycle status (and error message for
	// failures).
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.ChunkItemStatus, errMsg string) error
	// SaveCheckpoint persists lastCompletedPartIndex and partResults
	// together in a single atomic write; this is the resume point.
	SaveCheckpoint(ctx context.Context, tx Tx, id string, cp model.Checkpoint) error
	// Complete stores the assembled transcript, clears the checkpoint and
	// flips the item to completed in one write.
	Complete(ctx context.Context, tx Tx, id string, result *model.Transcript) error
}
