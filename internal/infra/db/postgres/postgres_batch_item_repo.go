package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/repository"
)

var _ repository.BatchItemRepository = (*batchItemRepo)(nil)

type batchItemRepo struct {
	pool *pgxpool.Pool
}

func NewBatchItemRepo(pool *pgxpool.Pool) *batchItemRepo {
	return &batchItemRepo{pool: pool}
}

const batchItemColumns = `id, batch_job_id, custom_id, original_name, source_location,
size_bytes, status, result, error_message, created_at, completed_at`

func (r *batchItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.BatchItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	result, err := marshalTranscript(item.Result)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO batch_items (` + batchItemColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (id) DO UPDATE SET
  status        = EXCLUDED.status,
  result        = EXCLUDED.result,
  error_message = EXCLUDED.error_message,
  completed_at  = COALESCE(batch_items.completed_at, EXCLUDED.completed_at);`

	_, err = execSQL(ctx, r.pool, tx, q,
		item.ID, item.BatchJobID, item.CustomID, item.OriginalName, item.SourceLocation,
		item.SizeBytes, item.Status, result, item.ErrorMessage, item.CreatedAt, item.CompletedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *batchItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchItem, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+batchItemColumns+` FROM batch_items WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatchItem(row)
}

func (r *batchItemRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.BatchItem, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+batchItemColumns+` FROM batch_items WHERE batch_job_id=$1 ORDER BY custom_id;`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.BatchItem
	for rows.Next() {
		it, err := scanBatchItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// MarkCompleted only touches items that have not already reached a terminal
// status, preserving the transition-exactly-once invariant.
func (r *batchItemRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, result *model.Transcript) error {
	payload, err := marshalTranscript(result)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE batch_items SET status='completed', result=$2, error_message='', completed_at=NOW()
WHERE id=$1 AND status NOT IN ('completed','failed');`
	_, err = execSQL(ctx, r.pool, tx, q, id, payload)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *batchItemRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string) error {
	const q = `
UPDATE batch_items SET status='failed', error_message=$2, completed_at=NOW()
WHERE id=$1 AND status NOT IN ('completed','failed');`
	_, err := execSQL(ctx, r.pool, tx, q, id, errMsg)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *batchItemRepo) FailPending(ctx context.Context, tx repository.Tx, jobID string, errMsg string) (int, error) {
	const q = `
UPDATE batch_items SET status='failed', error_message=$2, completed_at=NOW()
WHERE batch_job_id=$1 AND status IN ('pending','processing');`
	tag, err := execSQL(ctx, r.pool, tx, q, jobID, errMsg)
	if err != nil {
		return 0, domain.ErrOperationFailed
	}
	return int(tag.RowsAffected()), nil
}

func scanBatchItem(row rowScanner) (*model.BatchItem, error) {
	it := &model.BatchItem{}
	var result []byte
	err := row.Scan(
		&it.ID, &it.BatchJobID, &it.CustomID, &it.OriginalName, &it.SourceLocation,
		&it.SizeBytes, &it.Status, &result, &it.ErrorMessage, &it.CreatedAt, &it.CompletedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	if len(result) > 0 {
		var t model.Transcript
		if err := json.Unmarshal(result, &t); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		it.Result = &t
	}
	return it, nil
}

func marshalTranscript(t *model.Transcript) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}
