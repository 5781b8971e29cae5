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

var _ repository.ChunkItemRepository = (*chunkItemRepo)(nil)

type chunkItemRepo struct {
	pool *pgxpool.Pool
}

func NewChunkItemRepo(pool *pgxpool.Pool) *chunkItemRepo {
	return &chunkItemRepo{pool: pool}
}

const chunkItemColumns = `id, original_name, source_path, model, status,
last_completed_part_index, part_results, result, error_message,
created_at, updated_at, completed_at`

func (r *chunkItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.ChunkItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	item.UpdatedAt = time.Now()

	parts, err := json.Marshal(item.Checkpoint.PartResults)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	result, err := marshalTranscript(item.Result)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO chunk_items (` + chunkItemColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
  status                    = EXCLUDED.status,
  last_completed_part_index = EXCLUDED.last_completed_part_index,
  part_results              = EXCLUDED.part_results,
  result                    = EXCLUDED.result,
  error_message             = EXCLUDED.error_message,
  updated_at                = EXCLUDED.updated_at,
  completed_at              = COALESCE(chunk_items.completed_at, EXCLUDED.completed_at);`

	_, err = execSQL(ctx, r.pool, tx, q,
		item.ID, item.OriginalName, item.SourcePath, item.Model, item.Status,
		item.Checkpoint.LastCompletedPartIndex, parts, result, item.ErrorMessage,
		item.CreatedAt, item.UpdatedAt, item.CompletedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *chunkItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ChunkItem, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+chunkItemColumns+` FROM chunk_items WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanChunkItem(row)
}

func (r *chunkItemRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.ChunkItem, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+chunkItemColumns+` FROM chunk_items ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.ChunkItem
	for rows.Next() {
		it, err := scanChunkItem(rows)
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

func (r *chunkItemRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.ChunkItemStatus, errMsg string) error {
	const q = `UPDATE chunk_items SET status=$2, error_message=$3, updated_at=NOW() WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, errMsg)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveCheckpoint writes the part index and part results in one statement;
// partial checkpoint writes are impossible at the row level.
func (r *chunkItemRepo) SaveCheckpoint(ctx context.Context, tx repository.Tx, id string, cp model.Checkpoint) error {
	if err := cp.Validate(); err != nil {
		return domain.ErrCheckpointCorrupt
	}
	parts, err := json.Marshal(cp.PartResults)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE chunk_items SET last_completed_part_index=$2, part_results=$3, updated_at=NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, cp.LastCompletedPartIndex, parts)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Complete clears the resume fields in the same statement that stores the
// assembled transcript; the checkpoint has fulfilled its purpose.
func (r *chunkItemRepo) Complete(ctx context.Context, tx repository.Tx, id string, result *model.Transcript) error {
	payload, err := marshalTranscript(result)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
UPDATE chunk_items SET status='completed', result=$2, error_message='',
  last_completed_part_index=-1, part_results='[]'::jsonb,
  updated_at=NOW(), completed_at=NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, payload)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanChunkItem(row rowScanner) (*model.ChunkItem, error) {
	it := &model.ChunkItem{}
	var (
		parts  []byte
		result []byte
	)
	err := row.Scan(
		&it.ID, &it.OriginalName, &it.SourcePath, &it.Model, &it.Status,
		&it.Checkpoint.LastCompletedPartIndex, &parts, &result, &it.ErrorMessage,
		&it.CreatedAt, &it.UpdatedAt, &it.CompletedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	if len(parts) > 0 {
		if err := json.Unmarshal(parts, &it.Checkpoint.PartResults); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
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
