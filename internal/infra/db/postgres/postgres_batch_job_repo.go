package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/oklog/ulid/v2"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/repository"
)

var _ repository.BatchJobRepository = (*batchJobRepo)(nil)

type batchJobRepo struct {
	pool *pgxpool.Pool
}

func NewBatchJobRepo(pool *pgxpool.Pool) *batchJobRepo {
	return &batchJobRepo{pool: pool}
}

const batchJobColumns = `id, external_batch_id, status, model, completion_window,
total_items, completed_items, failed_items, metadata, error_message,
created_at, submitted_at, completed_at`

func (r *batchJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.BatchJob) error {
	if job.ID == "" {
		job.ID = ulid.Make().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return domain.ErrInvalidArgument
	}

	const q = `
INSERT INTO batch_jobs (` + batchJobColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  external_batch_id = EXCLUDED.external_batch_id,
  status            = EXCLUDED.status,
  total_items       = EXCLUDED.total_items,
  completed_items   = EXCLUDED.completed_items,
  failed_items      = EXCLUDED.failed_items,
  error_message     = EXCLUDED.error_message,
  submitted_at      = COALESCE(batch_jobs.submitted_at, EXCLUDED.submitted_at),
  completed_at      = COALESCE(batch_jobs.completed_at, EXCLUDED.completed_at);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, nullStr(job.ExternalBatchID), job.Status, job.Model, job.Window,
		job.TotalItems, job.CompletedItems, job.FailedItems, meta, job.ErrorMessage,
		job.CreatedAt, job.SubmittedAt, job.CompletedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *batchJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchJob, error) {
	row, err := pickRow(ctx, r.pool, tx,
		`SELECT `+batchJobColumns+` FROM batch_jobs WHERE id=$1;`, id)
	if err != nil {
		return nil, err
	}
	return scanBatchJob(row)
}

func (r *batchJobRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.BatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+batchJobColumns+` FROM batch_jobs ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatchJobs(rows)
}

func (r *batchJobRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.BatchJob, error) {
	rows, err := pickRows(ctx, r.pool, tx,
		`SELECT `+batchJobColumns+` FROM batch_jobs
WHERE status NOT IN ('completed','failed','expired','cancelled')
ORDER BY created_at;`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBatchJobs(rows)
}

// RefreshCounts derives the counters from the items table instead of
// incrementing them ad hoc, so they cannot drift under crash-and-resume.
func (r *batchJobRepo) RefreshCounts(ctx context.Context, tx repository.Tx, jobID string) error {
	const q = `
UPDATE batch_jobs SET
  completed_items = (SELECT COUNT(*) FROM batch_items WHERE batch_job_id=$1 AND status='completed'),
  failed_items    = (SELECT COUNT(*) FROM batch_items WHERE batch_job_id=$1 AND status='failed')
WHERE id=$1;`
	_, err := execSQL(ctx, r.pool, tx, q, jobID)
	if err != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *batchJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	tag, err := execSQL(ctx, r.pool, tx, `DELETE FROM batch_jobs WHERE id=$1;`, id)
	if err != nil {
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatchJob(row rowScanner) (*model.BatchJob, error) {
	j := &model.BatchJob{}
	var (
		externalID *string
		meta       []byte
	)
	err := row.Scan(
		&j.ID, &externalID, &j.Status, &j.Model, &j.Window,
		&j.TotalItems, &j.CompletedItems, &j.FailedItems, &meta, &j.ErrorMessage,
		&j.CreatedAt, &j.SubmittedAt, &j.CompletedAt,
	)
	if err != nil {
		return nil, translateScanErr(err)
	}
	if externalID != nil {
		j.ExternalBatchID = *externalID
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Metadata); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return j, nil
}

func scanBatchJobs(rows interface {
	rowScanner
	Next() bool
	Err() error
}) ([]*model.BatchJob, error) {
	var out []*model.BatchJob
	for rows.Next() {
		j, err := scanBatchJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
