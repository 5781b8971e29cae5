// File: internal/usecase/submission_uc.go
package usecase

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
	"batch-transcription-service/internal/infra/metrics"
)

// SubmitItem is one audio file handed to Submit. Model is optional and
// falls back to the submission-level model.
type SubmitItem struct {
	OriginalName string
	Data         []byte
	Model        string
}

type SubmitOptions struct {
	Model    string
	Window   model.CompletionWindow
	Metadata map[string]string
}

// SubmitReceipt is what the caller gets back once the remote batch exists.
type SubmitReceipt struct {
	JobID       string
	TotalItems  int
	Model       string
	Window      model.CompletionWindow
	FileMapping []FileMapping
}

// FileMapping ties an uploaded file name to its manifest correlation key.
type FileMapping struct {
	OriginalName string `json:"originalName"`
	CustomID     string `json:"customId"`
	ItemID       string `json:"itemId"`
}

// SubmissionUseCase owns the write path of batch jobs: create, cancel and
// delete. Polling and result materialization mutate jobs elsewhere.
type SubmissionUseCase struct {
	jobRepo  repository.BatchJobRepository
	itemRepo repository.BatchItemRepository
	tm       repository.TransactionManager
	api      adapter.BatchAPI
	store    adapter.ObjectStore
	notifier adapter.Notifier

	defaultModel  string
	defaultWindow model.CompletionWindow
	maxFileBytes  int64
	log           zerolog.Logger
}

func NewSubmissionUseCase(
	jobRepo repository.BatchJobRepository,
	itemRepo repository.BatchItemRepository,
	tm repository.TransactionManager,
	api adapter.BatchAPI,
	store adapter.ObjectStore,
	notifier adapter.Notifier,
	defaultModel string,
	defaultWindow model.CompletionWindow,
	maxFileBytes int64,
	log zerolog.Logger,
) *SubmissionUseCase {
	if defaultWindow == "" {
		defaultWindow = model.CompletionWindowFast
	}
	return &SubmissionUseCase{
		jobRepo:       jobRepo,
		itemRepo:      itemRepo,
		tm:            tm,
		api:           api,
		store:         store,
		notifier:      notifier,
		defaultModel:  defaultModel,
		defaultWindow: defaultWindow,
		maxFileBytes:  maxFileBytes,
		log:           log.With().Str("component", "submission").Logger(),
	}
}

// Submit validates every item up front, persists the job and its items,
// uploads the audio, then creates the remote batch. Validation failures
// reject the whole submission before any row is written or any external
// call is made.
func (uc *SubmissionUseCase) Submit(ctx context.Context, items []SubmitItem, opts SubmitOptions) (*SubmitReceipt, error) {
	started := time.Now()
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: no files in submission", domain.ErrInvalidArgument)
	}
	for i, it := range items {
		if len(it.Data) == 0 {
			return nil, fmt.Errorf("%w: file %d (%s)", domain.ErrEmptyFile, i+1, it.OriginalName)
		}
		if int64(len(it.Data)) > uc.maxFileBytes {
			return nil, fmt.Errorf("%w: file %d (%s) is %d bytes, limit %d",
				domain.ErrFileTooLarge, i+1, it.OriginalName, len(it.Data), uc.maxFileBytes)
		}
	}

	jobModel := opts.Model
	if jobModel == "" {
		jobModel = uc.defaultModel
	}
	window := opts.Window
	if window == "" {
		window = uc.defaultWindow
	}
	if window != model.CompletionWindowFast && window != model.CompletionWindowExtended {
		return nil, fmt.Errorf("%w: unknown completion window %q", domain.ErrInvalidArgument, window)
	}

	job := &model.BatchJob{
		Status:     model.BatchJobStatusPreparing,
		Model:      jobModel,
		Window:     window,
		TotalItems: len(items),
		Metadata:   opts.Metadata,
	}

	batchItems := make([]*model.BatchItem, 0, len(items))
	err := uc.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.jobRepo.Save(ctx, tx, job); err != nil {
			return err
		}
		for i, it := range items {
			bi := &model.BatchItem{
				BatchJobID:   job.ID,
				CustomID:     model.CustomID(job.ID, i),
				OriginalName: it.OriginalName,
				SizeBytes:    int64(len(it.Data)),
				Status:       model.BatchItemStatusPending,
			}
			if err := uc.itemRepo.Save(ctx, tx, bi); err != nil {
				return err
			}
			batchItems = append(batchItems, bi)
		}
		return nil
	})
	if err != nil {
		metrics.ObserveSubmitLatency(time.Since(started).Milliseconds(), false)
		return nil, err
	}

	log := uc.log.With().Str("job_id", job.ID).Logger()

	if err := uc.advance(ctx, job, model.BatchJobStatusUploading); err != nil {
		return nil, uc.failSubmission(ctx, job, err, started)
	}
	for i, it := range items {
		name := fmt.Sprintf("%s/%s", job.ID, batchItems[i].CustomID)
		url, err := uc.store.Put(ctx, name, bytes.NewReader(it.Data), int64(len(it.Data)), "application/octet-stream")
		if err != nil {
			return nil, uc.failSubmission(ctx, job, fmt.Errorf("upload %s: %w", it.OriginalName, err), started)
		}
		batchItems[i].SourceLocation = url
		if err := uc.itemRepo.Save(ctx, repository.NoTX, batchItems[i]); err != nil {
			return nil, uc.failSubmission(ctx, job, err, started)
		}
		metrics.AddSubmitBytes(int64(len(it.Data)))
	}

	manifest := make([]adapter.ManifestRequest, 0, len(items))
	for i, it := range items {
		m := it.Model
		if m == "" {
			m = jobModel
		}
		manifest = append(manifest, adapter.ManifestRequest{
			CustomID: batchItems[i].CustomID,
			Model:    m,
			AudioURL: batchItems[i].SourceLocation,
		})
	}

	externalID, err := uc.api.CreateBatch(ctx, manifest, window.RemoteValue())
	if err != nil {
		return nil, uc.failSubmission(ctx, job, err, started)
	}

	now := time.Now()
	job.ExternalBatchID = externalID
	job.SubmittedAt = &now
	job.Status = model.BatchJobStatusSubmitted
	if err := uc.jobRepo.Save(ctx, repository.NoTX, job); err != nil {
		return nil, uc.failSubmission(ctx, job, err, started)
	}

	metrics.IncBatchJob(string(model.BatchJobStatusSubmitted))
	metrics.ObserveSubmitLatency(time.Since(started).Milliseconds(), true)
	log.Info().Str("external_batch_id", externalID).Int("items", len(items)).Msg("batch submitted")

	receipt := &SubmitReceipt{
		JobID:      job.ID,
		TotalItems: job.TotalItems,
		Model:      job.Model,
		Window:     job.Window,
	}
	for i, bi := range batchItems {
		receipt.FileMapping = append(receipt.FileMapping, FileMapping{
			OriginalName: items[i].OriginalName,
			CustomID:     bi.CustomID,
			ItemID:       bi.ID,
		})
	}
	return receipt, nil
}

func (uc *SubmissionUseCase) advance(ctx context.Context, job *model.BatchJob, to model.BatchJobStatus) error {
	job.Status = to
	return uc.jobRepo.Save(ctx, repository.NoTX, job)
}

// failSubmission marks the job failed with the triggering error. Uploaded
// blobs are not rolled back; deletion of the failed job cleans them up.
func (uc *SubmissionUseCase) failSubmission(ctx context.Context, job *model.BatchJob, cause error, started time.Time) error {
	now := time.Now()
	job.Status = model.BatchJobStatusFailed
	job.ErrorMessage = cause.Error()
	job.CompletedAt = &now
	if _, err := uc.itemRepo.FailPending(ctx, repository.NoTX, job.ID, "submission failed: "+cause.Error()); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("failing pending items after submission error")
	}
	if err := uc.jobRepo.RefreshCounts(ctx, repository.NoTX, job.ID); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("refreshing counts after submission error")
	}
	if err := uc.jobRepo.Save(ctx, repository.NoTX, job); err != nil {
		uc.log.Error().Err(err).Str("job_id", job.ID).Msg("persisting failed job status")
	}
	metrics.IncBatchJob(string(model.BatchJobStatusFailed))
	metrics.ObserveSubmitLatency(time.Since(started).Milliseconds(), false)
	uc.log.Warn().Err(cause).Str("job_id", job.ID).Msg("submission failed")
	return cause
}

// Cancel is best-effort remotely and authoritative locally. The remote
// cancel call may fail without blocking the local terminal transition.
func (uc *SubmissionUseCase) Cancel(ctx context.Context, jobID string) (*model.BatchJob, error) {
	job, err := uc.jobRepo.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return nil, domain.ErrJobTerminal
	}
	if !job.CanCancel() {
		return nil, domain.ErrJobNotCancellable
	}

	if job.ExternalBatchID != "" {
		if err := uc.api.CancelBatch(ctx, job.ExternalBatchID); err != nil {
			uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("remote cancel failed, cancelling locally anyway")
		}
	}

	if _, err := uc.itemRepo.FailPending(ctx, repository.NoTX, job.ID, "job cancelled before item was processed"); err != nil {
		return nil, err
	}
	if err := uc.jobRepo.RefreshCounts(ctx, repository.NoTX, job.ID); err != nil {
		return nil, err
	}
	job, err = uc.jobRepo.FindByID(ctx, repository.NoTX, job.ID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	job.Status = model.BatchJobStatusCancelled
	job.CompletedAt = &now
	if err := uc.jobRepo.Save(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	metrics.IncBatchJob(string(model.BatchJobStatusCancelled))

	uc.emitTerminal(ctx, job)
	return job, nil
}

// Delete removes a terminal job, its items (by cascade) and, best-effort,
// the uploaded audio blobs.
func (uc *SubmissionUseCase) Delete(ctx context.Context, jobID string) error {
	job, err := uc.jobRepo.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if !job.Status.IsTerminal() {
		return domain.ErrJobActive
	}

	items, err := uc.itemRepo.ListByJob(ctx, repository.NoTX, job.ID)
	if err != nil {
		return err
	}
	for _, it := range items {
		if it.SourceLocation == "" {
			continue
		}
		if err := uc.store.Delete(ctx, it.SourceLocation); err != nil {
			uc.log.Warn().Err(err).Str("job_id", job.ID).Str("item_id", it.ID).Msg("blob cleanup failed")
		}
	}
	return uc.jobRepo.Delete(ctx, repository.NoTX, job.ID)
}

func (uc *SubmissionUseCase) List(ctx context.Context, limit int) ([]*model.BatchJob, error) {
	return uc.jobRepo.List(ctx, repository.NoTX, limit)
}

func (uc *SubmissionUseCase) Status(ctx context.Context, jobID string) (*model.BatchJob, error) {
	return uc.jobRepo.FindByID(ctx, repository.NoTX, jobID)
}

func (uc *SubmissionUseCase) Items(ctx context.Context, jobID string) ([]*model.BatchItem, error) {
	if _, err := uc.jobRepo.FindByID(ctx, repository.NoTX, jobID); err != nil {
		return nil, err
	}
	return uc.itemRepo.ListByJob(ctx, repository.NoTX, jobID)
}

func (uc *SubmissionUseCase) emitTerminal(ctx context.Context, job *model.BatchJob) {
	if uc.notifier == nil {
		return
	}
	ev := adapter.TerminalEvent{
		JobID:          job.ID,
		Status:         string(job.Status),
		TotalItems:     job.TotalItems,
		CompletedItems: job.CompletedItems,
		FailedItems:    job.FailedItems,
		Timestamp:      time.Now(),
	}
	if err := uc.notifier.NotifyTerminal(ctx, ev); err != nil {
		uc.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal notification failed")
	}
}
