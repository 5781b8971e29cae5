// File: internal/usecase/materializer.go
package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
	"batch-transcription-service/internal/infra/metrics"
)

// NotProcessedMessage marks items the remote service silently dropped: no
// result record, no error record. Distinct from an explicit remote error so
// the diagnostic path stays distinguishable.
const NotProcessedMessage = "not processed by remote service"

// Materializer turns the remote output artifact into durable per-item
// results. It runs before the owning job flips to a terminal status, so a
// job is never observably completed without its results on disk.
type Materializer struct {
	jobRepo  repository.BatchJobRepository
	itemRepo repository.BatchItemRepository
	tm       repository.TransactionManager
	api      adapter.BatchAPI
	log      zerolog.Logger
}

func NewMaterializer(
	jobRepo repository.BatchJobRepository,
	itemRepo repository.BatchItemRepository,
	tm repository.TransactionManager,
	api adapter.BatchAPI,
	log zerolog.Logger,
) *Materializer {
	return &Materializer{
		jobRepo:  jobRepo,
		itemRepo: itemRepo,
		tm:       tm,
		api:      api,
		log:      log.With().Str("component", "materializer").Logger(),
	}
}

// Materialize downloads the consolidated results artifact, correlates each
// record to its item by customId, and settles every still-open item:
// completed with a transcript, failed with the remote error, or failed with
// NotProcessedMessage when no record arrived at all. Counters are then
// recomputed from the items table.
func (m *Materializer) Materialize(ctx context.Context, jobID, outputFileID string) error {
	records, err := m.api.DownloadResults(ctx, outputFileID)
	if err != nil {
		return err
	}

	byCustomID := make(map[string]adapter.BatchResult, len(records))
	for _, rec := range records {
		byCustomID[rec.CustomID] = rec
	}

	items, err := m.itemRepo.ListByJob(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}

	var completed, failed, missing int
	err = m.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		for _, it := range items {
			if it.Status.IsTerminal() {
				continue
			}
			rec, ok := byCustomID[it.CustomID]
			switch {
			case !ok:
				if err := m.itemRepo.MarkFailed(ctx, tx, it.ID, NotProcessedMessage); err != nil {
					return err
				}
				missing++
			case rec.Error != "":
				if err := m.itemRepo.MarkFailed(ctx, tx, it.ID, rec.Error); err != nil {
					return err
				}
				failed++
			default:
				if err := m.itemRepo.MarkCompleted(ctx, tx, it.ID, normalizeResult(rec)); err != nil {
					return err
				}
				completed++
			}
		}
		return m.jobRepo.RefreshCounts(ctx, tx, jobID)
	})
	if err != nil {
		return err
	}

	metrics.IncItemReconciled("completed", completed)
	metrics.IncItemReconciled("failed", failed)
	metrics.IncItemReconciled("missing", missing)
	m.log.Info().
		Str("job_id", jobID).
		Int("completed", completed).
		Int("failed", failed).
		Int("missing", missing).
		Msg("results materialized")
	return nil
}

// normalizeResult converts a remote result record into the stored
// transcript shape.
func normalizeResult(rec adapter.BatchResult) *model.Transcript {
	t := &model.Transcript{
		Text:     rec.Text,
		Language: rec.Language,
	}
	for _, s := range rec.Segments {
		t.Segments = append(t.Segments, model.Segment{Start: s.Start, End: s.End, Text: s.Text})
		if s.End > t.DurationSeconds {
			t.DurationSeconds = s.End
		}
	}
	if len(t.Segments) == 0 {
		t.Segments = model.FallbackSegments(t.Text)
	}
	return t
}
