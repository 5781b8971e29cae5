// File: internal/usecase/chunk_uc.go
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
	"batch-transcription-service/internal/infra/metrics"
)

// ChunkConfig carries the tuning knobs of the on-demand path.
type ChunkConfig struct {
	ThresholdSeconds float64
	PartSeconds      float64
	PartTimeout      time.Duration
	DefaultModel     string
}

// ChunkUseCase runs on-demand transcriptions. Recordings over the chunking
// threshold are split into ordered parts and transcribed strictly
// sequentially with a checkpoint persisted after every part, so an
// interrupted item resumes at the first unprocessed part instead of
// reprocessing (and re-billing) completed ones.
type ChunkUseCase struct {
	repo        repository.ChunkItemRepository
	splitter    adapter.AudioSplitter
	transcriber adapter.Transcriber
	cfg         ChunkConfig
	log         zerolog.Logger

	mu    sync.Mutex
	stops map[string]bool
}

func NewChunkUseCase(
	repo repository.ChunkItemRepository,
	splitter adapter.AudioSplitter,
	transcriber adapter.Transcriber,
	cfg ChunkConfig,
	log zerolog.Logger,
) *ChunkUseCase {
	return &ChunkUseCase{
		repo:        repo,
		splitter:    splitter,
		transcriber: transcriber,
		cfg:         cfg,
		log:         log.With().Str("component", "chunk").Logger(),
		stops:       make(map[string]bool),
	}
}

// Create registers a pending item for the given audio file. Processing is
// started separately so callers decide where the work runs.
func (uc *ChunkUseCase) Create(ctx context.Context, originalName, sourcePath, transcriptionModel string) (*model.ChunkItem, error) {
	if sourcePath == "" {
		return nil, fmt.Errorf("%w: empty source path", domain.ErrInvalidArgument)
	}
	if transcriptionModel == "" {
		transcriptionModel = uc.cfg.DefaultModel
	}
	item := &model.ChunkItem{
		OriginalName: originalName,
		SourcePath:   sourcePath,
		Model:        transcriptionModel,
		Status:       model.ChunkItemStatusPending,
		Checkpoint:   model.NewCheckpoint(),
	}
	if err := uc.repo.Save(ctx, repository.NoTX, item); err != nil {
		return nil, err
	}
	metrics.IncChunkItem(string(item.Status))
	return item, nil
}

func (uc *ChunkUseCase) Get(ctx context.Context, id string) (*model.ChunkItem, error) {
	return uc.repo.FindByID(ctx, repository.NoTX, id)
}

func (uc *ChunkUseCase) List(ctx context.Context, limit int) ([]*model.ChunkItem, error) {
	return uc.repo.List(ctx, repository.NoTX, limit)
}

// Stop requests that processing of the item halt at the next part boundary.
// In-flight part transcription is never interrupted mid-call.
func (uc *ChunkUseCase) Stop(id string) {
	uc.mu.Lock()
	uc.stops[id] = true
	uc.mu.Unlock()
}

func (uc *ChunkUseCase) stopRequested(id string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	return uc.stops[id]
}

func (uc *ChunkUseCase) clearStop(id string) {
	uc.mu.Lock()
	delete(uc.stops, id)
	uc.mu.Unlock()
}

// Retry re-enters processing for a failed item. A retained checkpoint is
// honored, so only the parts after lastCompletedPartIndex run again.
func (uc *ChunkUseCase) Retry(ctx context.Context, id string) (*model.ChunkItem, error) {
	item, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if item.Status != model.ChunkItemStatusFailed {
		return nil, domain.ErrItemNotRetryable
	}
	return item, nil
}

// Process drives the item through its state machine synchronously. Run it
// on a worker; different items may process concurrently, parts of one item
// never do.
func (uc *ChunkUseCase) Process(ctx context.Context, id string) error {
	defer uc.clearStop(id)

	item, err := uc.repo.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return err
	}
	if item.Status == model.ChunkItemStatusCompleted {
		return nil
	}

	log := uc.log.With().Str("item_id", item.ID).Logger()

	cp := item.Checkpoint
	if err := cp.Validate(); err != nil {
		log.Warn().Err(err).Msg("stored checkpoint failed validation, restarting from the beginning")
		cp = model.NewCheckpoint()
	}

	duration, err := uc.splitter.Probe(ctx, item.SourcePath)
	if err != nil {
		return uc.fail(ctx, item, fmt.Errorf("probe: %w", err))
	}

	if duration <= uc.cfg.ThresholdSeconds && cp.NextPart() == 0 {
		return uc.processWhole(ctx, item, log)
	}
	return uc.processChunked(ctx, item, cp, log)
}

// processWhole is the single-shot path for recordings under the chunking
// threshold.
func (uc *ChunkUseCase) processWhole(ctx context.Context, item *model.ChunkItem, log zerolog.Logger) error {
	if err := uc.transition(ctx, item, model.ChunkItemStatusTranscribing); err != nil {
		return err
	}

	tctx, cancel := uc.partContext(ctx)
	started := time.Now()
	tr, err := uc.transcriber.Transcribe(tctx, item.SourcePath, item.Model)
	cancel()
	if err != nil {
		return uc.fail(ctx, item, err)
	}
	metrics.ObservePartLatency(time.Since(started).Seconds())

	if len(tr.Segments) == 0 {
		tr.Segments = model.FallbackSegments(tr.Text)
	}
	if err := uc.transition(ctx, item, model.ChunkItemStatusAssembling); err != nil {
		return err
	}
	if err := uc.repo.Complete(ctx, repository.NoTX, item.ID, tr); err != nil {
		return uc.fail(ctx, item, err)
	}
	metrics.IncChunkItem(string(model.ChunkItemStatusCompleted))
	log.Info().Float64("duration_seconds", tr.DurationSeconds).Msg("transcription completed")
	return nil
}

func (uc *ChunkUseCase) processChunked(ctx context.Context, item *model.ChunkItem, cp model.Checkpoint, log zerolog.Logger) error {
	// Splitting is never resumable: intermediate artifacts are not kept, so
	// it always re-runs from the original file.
	if err := uc.transition(ctx, item, model.ChunkItemStatusSplitting); err != nil {
		return err
	}
	parts, err := uc.splitter.Split(ctx, item.SourcePath, uc.cfg.PartSeconds)
	if err != nil {
		return uc.fail(ctx, item, fmt.Errorf("split: %w", err))
	}
	defer func() {
		if err := uc.splitter.Cleanup(parts); err != nil {
			log.Warn().Err(err).Msg("split artifact cleanup failed")
		}
	}()

	if err := uc.transition(ctx, item, model.ChunkItemStatusTranscribing); err != nil {
		return err
	}

	resumeAt := cp.NextPart()
	if resumeAt > 0 {
		if resumeAt > len(parts) {
			return uc.fail(ctx, item, fmt.Errorf("%w: checkpoint covers %d parts, split produced %d",
				domain.ErrCheckpointCorrupt, resumeAt, len(parts)))
		}
		metrics.AddResumedParts(resumeAt)
		log.Info().Int("resume_part", resumeAt).Int("total_parts", len(parts)).Msg("resuming from checkpoint")
	}

	var language string
	for i := resumeAt; i < len(parts); i++ {
		if uc.stopRequested(item.ID) {
			log.Info().Int("next_part", i).Msg("stop requested, halting at part boundary")
			return uc.fail(ctx, item, fmt.Errorf("processing stopped before part %d", i))
		}

		tctx, cancel := uc.partContext(ctx)
		started := time.Now()
		tr, err := uc.transcriber.Transcribe(tctx, parts[i].Path, item.Model)
		cancel()
		if err != nil {
			metrics.IncChunkPart("failed")
			// the checkpoint written after part i-1 is retained so a retry
			// resumes here instead of at part 0
			return uc.fail(ctx, item, fmt.Errorf("part %d: %w", i, err))
		}
		elapsed := time.Since(started)
		metrics.IncChunkPart("completed")
		metrics.ObservePartLatency(elapsed.Seconds())
		if tr.Language != "" {
			language = tr.Language
		}

		cp = cp.Append(model.PartResult{
			Text:                  tr.Text,
			ProcessingTimeSeconds: elapsed.Seconds(),
			Segments:              tr.Segments,
			PartDurationSeconds:   parts[i].DurationSeconds,
		})
		// persisted before part i+1 starts; dying after this write loses
		// no work
		if err := uc.repo.SaveCheckpoint(ctx, repository.NoTX, item.ID, cp); err != nil {
			return uc.fail(ctx, item, fmt.Errorf("checkpoint after part %d: %w", i, err))
		}
		log.Debug().Int("part", i).Dur("took", elapsed).Msg("part transcribed")
	}

	if err := uc.transition(ctx, item, model.ChunkItemStatusAssembling); err != nil {
		return err
	}
	result := cp.Assemble()
	result.Language = language
	if err := uc.repo.Complete(ctx, repository.NoTX, item.ID, &result); err != nil {
		return uc.fail(ctx, item, err)
	}
	metrics.IncChunkItem(string(model.ChunkItemStatusCompleted))
	log.Info().Int("parts", len(parts)).Float64("duration_seconds", result.DurationSeconds).Msg("chunked transcription completed")
	return nil
}

func (uc *ChunkUseCase) partContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if uc.cfg.PartTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, uc.cfg.PartTimeout)
}

func (uc *ChunkUseCase) transition(ctx context.Context, item *model.ChunkItem, to model.ChunkItemStatus) error {
	if item.Status == to {
		return nil
	}
	if !model.ValidChunkTransition(item.Status, to) {
		return fmt.Errorf("%w: chunk item %s cannot move %s -> %s",
			domain.ErrInvalidArgument, item.ID, item.Status, to)
	}
	if err := uc.repo.UpdateStatus(ctx, repository.NoTX, item.ID, to, ""); err != nil {
		return err
	}
	item.Status = to
	return nil
}

// fail flips the item to failed but leaves the stored checkpoint alone, so
// Retry resumes instead of starting over.
func (uc *ChunkUseCase) fail(ctx context.Context, item *model.ChunkItem, cause error) error {
	if err := uc.repo.UpdateStatus(ctx, repository.NoTX, item.ID, model.ChunkItemStatusFailed, cause.Error()); err != nil {
		uc.log.Error().Err(err).Str("item_id", item.ID).Msg("persisting failed chunk status")
	}
	item.Status = model.ChunkItemStatusFailed
	metrics.IncChunkItem(string(model.ChunkItemStatusFailed))
	uc.log.Warn().Err(cause).Str("item_id", item.ID).Msg("chunk processing failed")
	return cause
}
