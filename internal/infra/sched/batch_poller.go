package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
	"batch-transcription-service/internal/infra/metrics"
	rds "batch-transcription-service/internal/infra/redis"
	"batch-transcription-service/internal/infra/worker"
	"batch-transcription-service/internal/usecase"
)

// MinPollInterval is the floor for the reconciliation timer.
const MinPollInterval = 5 * time.Second

const leaderKey = "batch:poller:leader"

// PollerStatus is the public view of the poller's lifecycle.
type PollerStatus struct {
	IsPolling      bool `json:"isPolling"`
	ActiveJobCount int  `json:"activeJobs"`
}

// BatchPoller reconciles active batch jobs against the external API on a
// recurring timer. One instance is owned by the composition root; tests
// construct their own. Within a tick, jobs are polled concurrently and in
// isolation; PollOnce and timer ticks are serialized by a mutex so the same
// job is never reconciled by two passes at once.
type BatchPoller struct {
	jobRepo      repository.BatchJobRepository
	itemRepo     repository.BatchItemRepository
	api          adapter.BatchAPI
	materializer *usecase.Materializer
	notifier     adapter.Notifier
	pool         *worker.Pool
	locker       rds.Locker
	log          zerolog.Logger

	lifeMu   sync.Mutex // guards running/cancel/done
	running  bool
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}

	pollMu sync.Mutex // serializes PollOnce with timer ticks

	// jobs whose remote status said completed but carried no output file;
	// they get one more tick before their pending items are declared failed
	emptyMu         sync.Mutex
	emptyOutputSeen map[string]bool
}

func NewBatchPoller(
	jobRepo repository.BatchJobRepository,
	itemRepo repository.BatchItemRepository,
	api adapter.BatchAPI,
	materializer *usecase.Materializer,
	notifier adapter.Notifier,
	pool *worker.Pool,
	locker rds.Locker,
	log zerolog.Logger,
) *BatchPoller {
	return &BatchPoller{
		jobRepo:         jobRepo,
		itemRepo:        itemRepo,
		api:             api,
		materializer:    materializer,
		notifier:        notifier,
		pool:            pool,
		locker:          locker,
		log:             log.With().Str("component", "poller").Logger(),
		emptyOutputSeen: make(map[string]bool),
	}
}

// Start launches the recurring timer. Starting an already-running poller is
// a logged no-op, not an error.
func (p *BatchPoller) Start(ctx context.Context, interval time.Duration) error {
	if interval < MinPollInterval {
		return fmt.Errorf("%w: poll interval %s below minimum %s", domain.ErrInvalidArgument, interval, MinPollInterval)
	}

	p.lifeMu.Lock()
	defer p.lifeMu.Unlock()
	if p.running {
		p.log.Warn().Msg("poller already running, start ignored")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.running = true
	p.interval = interval
	p.cancel = cancel
	p.done = make(chan struct{})

	go p.loop(runCtx, interval)
	p.log.Info().Dur("interval", interval).Msg("poller started")
	return nil
}

func (p *BatchPoller) loop(ctx context.Context, interval time.Duration) {
	defer close(p.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.PollOnce(ctx); err != nil {
				p.log.Error().Err(err).Msg("poll tick failed")
			}
		}
	}
}

// Stop halts the timer and waits for an in-flight tick to finish.
func (p *BatchPoller) Stop() {
	p.lifeMu.Lock()
	if !p.running {
		p.lifeMu.Unlock()
		return
	}
	p.running = false
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.lifeMu.Unlock()

	cancel()
	<-done
	p.log.Info().Msg("poller stopped")
}

// Status reports whether the timer is active and how many jobs are
// currently awaiting reconciliation.
func (p *BatchPoller) Status(ctx context.Context) (PollerStatus, error) {
	p.lifeMu.Lock()
	running := p.running
	p.lifeMu.Unlock()

	active, err := p.jobRepo.ListActive(ctx, repository.NoTX)
	if err != nil {
		return PollerStatus{IsPolling: running}, err
	}
	return PollerStatus{IsPolling: running, ActiveJobCount: len(active)}, nil
}

// PollOnce runs one full reconciliation pass synchronously. It shares the
// code path of a timer tick and is serialized against it.
func (p *BatchPoller) PollOnce(ctx context.Context) error {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	metrics.IncPollTick()

	if p.locker != nil {
		ttl := p.interval
		if ttl < MinPollInterval {
			ttl = MinPollInterval
		}
		token, err := p.locker.TryLock(ctx, leaderKey, 2*ttl)
		if err != nil {
			if errors.Is(err, domain.ErrLockNotAcquired) {
				p.log.Warn().Msg("another instance holds the poller lock, skipping tick")
				return nil
			}
			return err
		}
		defer func() {
			if err := p.locker.Unlock(ctx, leaderKey, token); err != nil {
				p.log.Warn().Err(err).Msg("releasing poller lock")
			}
		}()
	}

	jobs, err := p.jobRepo.ListActive(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetActiveJobs(len(jobs))
	if len(jobs) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for _, job := range jobs {
		job := job
		wg.Add(1)
		task := func(ctx context.Context) error {
			defer wg.Done()
			if err := p.reconcileJob(ctx, job); err != nil {
				metrics.IncPollJobError()
				p.log.Error().Err(err).Str("job_id", job.ID).Msg("job reconciliation failed")
			}
			return nil
		}
		if p.pool != nil {
			if err := p.pool.Submit(task); err != nil {
				// queue saturated: run inline rather than skip the job
				go func() { _ = task(ctx) }()
			}
		} else {
			go func() { _ = task(ctx) }()
		}
	}
	wg.Wait()
	return nil
}

// reconcileJob fetches the remote state of one job and applies it locally.
// Errors leave the job at its last known status for the next tick; only an
// explicit remote terminal status ever makes the job terminal.
func (p *BatchPoller) reconcileJob(ctx context.Context, job *model.BatchJob) error {
	if job.ExternalBatchID == "" {
		// submission still in flight (or it crashed before the create call
		// and will be marked failed by its own path)
		return nil
	}

	remote, err := p.api.RetrieveBatch(ctx, job.ExternalBatchID)
	if err != nil {
		return err
	}

	mapped := model.MapRemoteStatus(remote.Status)
	log := p.log.With().Str("job_id", job.ID).Str("remote_status", remote.Status).Logger()

	if !mapped.IsTerminal() {
		if job.Status != mapped && mapped == model.BatchJobStatusProcessing {
			job.Status = model.BatchJobStatusProcessing
			return p.jobRepo.Save(ctx, repository.NoTX, job)
		}
		return nil
	}

	switch mapped {
	case model.BatchJobStatusCompleted:
		return p.settleCompleted(ctx, job, remote, log)
	default:
		return p.settleFailed(ctx, job, mapped, remote, log)
	}
}

// settleCompleted materializes results before flipping the job status, so a
// terminal event is only ever emitted once results are durable.
func (p *BatchPoller) settleCompleted(ctx context.Context, job *model.BatchJob, remote *adapter.RemoteBatch, log zerolog.Logger) error {
	if remote.OutputFileID == "" {
		// grant one extra tick: the output artifact sometimes lags the
		// status flip on the remote side
		if !p.markEmptyOutput(job.ID) {
			log.Warn().Msg("remote batch completed without output file, re-checking next tick")
			return nil
		}
		log.Warn().Msg("remote batch completed without output file twice, failing pending items")
		if _, err := p.itemRepo.FailPending(ctx, repository.NoTX, job.ID, usecase.NotProcessedMessage); err != nil {
			return err
		}
	} else {
		if err := p.materializer.Materialize(ctx, job.ID, remote.OutputFileID); err != nil {
			return fmt.Errorf("materialize: %w", err)
		}
	}
	p.clearEmptyOutput(job.ID)

	if err := p.jobRepo.RefreshCounts(ctx, repository.NoTX, job.ID); err != nil {
		return err
	}
	return p.finalize(ctx, job.ID, model.BatchJobStatusCompleted, "")
}

// settleFailed handles remote failed/expired/cancelled: every item still
// pending is failed with a synthetic non-delivery message so the per-item
// counts stay consistent with the terminal job state.
func (p *BatchPoller) settleFailed(ctx context.Context, job *model.BatchJob, status model.BatchJobStatus, remote *adapter.RemoteBatch, log zerolog.Logger) error {
	msg := fmt.Sprintf("batch %s before item was processed", status)
	if n, err := p.itemRepo.FailPending(ctx, repository.NoTX, job.ID, msg); err != nil {
		return err
	} else if n > 0 {
		log.Info().Int("items", n).Msg("failed undelivered items")
	}
	if err := p.jobRepo.RefreshCounts(ctx, repository.NoTX, job.ID); err != nil {
		return err
	}
	return p.finalize(ctx, job.ID, status, remote.ErrorMessage)
}

// finalize flips the job to its terminal status and emits the terminal
// event. Terminal jobs are excluded from ListActive, so re-observation (and
// a duplicate event) cannot happen on later ticks.
func (p *BatchPoller) finalize(ctx context.Context, jobID string, status model.BatchJobStatus, errMsg string) error {
	job, err := p.jobRepo.FindByID(ctx, repository.NoTX, jobID)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return nil
	}

	now := time.Now()
	job.Status = status
	job.ErrorMessage = errMsg
	job.CompletedAt = &now
	if err := job.ValidateCounts(); err != nil {
		return err
	}
	if err := p.jobRepo.Save(ctx, repository.NoTX, job); err != nil {
		return err
	}
	metrics.IncBatchJob(string(status))

	if p.notifier != nil {
		ev := adapter.TerminalEvent{
			JobID:          job.ID,
			Status:         string(status),
			TotalItems:     job.TotalItems,
			CompletedItems: job.CompletedItems,
			FailedItems:    job.FailedItems,
			Timestamp:      now,
		}
		if err := p.notifier.NotifyTerminal(ctx, ev); err != nil {
			p.log.Warn().Err(err).Str("job_id", job.ID).Msg("terminal notification failed")
		}
	}
	p.log.Info().
		Str("job_id", job.ID).
		Str("status", string(status)).
		Int("completed", job.CompletedItems).
		Int("failed", job.FailedItems).
		Msg("job reached terminal status")
	return nil
}

func (p *BatchPoller) markEmptyOutput(jobID string) (seenBefore bool) {
	p.emptyMu.Lock()
	defer p.emptyMu.Unlock()
	seen := p.emptyOutputSeen[jobID]
	p.emptyOutputSeen[jobID] = true
	return seen
}

func (p *BatchPoller) clearEmptyOutput(jobID string) {
	p.emptyMu.Lock()
	delete(p.emptyOutputSeen, jobID)
	p.emptyMu.Unlock()
}
