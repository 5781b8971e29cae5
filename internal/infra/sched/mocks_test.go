//go:build !integration

package sched

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

type memJobRepo struct {
	mu    sync.Mutex
	jobs  map[string]*model.BatchJob
	order []string
	items *memItemRepo
	seq   int
}

func newMemJobRepo(items *memItemRepo) *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.BatchJob), items: items}
}

var _ repository.BatchJobRepository = (*memJobRepo)(nil)

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.BatchJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == "" {
		m.seq++
		job.ID = fmt.Sprintf("job-%d", m.seq)
	}
	if _, ok := m.jobs[job.ID]; !ok {
		m.order = append(m.order, job.ID)
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BatchJob
	for _, id := range m.order {
		if len(out) >= limit {
			break
		}
		cp := *m.jobs[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memJobRepo) ListActive(ctx context.Context, tx repository.Tx) ([]*model.BatchJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BatchJob
	for _, id := range m.order {
		if j := m.jobs[id]; !j.Status.IsTerminal() {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobRepo) RefreshCounts(ctx context.Context, tx repository.Tx, jobID string) error {
	items, _ := m.items.ListByJob(ctx, tx, jobID)
	var completed, failed int
	for _, it := range items {
		switch it.Status {
		case model.BatchItemStatusCompleted:
			completed++
		case model.BatchItemStatusFailed:
			failed++
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.CompletedItems = completed
	j.FailedItems = failed
	return nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

type memItemRepo struct {
	mu    sync.Mutex
	items map[string]*model.BatchItem
	order []string
	seq   int
}

func newMemItemRepo() *memItemRepo {
	return &memItemRepo{items: make(map[string]*model.BatchItem)}
}

var _ repository.BatchItemRepository = (*memItemRepo)(nil)

func (m *memItemRepo) Save(ctx context.Context, tx repository.Tx, item *model.BatchItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		m.seq++
		item.ID = fmt.Sprintf("item-%d", m.seq)
	}
	if _, ok := m.items[item.ID]; !ok {
		m.order = append(m.order, item.ID)
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memItemRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.BatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memItemRepo) ListByJob(ctx context.Context, tx repository.Tx, jobID string) ([]*model.BatchItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BatchItem
	for _, id := range m.order {
		if it := m.items[id]; it.BatchJobID == jobID {
			cp := *it
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memItemRepo) MarkCompleted(ctx context.Context, tx repository.Tx, id string, result *model.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if it.Status.IsTerminal() {
		return nil
	}
	now := time.Now()
	it.Status = model.BatchItemStatusCompleted
	it.Result = result
	it.CompletedAt = &now
	return nil
}

func (m *memItemRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	if it.Status.IsTerminal() {
		return nil
	}
	now := time.Now()
	it.Status = model.BatchItemStatusFailed
	it.ErrorMessage = errMsg
	it.CompletedAt = &now
	return nil
}

func (m *memItemRepo) FailPending(ctx context.Context, tx repository.Tx, jobID string, errMsg string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, id := range m.order {
		it := m.items[id]
		if it.BatchJobID != jobID || it.Status.IsTerminal() {
			continue
		}
		now := time.Now()
		it.Status = model.BatchItemStatusFailed
		it.ErrorMessage = errMsg
		it.CompletedAt = &now
		n++
	}
	return n, nil
}

type mockTxManager struct{}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type mockBatchAPI struct {
	mu            sync.Mutex
	RetrieveCalls []string
	DownloadCalls int

	RetrieveFunc func(ctx context.Context, externalID string) (*adapter.RemoteBatch, error)
	DownloadFunc func(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error)
}

var _ adapter.BatchAPI = (*mockBatchAPI)(nil)

func (m *mockBatchAPI) CreateBatch(ctx context.Context, reqs []adapter.ManifestRequest, window string) (string, error) {
	return "ext-1", nil
}

func (m *mockBatchAPI) RetrieveBatch(ctx context.Context, externalID string) (*adapter.RemoteBatch, error) {
	m.mu.Lock()
	m.RetrieveCalls = append(m.RetrieveCalls, externalID)
	m.mu.Unlock()
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, externalID)
	}
	return &adapter.RemoteBatch{ID: externalID, Status: "in_progress"}, nil
}

func (m *mockBatchAPI) CancelBatch(ctx context.Context, externalID string) error { return nil }

func (m *mockBatchAPI) DownloadResults(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error) {
	m.mu.Lock()
	m.DownloadCalls++
	m.mu.Unlock()
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, outputFileID)
	}
	return nil, nil
}

func (m *mockBatchAPI) retrieveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RetrieveCalls)
}

type mockNotifier struct {
	mu     sync.Mutex
	Events []adapter.TerminalEvent
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) NotifyTerminal(ctx context.Context, ev adapter.TerminalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

func (m *mockNotifier) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}

// mockLocker grants or denies the poller leadership lock.
type mockLocker struct {
	mu     sync.Mutex
	Denied bool
	Locks  int
}

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Denied {
		return "", domain.ErrLockNotAcquired
	}
	m.Locks++
	return "token", nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error { return nil }
