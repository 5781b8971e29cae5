//go:build !integration

package web

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"batch-transcription-service/internal/domain"
	"batch-transcription-service/internal/domain/model"
	"batch-transcription-service/internal/domain/ports/adapter"
	"batch-transcription-service/internal/domain/ports/repository"
)

// Compact in-memory doubles so handler tests can run real use cases end to
// end without postgres or the remote API.

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
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
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
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *m.jobs[m.order[i]]
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
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	m.mu.Unlock()
	if !ok {
		return domain.ErrNotFound
	}
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
	j.CompletedItems = completed
	j.FailedItems = failed
	m.mu.Unlock()
	return nil
}

func (m *memJobRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.jobs, id)
	for i, v := range m.order {
		if v == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
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

type memChunkRepo struct {
	mu    sync.Mutex
	items map[string]*model.ChunkItem
	seq   int
}

func newMemChunkRepo() *memChunkRepo {
	return &memChunkRepo{items: make(map[string]*model.ChunkItem)}
}

var _ repository.ChunkItemRepository = (*memChunkRepo)(nil)

func (m *memChunkRepo) Save(ctx context.Context, tx repository.Tx, item *model.ChunkItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		m.seq++
		item.ID = fmt.Sprintf("chunk-%d", m.seq)
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	cp := *item
	m.items[item.ID] = &cp
	return nil
}

func (m *memChunkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.ChunkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memChunkRepo) List(ctx context.Context, tx repository.Tx, limit int) ([]*model.ChunkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ChunkItem
	for _, it := range m.items {
		if len(out) >= limit {
			break
		}
		cp := *it
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memChunkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.ChunkItemStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	it.Status = status
	it.ErrorMessage = errMsg
	it.UpdatedAt = time.Now()
	return nil
}

func (m *memChunkRepo) SaveCheckpoint(ctx context.Context, tx repository.Tx, id string, cp model.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	it.Checkpoint = cp
	it.UpdatedAt = time.Now()
	return nil
}

func (m *memChunkRepo) Complete(ctx context.Context, tx repository.Tx, id string, result *model.Transcript) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	it.Status = model.ChunkItemStatusCompleted
	it.Result = result
	it.Checkpoint = model.NewCheckpoint()
	it.ErrorMessage = ""
	it.CompletedAt = &now
	return nil
}

type mockTxManager struct{}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type mockBatchAPI struct{}

var _ adapter.BatchAPI = (*mockBatchAPI)(nil)

func (m *mockBatchAPI) CreateBatch(ctx context.Context, reqs []adapter.ManifestRequest, window string) (string, error) {
	return "ext-batch-1", nil
}

func (m *mockBatchAPI) RetrieveBatch(ctx context.Context, externalID string) (*adapter.RemoteBatch, error) {
	return &adapter.RemoteBatch{ID: externalID, Status: "in_progress"}, nil
}

func (m *mockBatchAPI) CancelBatch(ctx context.Context, externalID string) error { return nil }

func (m *mockBatchAPI) DownloadResults(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error) {
	return nil, nil
}

type mockStore struct{}

var _ adapter.ObjectStore = (*mockStore)(nil)

func (m *mockStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	return "https://store.test/" + name, nil
}

func (m *mockStore) Delete(ctx context.Context, url string) error { return nil }

type mockSplitter struct{ Duration float64 }

var _ adapter.AudioSplitter = (*mockSplitter)(nil)

func (m *mockSplitter) Probe(ctx context.Context, path string) (float64, error) {
	return m.Duration, nil
}

func (m *mockSplitter) Split(ctx context.Context, path string, partSeconds float64) ([]adapter.AudioPart, error) {
	return nil, nil
}

func (m *mockSplitter) Cleanup(parts []adapter.AudioPart) error { return nil }

type mockTranscriber struct{}

var _ adapter.Transcriber = (*mockTranscriber)(nil)

func (m *mockTranscriber) Transcribe(ctx context.Context, path, transcriptionModel string) (*model.Transcript, error) {
	return &model.Transcript{Text: "ok"}, nil
}
