//go:build !integration

package usecase

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

// ---- In-memory BatchJobRepository ----

type memJobRepo struct {
	mu      sync.Mutex
	jobs    map[string]*model.BatchJob
	order   []string
	items   *memItemRepo // for RefreshCounts
	seq     int
	SaveErr error
}

func newMemJobRepo(items *memItemRepo) *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.BatchJob), items: items}
}

var _ repository.BatchJobRepository = (*memJobRepo)(nil)

func (m *memJobRepo) Save(ctx context.Context, tx repository.Tx, job *model.BatchJob) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
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
	m.items.deleteByJob(id)
	return nil
}

func (m *memJobRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// ---- In-memory BatchItemRepository ----

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
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
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

func (m *memItemRepo) deleteByJob(jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.order[:0]
	for _, id := range m.order {
		if m.items[id].BatchJobID == jobID {
			delete(m.items, id)
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
}

func (m *memItemRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// ---- In-memory ChunkItemRepository ----

type memChunkRepo struct {
	mu          sync.Mutex
	items       map[string]*model.ChunkItem
	seq         int
	Checkpoints []model.Checkpoint // every SaveCheckpoint call, in order
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
	if err := cp.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return domain.ErrNotFound
	}
	it.Checkpoint = cp
	it.UpdatedAt = time.Now()
	m.Checkpoints = append(m.Checkpoints, cp)
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

// ---- Mock TransactionManager ----

type mockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*mockTxManager)(nil)

func (m *mockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// ---- Mock BatchAPI ----

type mockBatchAPI struct {
	mu sync.Mutex

	CreateCalls   int
	RetrieveCalls int
	CancelCalls   int
	DownloadCalls int

	CreatedManifests [][]adapter.ManifestRequest

	CreateFunc   func(ctx context.Context, reqs []adapter.ManifestRequest, window string) (string, error)
	RetrieveFunc func(ctx context.Context, externalID string) (*adapter.RemoteBatch, error)
	CancelFunc   func(ctx context.Context, externalID string) error
	DownloadFunc func(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error)
}

var _ adapter.BatchAPI = (*mockBatchAPI)(nil)

func (m *mockBatchAPI) CreateBatch(ctx context.Context, reqs []adapter.ManifestRequest, window string) (string, error) {
	m.mu.Lock()
	m.CreateCalls++
	m.CreatedManifests = append(m.CreatedManifests, reqs)
	m.mu.Unlock()
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, reqs, window)
	}
	return "ext-batch-1", nil
}

func (m *mockBatchAPI) RetrieveBatch(ctx context.Context, externalID string) (*adapter.RemoteBatch, error) {
	m.mu.Lock()
	m.RetrieveCalls++
	m.mu.Unlock()
	if m.RetrieveFunc != nil {
		return m.RetrieveFunc(ctx, externalID)
	}
	return &adapter.RemoteBatch{ID: externalID, Status: "in_progress"}, nil
}

func (m *mockBatchAPI) CancelBatch(ctx context.Context, externalID string) error {
	m.mu.Lock()
	m.CancelCalls++
	m.mu.Unlock()
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, externalID)
	}
	return nil
}

func (m *mockBatchAPI) DownloadResults(ctx context.Context, outputFileID string) ([]adapter.BatchResult, error) {
	m.mu.Lock()
	m.DownloadCalls++
	m.mu.Unlock()
	if m.DownloadFunc != nil {
		return m.DownloadFunc(ctx, outputFileID)
	}
	return nil, nil
}

func (m *mockBatchAPI) externalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CreateCalls + m.RetrieveCalls + m.CancelCalls + m.DownloadCalls
}

// ---- Mock ObjectStore ----

type mockStore struct {
	mu      sync.Mutex
	Puts    []string
	Deletes []string
	PutErr  error
}

var _ adapter.ObjectStore = (*mockStore)(nil)

func (m *mockStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	if m.PutErr != nil {
		return "", m.PutErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Puts = append(m.Puts, name)
	return "https://store.test/" + name, nil
}

func (m *mockStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes = append(m.Deletes, url)
	return nil
}

// ---- Mock AudioSplitter ----

type mockSplitter struct {
	Duration     float64
	Parts        []adapter.AudioPart
	ProbeErr     error
	SplitErr     error
	SplitCalls   int
	CleanupCalls int
}

var _ adapter.AudioSplitter = (*mockSplitter)(nil)

func (m *mockSplitter) Probe(ctx context.Context, path string) (float64, error) {
	if m.ProbeErr != nil {
		return 0, m.ProbeErr
	}
	return m.Duration, nil
}

func (m *mockSplitter) Split(ctx context.Context, path string, partSeconds float64) ([]adapter.AudioPart, error) {
	m.SplitCalls++
	if m.SplitErr != nil {
		return nil, m.SplitErr
	}
	return m.Parts, nil
}

func (m *mockSplitter) Cleanup(parts []adapter.AudioPart) error {
	m.CleanupCalls++
	return nil
}

// ---- Mock Transcriber ----

type mockTranscriber struct {
	mu    sync.Mutex
	Calls []string // paths, in call order

	// TranscribeFunc lets tests fail specific parts or stash results.
	TranscribeFunc func(ctx context.Context, path, transcriptionModel string) (*model.Transcript, error)
}

var _ adapter.Transcriber = (*mockTranscriber)(nil)

func (m *mockTranscriber) Transcribe(ctx context.Context, path, transcriptionModel string) (*model.Transcript, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, path)
	m.mu.Unlock()
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, path, transcriptionModel)
	}
	return &model.Transcript{Text: "text for " + path}, nil
}

func (m *mockTranscriber) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// ---- Mock Notifier ----

type mockNotifier struct {
	mu     sync.Mutex
	Events []adapter.TerminalEvent
	Err    error
}

var _ adapter.Notifier = (*mockNotifier)(nil)

func (m *mockNotifier) NotifyTerminal(ctx context.Context, ev adapter.TerminalEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return m.Err
}

func (m *mockNotifier) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Events)
}
