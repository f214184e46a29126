package scheduler

import (
	"context"
	"sync"
	"time"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
)

// fakeQueue hands out each queued job exactly once.
type fakeQueue struct {
	mu       sync.Mutex
	queued   []*job.Job
	claimErr error
	claims   int
}

func (q *fakeQueue) ClaimNextJob(ctx context.Context, jobType string) (*job.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.claims++
	if q.claimErr != nil {
		return nil, q.claimErr
	}
	for i, j := range q.queued {
		if j.JobType == jobType {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			j.Status = job.StatusRunning
			j.Attempts++
			return j, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) remaining() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queued)
}

// recordingHandler records executed job ids.
type recordingHandler struct {
	jobType string
	mu      sync.Mutex
	ran     []int64
	block   chan struct{}
	err     error
	sawCtx  []context.Context
}

func (h *recordingHandler) JobType() string { return h.jobType }

func (h *recordingHandler) Execute(ctx context.Context, j *job.Job) error {
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ran = append(h.ran, j.ID)
	h.sawCtx = append(h.sawCtx, ctx)
	return h.err
}

func (h *recordingHandler) executed() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int64(nil), h.ran...)
}

// MockSyncer implements InstitutionSyncer for testing
type MockSyncer struct {
	SyncInstitutionFunc func(ctx context.Context, institutionID int64) (openfinance.SyncResult, error)
}

func (m *MockSyncer) SyncInstitution(ctx context.Context, institutionID int64) (openfinance.SyncResult, error) {
	if m.SyncInstitutionFunc != nil {
		return m.SyncInstitutionFunc(ctx, institutionID)
	}
	return openfinance.SyncResult{InstitutionID: institutionID}, nil
}

type finishCall struct {
	job     *job.Job
	result  openfinance.SyncResult
	syncErr error
	ctxErr  error
}

// MockFinisher implements JobFinisher for testing
type MockFinisher struct {
	err   error
	calls []finishCall
}

func (m *MockFinisher) FinishJob(ctx context.Context, j *job.Job, result openfinance.SyncResult, syncErr error) error {
	m.calls = append(m.calls, finishCall{job: j, result: result, syncErr: syncErr, ctxErr: ctx.Err()})
	return m.err
}

// MockEnqueuer implements SyncEnqueuer for testing
type MockEnqueuer struct {
	mu                      sync.Mutex
	InitiateSyncForItemFunc func(ctx context.Context, institutionID int64) (*job.Job, error)
	ReapStaleJobsFunc       func(ctx context.Context, lease time.Duration) (int, error)
	initiated               []int64
	reaps                   int
}

func (m *MockEnqueuer) InitiateSyncForItem(ctx context.Context, institutionID int64) (*job.Job, error) {
	m.mu.Lock()
	m.initiated = append(m.initiated, institutionID)
	m.mu.Unlock()
	if m.InitiateSyncForItemFunc != nil {
		return m.InitiateSyncForItemFunc(ctx, institutionID)
	}
	return &job.Job{ID: institutionID, Status: job.StatusQueued}, nil
}

func (m *MockEnqueuer) ReapStaleJobs(ctx context.Context, lease time.Duration) (int, error) {
	m.mu.Lock()
	m.reaps++
	m.mu.Unlock()
	if m.ReapStaleJobsFunc != nil {
		return m.ReapStaleJobsFunc(ctx, lease)
	}
	return 0, nil
}

func (m *MockEnqueuer) reapCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reaps
}

// MockLister implements InstitutionLister for testing
type MockLister struct {
	ids []int64
	err error
}

func (m *MockLister) ListActiveIDs(ctx context.Context) ([]int64, error) {
	return m.ids, m.err
}
