package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
)

func syncJob(t *testing.T, id, institutionID int64) *job.Job {
	t.Helper()
	params, err := job.NewSyncInstitutionParams(institutionID)
	require.NoError(t, err)
	return &job.Job{ID: id, JobType: params.JobType, Payload: params.Payload, Status: job.StatusRunning, Attempts: 1}
}

func TestSyncInstitutionJob_JobType(t *testing.T) {
	h := NewSyncInstitutionJob(&MockSyncer{}, &MockFinisher{})
	assert.Equal(t, job.TypeSyncInstitution, h.JobType())
}

func TestSyncInstitutionJob_Success(t *testing.T) {
	var synced int64
	syncer := &MockSyncer{
		SyncInstitutionFunc: func(ctx context.Context, institutionID int64) (openfinance.SyncResult, error) {
			synced = institutionID
			return openfinance.SyncResult{InstitutionID: institutionID, AccountsRefreshed: 2, TransactionsAdded: 7}, nil
		},
	}
	finisher := &MockFinisher{}
	h := NewSyncInstitutionJob(syncer, finisher)

	err := h.Execute(context.Background(), syncJob(t, 10, 42))

	require.NoError(t, err)
	assert.Equal(t, int64(42), synced)
	require.Len(t, finisher.calls, 1)
	assert.NoError(t, finisher.calls[0].syncErr)
	assert.Equal(t, int64(10), finisher.calls[0].job.ID)
	assert.Equal(t, 7, finisher.calls[0].result.TransactionsAdded)
}

func TestSyncInstitutionJob_SyncErrorIsRecorded(t *testing.T) {
	syncErr := errors.New("aggregator unavailable")
	syncer := &MockSyncer{
		SyncInstitutionFunc: func(ctx context.Context, institutionID int64) (openfinance.SyncResult, error) {
			return openfinance.SyncResult{}, syncErr
		},
	}
	finisher := &MockFinisher{}
	h := NewSyncInstitutionJob(syncer, finisher)

	err := h.Execute(context.Background(), syncJob(t, 10, 42))

	require.ErrorIs(t, err, syncErr)
	require.Len(t, finisher.calls, 1)
	assert.ErrorIs(t, finisher.calls[0].syncErr, syncErr)
}

func TestSyncInstitutionJob_BadPayload(t *testing.T) {
	called := false
	syncer := &MockSyncer{
		SyncInstitutionFunc: func(ctx context.Context, institutionID int64) (openfinance.SyncResult, error) {
			called = true
			return openfinance.SyncResult{}, nil
		},
	}
	finisher := &MockFinisher{}
	h := NewSyncInstitutionJob(syncer, finisher)

	j := &job.Job{ID: 3, JobType: job.TypeSyncInstitution, Payload: json.RawMessage(`{"institutionId":0}`)}
	err := h.Execute(context.Background(), j)

	require.ErrorIs(t, err, job.ErrInvalidJobPayload)
	assert.False(t, called)
	require.Len(t, finisher.calls, 1)
	assert.ErrorIs(t, finisher.calls[0].syncErr, job.ErrInvalidJobPayload)
}

func TestSyncInstitutionJob_FinishError(t *testing.T) {
	finishErr := errors.New("connection reset")
	h := NewSyncInstitutionJob(&MockSyncer{}, &MockFinisher{err: finishErr})

	err := h.Execute(context.Background(), syncJob(t, 10, 42))

	assert.ErrorIs(t, err, finishErr)
}

func TestSyncInstitutionJob_FinishesAfterTimeout(t *testing.T) {
	syncer := &MockSyncer{
		SyncInstitutionFunc: func(ctx context.Context, institutionID int64) (openfinance.SyncResult, error) {
			<-ctx.Done()
			return openfinance.SyncResult{}, ctx.Err()
		},
	}
	finisher := &MockFinisher{}
	h := NewSyncInstitutionJob(syncer, finisher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := h.Execute(ctx, syncJob(t, 10, 42))

	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, finisher.calls, 1)
	assert.NoError(t, finisher.calls[0].ctxErr, "outcome must be recorded on a live context")
	assert.ErrorIs(t, finisher.calls[0].syncErr, context.DeadlineExceeded)
}
