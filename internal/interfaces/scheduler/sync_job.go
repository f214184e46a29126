package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/openfinance"
)

const finishTimeout = 15 * time.Second

// InstitutionSyncer runs one sync pass for an institution.
type InstitutionSyncer interface {
	SyncInstitution(ctx context.Context, institutionID int64) (openfinance.SyncResult, error)
}

// JobFinisher records a sync job's outcome.
type JobFinisher interface {
	FinishJob(ctx context.Context, j *job.Job, result openfinance.SyncResult, syncErr error) error
}

// SyncInstitutionJob handles SYNC_INSTITUTION jobs: balances, then
// transactions, then the job and institution status in one transaction.
type SyncInstitutionJob struct {
	syncer   InstitutionSyncer
	finisher JobFinisher
}

// NewSyncInstitutionJob creates the SYNC_INSTITUTION handler
func NewSyncInstitutionJob(syncer InstitutionSyncer, finisher JobFinisher) *SyncInstitutionJob {
	return &SyncInstitutionJob{syncer: syncer, finisher: finisher}
}

func (h *SyncInstitutionJob) JobType() string {
	return job.TypeSyncInstitution
}

// Execute runs the sync and records the outcome. The sync error, if any, is
// returned after it has been recorded.
func (h *SyncInstitutionJob) Execute(ctx context.Context, j *job.Job) error {
	var (
		result  openfinance.SyncResult
		syncErr error
	)

	payload, err := job.DecodeSyncInstitutionPayload(j)
	if err != nil {
		syncErr = err
	} else {
		log.Printf("Job %d: starting sync for institution %d", j.ID, payload.InstitutionID)
		result, syncErr = h.syncer.SyncInstitution(ctx, payload.InstitutionID)
	}

	// The job context may already be past its deadline.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	if err := h.finisher.FinishJob(finishCtx, j, result, syncErr); err != nil {
		return fmt.Errorf("failed to record outcome of job %d: %w", j.ID, err)
	}

	if syncErr != nil {
		return fmt.Errorf("sync failed: %w", syncErr)
	}
	return nil
}
