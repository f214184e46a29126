package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/uow"
	ofclient "budgetlink/internal/infrastructure/openfinance"
	"budgetlink/internal/shared/telemetry"
)

const leaseExpiredReason = "lease expired"

var syncOutcomes, _ = telemetry.Meter("sync").Int64Counter("sync.job.outcomes",
	metric.WithDescription("Finished sync jobs by outcome"),
)

func recordOutcome(ctx context.Context, outcome string) {
	syncOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// SyncResult summarizes one successful sync run.
type SyncResult struct {
	InstitutionID     int64
	AccountsRefreshed int
	TransactionsAdded int
}

// RelinkNotifier tells a user that an institution needs to be linked again.
type RelinkNotifier interface {
	NotifyRelinkRequired(ctx context.Context, inst *institution.Institution) error
}

// SyncOrchestrator owns the sync lifecycle of an institution:
// good|error|relink_required -> syncing -> good|error|relink_required.
// Every status change and its job write commit in the same transaction.
type SyncOrchestrator struct {
	newUoW   uow.Factory
	notifier RelinkNotifier
	now      func() time.Time
}

// NewSyncOrchestrator creates a new orchestrator. notifier may be nil.
func NewSyncOrchestrator(newUoW uow.Factory, notifier RelinkNotifier) *SyncOrchestrator {
	return &SyncOrchestrator{
		newUoW:   newUoW,
		notifier: notifier,
		now:      time.Now,
	}
}

// InitiateSyncForItem moves the institution to syncing and enqueues a sync
// job for it. It returns ErrAlreadySyncing without writing anything when a
// sync is already in progress.
func (o *SyncOrchestrator) InitiateSyncForItem(ctx context.Context, institutionID int64) (*job.Job, error) {
	params, err := job.NewSyncInstitutionParams(institutionID)
	if err != nil {
		return nil, err
	}

	var created *job.Job
	err = o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		inst, err := repos.Institutions().LockByID(ctx, institutionID)
		if err != nil {
			return err
		}
		if inst.SyncStatus == institution.StatusSyncing {
			return ErrAlreadySyncing
		}

		status := institution.StatusSyncing
		if _, err := repos.Institutions().Update(ctx, institutionID, institution.UpdateParams{
			SyncStatus:     &status,
			ClearSyncError: true,
		}); err != nil {
			return err
		}

		created, err = repos.BackgroundJobs().Create(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("Institution %d: sync initiated (job %d)", institutionID, created.ID)
	return created, nil
}

// CompleteSyncForItem records a successful sync.
func (o *SyncOrchestrator) CompleteSyncForItem(ctx context.Context, institutionID int64, result SyncResult) error {
	err := o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		return o.markSucceeded(ctx, repos, institutionID)
	})
	if err != nil {
		return err
	}
	log.Printf("Institution %d: sync complete - Accounts: %d, New transactions: %d",
		institutionID, result.AccountsRefreshed, result.TransactionsAdded)
	return nil
}

// RecordSyncFailure records a failed sync. requiresRelink selects
// relink_required over error and triggers a notification to the owner.
func (o *SyncOrchestrator) RecordSyncFailure(ctx context.Context, institutionID int64, syncErr error, requiresRelink bool) error {
	var inst *institution.Institution
	err := o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		inst, err = o.markFailed(ctx, repos, institutionID, syncErr, requiresRelink)
		return err
	})
	if err != nil {
		return err
	}

	log.Printf("Institution %d: sync failed (relink required: %t): %v", institutionID, requiresRelink, syncErr)
	if requiresRelink {
		o.notifyRelink(ctx, inst)
	}
	return nil
}

// ClaimNextJob locks the oldest queued job of jobType and marks it running.
// It returns nil, nil when nothing is queued.
func (o *SyncOrchestrator) ClaimNextJob(ctx context.Context, jobType string) (*job.Job, error) {
	var claimed *job.Job
	err := o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		j, err := repos.BackgroundJobs().FindNextAvailable(ctx, jobType)
		if err != nil || j == nil {
			return err
		}
		claimed, err = repos.BackgroundJobs().MarkAsRunning(ctx, j.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	return claimed, nil
}

// FinishJob closes a running sync job and applies the matching institution
// transition in one transaction. A nil syncErr completes the job.
func (o *SyncOrchestrator) FinishJob(ctx context.Context, j *job.Job, result SyncResult, syncErr error) error {
	payload, payloadErr := job.DecodeSyncInstitutionPayload(j)
	requiresRelink := syncErr != nil && ofclient.IsRelinkRequired(syncErr)

	var inst *institution.Institution
	err := o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		if syncErr == nil {
			err = repos.BackgroundJobs().MarkAsCompleted(ctx, j.ID)
		} else {
			err = repos.BackgroundJobs().MarkAsFailed(ctx, j.ID, syncErr.Error())
		}
		if errors.Is(err, job.ErrInvalidTransition) && reapedByLease(ctx, repos, j.ID) {
			return ErrLeaseExpired
		}
		if err != nil {
			return err
		}

		if payloadErr != nil {
			return nil
		}

		if syncErr == nil {
			err = o.markSucceeded(ctx, repos, payload.InstitutionID)
		} else {
			inst, err = o.markFailed(ctx, repos, payload.InstitutionID, syncErr, requiresRelink)
		}
		if errors.Is(err, institution.ErrInstitutionNotFound) {
			log.Printf("Job %d: institution %d no longer active, leaving it untouched", j.ID, payload.InstitutionID)
			return nil
		}
		return err
	})
	if errors.Is(err, ErrLeaseExpired) {
		// The reaper already moved the institution to error. Rows written by
		// the sync stay; the next scheduled sync restores the status.
		log.Printf("Job %d: lease expired before the worker finished, outcome dropped (sync error: %v)", j.ID, syncErr)
		recordOutcome(ctx, "lease_lost")
		return fmt.Errorf("failed to finish job %d: %w", j.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to finish job %d: %w", j.ID, err)
	}

	if syncErr == nil {
		recordOutcome(ctx, "completed")
		log.Printf("Job %d: institution %d synced - Accounts: %d, New transactions: %d",
			j.ID, payload.InstitutionID, result.AccountsRefreshed, result.TransactionsAdded)
		return nil
	}

	if requiresRelink {
		recordOutcome(ctx, "relink_required")
	} else {
		recordOutcome(ctx, "failed")
	}
	log.Printf("Job %d: sync failed (relink required: %t): %v", j.ID, requiresRelink, syncErr)
	if requiresRelink && inst != nil {
		o.notifyRelink(ctx, inst)
	}
	return nil
}

// reapedByLease reports whether the lease reaper failed job id.
func reapedByLease(ctx context.Context, repos uow.Repositories, id int64) bool {
	stored, err := repos.BackgroundJobs().FindByID(ctx, id)
	if err != nil {
		return false
	}
	return stored.Status == job.StatusFailed && stored.LastError != nil && *stored.LastError == leaseExpiredReason
}

// ReapStaleJobs fails running jobs whose last attempt started more than lease
// ago and moves their institutions to error. Reaped jobs are not requeued.
func (o *SyncOrchestrator) ReapStaleJobs(ctx context.Context, lease time.Duration) (int, error) {
	cutoff := o.now().Add(-lease)

	var reaped []*job.Job
	err := o.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		var err error
		reaped, err = repos.BackgroundJobs().FailStale(ctx, cutoff, leaseExpiredReason)
		if err != nil {
			return err
		}

		for _, j := range reaped {
			payload, err := job.DecodeSyncInstitutionPayload(j)
			if err != nil {
				continue
			}
			_, err = o.markFailed(ctx, repos, payload.InstitutionID, errors.New("sync "+leaseExpiredReason), false)
			if err != nil && !errors.Is(err, institution.ErrInstitutionNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reap stale jobs: %w", err)
	}

	for _, j := range reaped {
		recordOutcome(ctx, "lease_expired")
		log.Printf("Job %d: lease expired after %v, marked failed", j.ID, lease)
	}
	return len(reaped), nil
}

func (o *SyncOrchestrator) markSucceeded(ctx context.Context, repos uow.Repositories, institutionID int64) error {
	status := institution.StatusGood
	now := o.now()
	_, err := repos.Institutions().Update(ctx, institutionID, institution.UpdateParams{
		SyncStatus:         &status,
		LastSuccessfulSync: &now,
		ClearSyncError:     true,
	})
	return err
}

func (o *SyncOrchestrator) markFailed(ctx context.Context, repos uow.Repositories, institutionID int64, syncErr error, requiresRelink bool) (*institution.Institution, error) {
	status := institution.StatusError
	if requiresRelink {
		status = institution.StatusRelinkRequired
	}
	msg := "sync failed"
	if syncErr != nil {
		msg = syncErr.Error()
	}
	return repos.Institutions().Update(ctx, institutionID, institution.UpdateParams{
		SyncStatus:           &status,
		LastSyncErrorMessage: &msg,
	})
}

// notifyRelink is best effort: the status change is already committed.
func (o *SyncOrchestrator) notifyRelink(ctx context.Context, inst *institution.Institution) {
	if o.notifier == nil || inst == nil {
		return
	}
	if err := o.notifier.NotifyRelinkRequired(ctx, inst); err != nil {
		log.Printf("Institution %d: failed to send relink notification: %v", inst.ID, err)
	}
}
