package scheduler

import (
	"context"

	"budgetlink/internal/domain/job"
)

// JobHandler executes claimed jobs of one type. Execute owns the job's
// outcome: it must move the job out of running before returning, or leave
// it for the lease reaper.
type JobHandler interface {
	// JobType is the background_jobs.job_type this handler claims.
	JobType() string

	// Execute runs the job with the given context.
	// Context should be respected for cancellation and timeouts.
	Execute(ctx context.Context, j *job.Job) error
}

// JobClaimer hands out queued jobs, one worker per job.
type JobClaimer interface {
	ClaimNextJob(ctx context.Context, jobType string) (*job.Job, error)
}
