package job

import (
	"context"
	"time"
)

// Repository defines the interface for background job data access
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Job, error)
	FindByID(ctx context.Context, id int64) (*Job, error)
	// FindNextAvailable locks the oldest queued job of jobType ("" matches any type),
	// skipping rows other transactions hold. Returns nil, nil when the queue is empty.
	FindNextAvailable(ctx context.Context, jobType string) (*Job, error)
	// MarkAsRunning returns the job as stored after the move.
	MarkAsRunning(ctx context.Context, id int64) (*Job, error)
	MarkAsCompleted(ctx context.Context, id int64) error
	MarkAsFailed(ctx context.Context, id int64, errMsg string) error

	// FailStale moves running jobs last attempted before cutoff to failed.
	FailStale(ctx context.Context, cutoff time.Time, reason string) ([]*Job, error)
	ListByStatus(ctx context.Context, status Status, limit int) ([]*Job, error)
}
