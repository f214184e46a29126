package job

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is the state of a background job. Transitions only move forward:
// queued -> running -> completed | failed.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TypeSyncInstitution refreshes one institution's accounts and transactions.
const TypeSyncInstitution = "SYNC_INSTITUTION"

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvalidJobType    = errors.New("job type is required")
	ErrInvalidJobPayload = errors.New("invalid job payload")
)

// Job is a durable queue entry.
type Job struct {
	ID            int64           `json:"id"`
	JobType       string          `json:"jobType"`
	Payload       json.RawMessage `json:"payload"`
	Status        Status          `json:"status"`
	Attempts      int             `json:"attempts"`
	LastAttemptAt *time.Time      `json:"lastAttemptAt"`
	LastError     *string         `json:"lastError"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// IsTerminal reports whether the job reached completed or failed.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// CreateParams contains parameters for enqueueing a job
type CreateParams struct {
	JobType string
	Payload json.RawMessage
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if p.JobType == "" {
		return ErrInvalidJobType
	}
	if len(p.Payload) > 0 && !json.Valid(p.Payload) {
		return ErrInvalidJobPayload
	}
	return nil
}

// SyncInstitutionPayload is the payload of a SYNC_INSTITUTION job.
type SyncInstitutionPayload struct {
	InstitutionID int64 `json:"institutionId"`
}

// NewSyncInstitutionParams builds the create params for a sync job.
func NewSyncInstitutionParams(institutionID int64) (CreateParams, error) {
	payload, err := json.Marshal(SyncInstitutionPayload{InstitutionID: institutionID})
	if err != nil {
		return CreateParams{}, fmt.Errorf("failed to marshal sync payload: %w", err)
	}
	return CreateParams{JobType: TypeSyncInstitution, Payload: payload}, nil
}

// DecodeSyncInstitutionPayload extracts the institution id from a sync job.
func DecodeSyncInstitutionPayload(j *Job) (SyncInstitutionPayload, error) {
	var p SyncInstitutionPayload
	if j.JobType != TypeSyncInstitution {
		return p, fmt.Errorf("%w: job %d has type %s", ErrInvalidJobPayload, j.ID, j.JobType)
	}
	if err := json.Unmarshal(j.Payload, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidJobPayload, err)
	}
	if p.InstitutionID <= 0 {
		return p, fmt.Errorf("%w: missing institution id", ErrInvalidJobPayload)
	}
	return p, nil
}
