package institution

import (
	"errors"
	"strings"
	"time"
)

// SyncStatus is the lifecycle state of a linked institution.
type SyncStatus string

const (
	StatusGood           SyncStatus = "good"
	StatusSyncing        SyncStatus = "syncing"
	StatusRelinkRequired SyncStatus = "relink_required"
	StatusError          SyncStatus = "error"
)

// DefaultMaxActivePerUser caps the non-archived institutions a user can hold.
const DefaultMaxActivePerUser = 10

// Domain errors
var (
	ErrInstitutionNotFound = errors.New("institution not found")
	ErrItemLimitReached    = errors.New("institution limit reached")
	ErrDuplicateItem       = errors.New("institution already linked")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidStatus       = errors.New("invalid sync status")
)

// Institution is one linked bank connection (an aggregator "item").
type Institution struct {
	ID                    int64      `json:"id"`
	UserID                string     `json:"userId"`
	ExternalItemID        string     `json:"externalItemId"`
	ExternalInstitutionID string     `json:"externalInstitutionId"`
	InstitutionName       string     `json:"institutionName"`
	EncryptedAccessToken  string     `json:"-"`
	SyncStatus            SyncStatus `json:"syncStatus"`
	LastSuccessfulSync    *time.Time `json:"lastSuccessfulSync"`
	LastSyncErrorMessage  *string    `json:"lastSyncErrorMessage"`
	ArchivedAt            *time.Time `json:"-"`
	CreatedAt             time.Time  `json:"createdAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// IsArchived reports whether the institution was soft-deleted.
func (i *Institution) IsArchived() bool {
	return i.ArchivedAt != nil
}

// CreateParams contains parameters for creating a new institution
type CreateParams struct {
	UserID                string
	ExternalItemID        string
	ExternalInstitutionID string
	InstitutionName       string
	EncryptedAccessToken  string
}

// Validate validates the create parameters
func (p CreateParams) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return errors.New("user ID is required")
	}
	if p.ExternalItemID == "" {
		return errors.New("external item ID is required")
	}
	if p.InstitutionName == "" {
		return errors.New("institution name is required")
	}
	if p.EncryptedAccessToken == "" {
		return errors.New("encrypted access token is required")
	}
	return nil
}

// UpdateParams lists the mutable columns. Nil fields are left untouched.
// ExternalItemID is deliberately absent: it never changes after creation.
type UpdateParams struct {
	InstitutionName      *string
	EncryptedAccessToken *string
	SyncStatus           *SyncStatus
	LastSuccessfulSync   *time.Time
	LastSyncErrorMessage *string
	// ClearSyncError sets last_sync_error_message to NULL; it wins over LastSyncErrorMessage.
	ClearSyncError bool
}

// Validate validates the update parameters
func (p UpdateParams) Validate() error {
	if p.SyncStatus != nil && !IsValidStatus(*p.SyncStatus) {
		return ErrInvalidStatus
	}
	if p.InstitutionName != nil && *p.InstitutionName == "" {
		return errors.New("institution name cannot be empty")
	}
	if p.EncryptedAccessToken != nil && *p.EncryptedAccessToken == "" {
		return errors.New("encrypted access token cannot be empty")
	}
	return nil
}

// IsEmpty reports whether no field was supplied.
func (p UpdateParams) IsEmpty() bool {
	return p.InstitutionName == nil &&
		p.EncryptedAccessToken == nil &&
		p.SyncStatus == nil &&
		p.LastSuccessfulSync == nil &&
		p.LastSyncErrorMessage == nil &&
		!p.ClearSyncError
}

// IsValidStatus checks if the status is one of the known lifecycle states
func IsValidStatus(s SyncStatus) bool {
	switch s {
	case StatusGood, StatusSyncing, StatusRelinkRequired, StatusError:
		return true
	}
	return false
}
