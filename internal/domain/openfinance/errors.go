// Package openfinance links bank institutions through the aggregator and
// keeps their accounts and transactions in sync.
package openfinance

import "errors"

// Linking stage failures. Each wraps the underlying cause.
var (
	ErrExchangeFailed   = errors.New("failed to exchange public token")
	ErrMetadataFailed   = errors.New("failed to fetch institution metadata")
	ErrAccountsFailed   = errors.New("failed to fetch accounts")
	ErrEncryptionFailed = errors.New("failed to encrypt access token")
)

var (
	// ErrAlreadySyncing is returned when a sync is requested for an
	// institution whose status is already syncing.
	ErrAlreadySyncing = errors.New("institution is already syncing")
	// ErrCursorLoop is returned when the aggregator hands back a cursor it
	// already returned during the same reconciliation.
	ErrCursorLoop = errors.New("aggregator returned a repeated cursor")
	// ErrInstitutionArchived is returned when a queued sync targets an
	// institution that was archived after the job was created.
	ErrInstitutionArchived = errors.New("institution is archived")
	// ErrLeaseExpired is returned by FinishJob when the lease reaper failed
	// the job before the worker reported its outcome.
	ErrLeaseExpired = errors.New("job lease expired before finish")
)

// Cipher encrypts and decrypts stored access credentials.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
