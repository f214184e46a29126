package transaction

import "context"

// Repository defines the interface for transaction data access.
// Rows are insert-only: sync never updates or deletes a stored transaction.
type Repository interface {
	// FindExistingExternalIDs returns the subset of ids already stored for accounts
	// of the institution.
	FindExistingExternalIDs(ctx context.Context, institutionID int64, externalIDs []string) (map[string]struct{}, error)
	// CreateIfAbsent inserts the transaction unless its external id exists.
	// It reports whether a row was written.
	CreateIfAbsent(ctx context.Context, params CreateParams) (bool, error)
	CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error)
	// ListByInstitutionID pages through the institution's transactions, newest first.
	ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*Transaction, error)
}
