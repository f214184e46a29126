package account

import "context"

// Repository defines the interface for account data access
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*Account, error)
	ListByInstitutionID(ctx context.Context, institutionID int64) ([]*Account, error)
	UpdateBalances(ctx context.Context, externalAccountID string, balances Balances) error
}
