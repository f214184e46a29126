package openfinance

import (
	"context"
	"fmt"
	"log"

	"budgetlink/internal/domain/account"
	ofclient "budgetlink/internal/infrastructure/openfinance"
)

// AccountSyncService refreshes balances of accounts created at link time.
type AccountSyncService struct {
	client   ofclient.ClientInterface
	accounts account.Repository
}

// NewAccountSyncService creates a new account sync service
func NewAccountSyncService(client ofclient.ClientInterface, accounts account.Repository) *AccountSyncService {
	return &AccountSyncService{client: client, accounts: accounts}
}

// RefreshBalances updates the balances of the institution's known accounts
// and returns how many were updated. Accounts the aggregator reports that
// were not created at link time are skipped.
func (s *AccountSyncService) RefreshBalances(ctx context.Context, institutionID int64, accessToken string) (int, error) {
	apiAccounts, err := s.client.GetAccounts(ctx, accessToken)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch accounts: %w", err)
	}

	known, err := s.accounts.ListByInstitutionID(ctx, institutionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	knownIDs := make(map[string]struct{}, len(known))
	for _, a := range known {
		knownIDs[a.ExternalAccountID] = struct{}{}
	}

	updated := 0
	for _, a := range apiAccounts {
		if _, ok := knownIDs[a.AccountID]; !ok {
			log.Printf("Institution %d: skipping unknown account %s", institutionID, a.AccountID)
			continue
		}

		err := s.accounts.UpdateBalances(ctx, a.AccountID, account.Balances{
			Current:   a.Balances.Current,
			Available: a.Balances.Available,
		})
		if err != nil {
			return updated, fmt.Errorf("failed to update account %s: %w", a.AccountID, err)
		}
		updated++
	}

	log.Printf("Institution %d: refreshed balances of %d/%d accounts", institutionID, updated, len(apiAccounts))
	return updated, nil
}
