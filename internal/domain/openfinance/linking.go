package openfinance

import (
	"context"
	"fmt"
	"log"
	"strings"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/uow"
	ofclient "budgetlink/internal/infrastructure/openfinance"
)

// LinkingService turns a public token from the link flow into a stored
// institution with its accounts.
type LinkingService struct {
	client       ofclient.ClientInterface
	cipher       Cipher
	institutions institution.Repository
	newUoW       uow.Factory
	maxPerUser   int
}

// NewLinkingService creates a new linking service. institutions is used for
// reads outside any transaction.
func NewLinkingService(
	client ofclient.ClientInterface,
	cipher Cipher,
	institutions institution.Repository,
	newUoW uow.Factory,
	maxPerUser int,
) *LinkingService {
	if maxPerUser <= 0 {
		maxPerUser = institution.DefaultMaxActivePerUser
	}
	return &LinkingService{
		client:       client,
		cipher:       cipher,
		institutions: institutions,
		newUoW:       newUoW,
		maxPerUser:   maxPerUser,
	}
}

// LinkInstitution exchanges publicToken, gathers the institution metadata and
// accounts, and stores everything in one transaction. Either the institution
// and all of its accounts are written or nothing is.
func (s *LinkingService) LinkInstitution(ctx context.Context, userID, publicToken string) (*institution.Institution, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user ID is required", institution.ErrInvalidInput)
	}
	if strings.TrimSpace(publicToken) == "" {
		return nil, fmt.Errorf("%w: public token is required", institution.ErrInvalidInput)
	}

	// Rechecked under the user lock before the insert.
	reached, err := s.institutions.HasReachedItemLimit(ctx, userID, s.maxPerUser)
	if err != nil {
		return nil, fmt.Errorf("failed to check institution limit: %w", err)
	}
	if reached {
		return nil, institution.ErrItemLimitReached
	}

	exchanged, err := s.client.ExchangePublicToken(ctx, publicToken)
	if err != nil {
		log.Printf("User %s: public token exchange failed: %v", userID, err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}

	metadata, err := s.client.GetInstitutionMetadata(ctx, exchanged.ExternalInstitutionID)
	if err != nil {
		log.Printf("User %s: institution metadata fetch failed for %s: %v", userID, exchanged.ExternalInstitutionID, err)
		return nil, fmt.Errorf("%w: %w", ErrMetadataFailed, err)
	}

	apiAccounts, err := s.client.GetAccounts(ctx, exchanged.AccessToken)
	if err != nil {
		log.Printf("User %s: account fetch failed for item %s: %v", userID, exchanged.ExternalItemID, err)
		return nil, fmt.Errorf("%w: %w", ErrAccountsFailed, err)
	}

	encrypted, err := s.cipher.Encrypt(exchanged.AccessToken)
	if err != nil {
		log.Printf("User %s: access token encryption failed for item %s: %v", userID, exchanged.ExternalItemID, err)
		return nil, fmt.Errorf("%w: %w", ErrEncryptionFailed, err)
	}

	var created *institution.Institution
	err = s.newUoW().ExecuteTransaction(ctx, func(ctx context.Context, repos uow.Repositories) error {
		if err := repos.Institutions().LockUser(ctx, userID); err != nil {
			return err
		}

		reached, err := repos.Institutions().HasReachedItemLimit(ctx, userID, s.maxPerUser)
		if err != nil {
			return fmt.Errorf("failed to check institution limit: %w", err)
		}
		if reached {
			return institution.ErrItemLimitReached
		}

		inst, err := repos.Institutions().Create(ctx, institution.CreateParams{
			UserID:                userID,
			ExternalItemID:        exchanged.ExternalItemID,
			ExternalInstitutionID: exchanged.ExternalInstitutionID,
			InstitutionName:       metadata.Name,
			EncryptedAccessToken:  encrypted,
		})
		if err != nil {
			return err
		}

		for _, a := range apiAccounts {
			_, err := repos.Accounts().Create(ctx, account.CreateParams{
				InstitutionID:     inst.ID,
				ExternalAccountID: a.AccountID,
				Name:              a.DisplayName(),
				Type:              a.Type,
				Subtype:           a.Subtype,
				CurrentBalance:    a.Balances.Current,
				AvailableBalance:  a.Balances.Available,
				Currency:          a.Balances.Currency(),
			})
			if err != nil {
				return fmt.Errorf("failed to create account %s: %w", a.AccountID, err)
			}
		}

		created = inst
		return nil
	})
	if err != nil {
		log.Printf("User %s: failed to store institution for item %s: %v", userID, exchanged.ExternalItemID, err)
		return nil, err
	}

	log.Printf("User %s: Linked institution %d (%s) with %d accounts", userID, created.ID, created.InstitutionName, len(apiAccounts))
	return created, nil
}
