package openfinance

import (
	"context"
	"fmt"

	"budgetlink/internal/domain/institution"
)

// InstitutionSyncService runs one sync pass for an institution: balances
// first, then transactions. It does not touch the institution's status;
// the orchestrator records the outcome.
type InstitutionSyncService struct {
	institutions institution.Repository
	cipher       Cipher
	accountSync  *AccountSyncService
	reconciler   *Reconciler
}

// NewInstitutionSyncService creates a new institution sync service
func NewInstitutionSyncService(
	institutions institution.Repository,
	cipher Cipher,
	accountSync *AccountSyncService,
	reconciler *Reconciler,
) *InstitutionSyncService {
	return &InstitutionSyncService{
		institutions: institutions,
		cipher:       cipher,
		accountSync:  accountSync,
		reconciler:   reconciler,
	}
}

// SyncInstitution refreshes balances and reconciles transactions.
func (s *InstitutionSyncService) SyncInstitution(ctx context.Context, institutionID int64) (SyncResult, error) {
	result := SyncResult{InstitutionID: institutionID}

	inst, err := s.institutions.FindByID(ctx, institutionID)
	if err != nil {
		return result, err
	}
	if inst.IsArchived() {
		return result, ErrInstitutionArchived
	}

	accessToken, err := s.cipher.Decrypt(inst.EncryptedAccessToken)
	if err != nil {
		return result, fmt.Errorf("failed to decrypt access token: %w", err)
	}

	result.AccountsRefreshed, err = s.accountSync.RefreshBalances(ctx, institutionID, accessToken)
	if err != nil {
		return result, err
	}

	result.TransactionsAdded, err = s.reconciler.Reconcile(ctx, institutionID, accessToken)
	if err != nil {
		return result, err
	}

	return result, nil
}
