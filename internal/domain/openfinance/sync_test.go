package openfinance

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetlink/internal/domain/institution"
	ofclient "budgetlink/internal/infrastructure/openfinance"
)

func newTestSyncService(store *fakeStore, client *MockClient, cipher Cipher) *InstitutionSyncService {
	return NewInstitutionSyncService(
		&fakeInstitutionRepo{store},
		cipher,
		NewAccountSyncService(client, &fakeAccountRepo{store}),
		newTestReconciler(store, client),
	)
}

func TestSyncInstitution(t *testing.T) {
	store := newFakeStore()
	inst := store.seedInstitution("user-1", institution.StatusSyncing)
	store.seedAccount(inst.ID, "acc-1")

	client := &MockClient{
		GetAccountsFunc: func(ctx context.Context, token string) ([]ofclient.Account, error) {
			assert.Equal(t, "access-1", token)
			return []ofclient.Account{{AccountID: "acc-1"}}, nil
		},
		GetTransactionsFunc: func(ctx context.Context, token string, dateRange ofclient.DateRange, cursor string) (*ofclient.TransactionPage, error) {
			return &ofclient.TransactionPage{Transactions: []ofclient.Transaction{
				providerTx("t1", "acc-1", "5", "2026-03-01"),
			}}, nil
		},
	}
	svc := newTestSyncService(store, client, fakeCipher{})

	result, err := svc.SyncInstitution(context.Background(), inst.ID)

	require.NoError(t, err)
	assert.Equal(t, SyncResult{InstitutionID: inst.ID, AccountsRefreshed: 1, TransactionsAdded: 1}, result)
}

func TestSyncInstitution_Archived(t *testing.T) {
	store := newFakeStore()
	inst := store.seedInstitution("user-1", institution.StatusSyncing)
	require.NoError(t, (&fakeInstitutionRepo{store}).Archive(context.Background(), inst.ID))
	svc := newTestSyncService(store, &MockClient{}, fakeCipher{})

	_, err := svc.SyncInstitution(context.Background(), inst.ID)

	assert.ErrorIs(t, err, ErrInstitutionArchived)
}

func TestSyncInstitution_DecryptFailure(t *testing.T) {
	store := newFakeStore()
	inst := store.seedInstitution("user-1", institution.StatusSyncing)
	called := false
	client := &MockClient{GetAccountsFunc: func(ctx context.Context, token string) ([]ofclient.Account, error) {
		called = true
		return nil, nil
	}}
	svc := newTestSyncService(store, client, fakeCipher{err: errors.New("authentication failed")})

	_, err := svc.SyncInstitution(context.Background(), inst.ID)

	assert.Error(t, err)
	assert.False(t, called)
}
