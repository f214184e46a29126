package openfinance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/transaction"
	"budgetlink/internal/domain/uow"
	ofclient "budgetlink/internal/infrastructure/openfinance"
)

// MockClient implements ofclient.ClientInterface
type MockClient struct {
	ExchangePublicTokenFunc    func(ctx context.Context, publicToken string) (*ofclient.ExchangeResult, error)
	GetInstitutionMetadataFunc func(ctx context.Context, id string) (*ofclient.InstitutionMetadata, error)
	GetAccountsFunc            func(ctx context.Context, accessToken string) ([]ofclient.Account, error)
	GetTransactionsFunc        func(ctx context.Context, accessToken string, dateRange ofclient.DateRange, cursor string) (*ofclient.TransactionPage, error)
}

func (m *MockClient) ExchangePublicToken(ctx context.Context, publicToken string) (*ofclient.ExchangeResult, error) {
	if m.ExchangePublicTokenFunc != nil {
		return m.ExchangePublicTokenFunc(ctx, publicToken)
	}
	return &ofclient.ExchangeResult{AccessToken: "access-1", ExternalItemID: "item-1", ExternalInstitutionID: "ins_3"}, nil
}

func (m *MockClient) GetInstitutionMetadata(ctx context.Context, id string) (*ofclient.InstitutionMetadata, error) {
	if m.GetInstitutionMetadataFunc != nil {
		return m.GetInstitutionMetadataFunc(ctx, id)
	}
	return &ofclient.InstitutionMetadata{InstitutionID: id, Name: "First Platypus Bank"}, nil
}

func (m *MockClient) GetAccounts(ctx context.Context, accessToken string) ([]ofclient.Account, error) {
	if m.GetAccountsFunc != nil {
		return m.GetAccountsFunc(ctx, accessToken)
	}
	return nil, nil
}

func (m *MockClient) GetTransactions(ctx context.Context, accessToken string, dateRange ofclient.DateRange, cursor string) (*ofclient.TransactionPage, error) {
	if m.GetTransactionsFunc != nil {
		return m.GetTransactionsFunc(ctx, accessToken, dateRange, cursor)
	}
	return &ofclient.TransactionPage{}, nil
}

// fakeCipher prefixes instead of encrypting.
type fakeCipher struct {
	err error
}

func (c fakeCipher) Encrypt(plaintext string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	return "enc:" + plaintext, nil
}

func (c fakeCipher) Decrypt(ciphertext string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	if !strings.HasPrefix(ciphertext, "enc:") {
		return "", errors.New("not encrypted")
	}
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

type fakeNotifier struct {
	mu       sync.Mutex
	notified []int64
}

func (n *fakeNotifier) NotifyRelinkRequired(ctx context.Context, inst *institution.Institution) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notified = append(n.notified, inst.ID)
	return nil
}

func (n *fakeNotifier) calls() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.notified...)
}

// fakeStore is an in-memory database. Transactions are serialized and a
// failed transaction restores the snapshot taken when it began.
type fakeStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	nextID       int64
	institutions map[int64]institution.Institution
	jobs         map[int64]job.Job
	accounts     map[int64]account.Account
	transactions map[string]transaction.Transaction

	// failures injects an error into the named repository method.
	failures map[string]error

	// now is the database clock.
	now func() time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		institutions: make(map[int64]institution.Institution),
		jobs:         make(map[int64]job.Job),
		accounts:     make(map[int64]account.Account),
		transactions: make(map[string]transaction.Transaction),
		failures:     make(map[string]error),
		now:          time.Now,
	}
}

type fakeSnapshot struct {
	nextID       int64
	institutions map[int64]institution.Institution
	jobs         map[int64]job.Job
	accounts     map[int64]account.Account
	transactions map[string]transaction.Transaction
}

func (s *fakeStore) snapshot() fakeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := fakeSnapshot{
		nextID:       s.nextID,
		institutions: make(map[int64]institution.Institution, len(s.institutions)),
		jobs:         make(map[int64]job.Job, len(s.jobs)),
		accounts:     make(map[int64]account.Account, len(s.accounts)),
		transactions: make(map[string]transaction.Transaction, len(s.transactions)),
	}
	for k, v := range s.institutions {
		snap.institutions[k] = v
	}
	for k, v := range s.jobs {
		snap.jobs[k] = v
	}
	for k, v := range s.accounts {
		snap.accounts[k] = v
	}
	for k, v := range s.transactions {
		snap.transactions[k] = v
	}
	return snap
}

func (s *fakeStore) restore(snap fakeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID = snap.nextID
	s.institutions = snap.institutions
	s.jobs = snap.jobs
	s.accounts = snap.accounts
	s.transactions = snap.transactions
}

func (s *fakeStore) fail(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method] = err
}

// failure must be called with mu held.
func (s *fakeStore) failure(method string) error {
	return s.failures[method]
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) seedInstitution(userID string, status institution.SyncStatus) *institution.Institution {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	id := s.id()
	inst := institution.Institution{
		ID:                    id,
		UserID:                userID,
		ExternalItemID:        fmt.Sprintf("seed-item-%d", id),
		ExternalInstitutionID: "ins_3",
		InstitutionName:       "First Platypus Bank",
		EncryptedAccessToken:  "enc:access-1",
		SyncStatus:            status,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.institutions[inst.ID] = inst
	return &inst
}

func (s *fakeStore) seedAccount(institutionID int64, externalID string) *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := account.Account{ID: s.id(), InstitutionID: institutionID, ExternalAccountID: externalID, Name: externalID}
	s.accounts[acc.ID] = acc
	return &acc
}

func (s *fakeStore) institution(id int64) institution.Institution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.institutions[id]
}

func (s *fakeStore) jobList() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		list = append(list, j)
	}
	sort.Slice(list, func(a, b int) bool { return list[a].ID < list[b].ID })
	return list
}

func (s *fakeStore) counts() (institutions, accounts, transactions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.institutions), len(s.accounts), len(s.transactions)
}

func (s *fakeStore) factory() uow.Factory {
	return func() uow.UnitOfWork {
		return &fakeUnitOfWork{store: s}
	}
}

type fakeUnitOfWork struct {
	store  *fakeStore
	mu     sync.Mutex
	active bool
}

func (u *fakeUnitOfWork) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, repos uow.Repositories) error) error {
	u.mu.Lock()
	if u.active {
		u.mu.Unlock()
		return uow.ErrTransactionActive
	}
	u.active = true
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.active = false
		u.mu.Unlock()
	}()

	u.store.txMu.Lock()
	defer u.store.txMu.Unlock()

	snap := u.store.snapshot()
	if err := fn(ctx, fakeRepositories{store: u.store}); err != nil {
		u.store.restore(snap)
		return err
	}
	return nil
}

type fakeRepositories struct {
	store *fakeStore
}

func (r fakeRepositories) Institutions() institution.Repository { return &fakeInstitutionRepo{r.store} }
func (r fakeRepositories) BackgroundJobs() job.Repository       { return &fakeJobRepo{r.store} }
func (r fakeRepositories) Accounts() account.Repository         { return &fakeAccountRepo{r.store} }

type fakeInstitutionRepo struct{ s *fakeStore }

func (r *fakeInstitutionRepo) Create(ctx context.Context, params institution.CreateParams) (*institution.Institution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("institutions.Create"); err != nil {
		return nil, err
	}
	for _, inst := range r.s.institutions {
		if inst.ExternalItemID == params.ExternalItemID {
			return nil, institution.ErrDuplicateItem
		}
	}
	now := time.Now()
	inst := institution.Institution{
		ID:                    r.s.id(),
		UserID:                params.UserID,
		ExternalItemID:        params.ExternalItemID,
		ExternalInstitutionID: params.ExternalInstitutionID,
		InstitutionName:       params.InstitutionName,
		EncryptedAccessToken:  params.EncryptedAccessToken,
		SyncStatus:            institution.StatusGood,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	r.s.institutions[inst.ID] = inst
	return &inst, nil
}

func (r *fakeInstitutionRepo) FindByID(ctx context.Context, id int64) (*institution.Institution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.institutions[id]
	if !ok {
		return nil, institution.ErrInstitutionNotFound
	}
	return &inst, nil
}

func (r *fakeInstitutionRepo) FindByIDAndUserID(ctx context.Context, id int64, userID string) (*institution.Institution, error) {
	inst, err := r.LockByID(ctx, id)
	if err != nil || inst.UserID != userID {
		return nil, institution.ErrInstitutionNotFound
	}
	return inst, nil
}

func (r *fakeInstitutionRepo) FindByUserID(ctx context.Context, userID string) ([]*institution.Institution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*institution.Institution
	for _, inst := range r.s.institutions {
		if inst.UserID == userID && inst.ArchivedAt == nil {
			inst := inst
			list = append(list, &inst)
		}
	}
	return list, nil
}

func (r *fakeInstitutionRepo) FindByExternalItemID(ctx context.Context, externalItemID string) (*institution.Institution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, inst := range r.s.institutions {
		if inst.ExternalItemID == externalItemID {
			return &inst, nil
		}
	}
	return nil, institution.ErrInstitutionNotFound
}

func (r *fakeInstitutionRepo) Update(ctx context.Context, id int64, params institution.UpdateParams) (*institution.Institution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("institutions.Update"); err != nil {
		return nil, err
	}
	inst, ok := r.s.institutions[id]
	if !ok || inst.ArchivedAt != nil {
		return nil, institution.ErrInstitutionNotFound
	}
	if params.InstitutionName != nil {
		inst.InstitutionName = *params.InstitutionName
	}
	if params.EncryptedAccessToken != nil {
		inst.EncryptedAccessToken = *params.EncryptedAccessToken
	}
	if params.SyncStatus != nil {
		inst.SyncStatus = *params.SyncStatus
	}
	if params.LastSuccessfulSync != nil {
		t := *params.LastSuccessfulSync
		inst.LastSuccessfulSync = &t
	}
	if params.ClearSyncError {
		inst.LastSyncErrorMessage = nil
	} else if params.LastSyncErrorMessage != nil {
		msg := *params.LastSyncErrorMessage
		inst.LastSyncErrorMessage = &msg
	}
	inst.UpdatedAt = time.Now()
	r.s.institutions[id] = inst
	return &inst, nil
}

func (r *fakeInstitutionRepo) Archive(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	inst, ok := r.s.institutions[id]
	if !ok || inst.ArchivedAt != nil {
		return institution.ErrInstitutionNotFound
	}
	now := time.Now()
	inst.ArchivedAt = &now
	r.s.institutions[id] = inst
	return nil
}

func (r *fakeInstitutionRepo) HasReachedItemLimit(ctx context.Context, userID string, max int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, inst := range r.s.institutions {
		if inst.UserID == userID && inst.ArchivedAt == nil {
			count++
		}
	}
	return count >= max, nil
}

func (r *fakeInstitutionRepo) LockByID(ctx context.Context, id int64) (*institution.Institution, error) {
	inst, err := r.FindByID(ctx, id)
	if err != nil || inst.ArchivedAt != nil {
		return nil, institution.ErrInstitutionNotFound
	}
	return inst, nil
}

func (r *fakeInstitutionRepo) LockUser(ctx context.Context, userID string) error { return nil }

func (r *fakeInstitutionRepo) ListActiveIDs(ctx context.Context) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, inst := range r.s.institutions {
		if inst.ArchivedAt == nil {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids, nil
}

type fakeJobRepo struct{ s *fakeStore }

func (r *fakeJobRepo) Create(ctx context.Context, params job.CreateParams) (*job.Job, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("jobs.Create"); err != nil {
		return nil, err
	}
	j := job.Job{
		ID:        r.s.id(),
		JobType:   params.JobType,
		Payload:   params.Payload,
		Status:    job.StatusQueued,
		CreatedAt: time.Now(),
	}
	r.s.jobs[j.ID] = j
	return &j, nil
}

func (r *fakeJobRepo) FindByID(ctx context.Context, id int64) (*job.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return nil, job.ErrJobNotFound
	}
	return &j, nil
}

func (r *fakeJobRepo) FindNextAvailable(ctx context.Context, jobType string) (*job.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var next *job.Job
	for _, j := range r.s.jobs {
		if j.Status != job.StatusQueued || (jobType != "" && j.JobType != jobType) {
			continue
		}
		if next == nil || j.ID < next.ID {
			j := j
			next = &j
		}
	}
	return next, nil
}

func (r *fakeJobRepo) move(id int64, from, to job.Status, mutate func(*job.Job)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	j, ok := r.s.jobs[id]
	if !ok {
		return job.ErrJobNotFound
	}
	if j.Status != from {
		return job.ErrInvalidTransition
	}
	j.Status = to
	if mutate != nil {
		mutate(&j)
	}
	r.s.jobs[id] = j
	return nil
}

func (r *fakeJobRepo) MarkAsRunning(ctx context.Context, id int64) (*job.Job, error) {
	err := r.move(id, job.StatusQueued, job.StatusRunning, func(j *job.Job) {
		now := r.s.now()
		j.Attempts++
		j.LastAttemptAt = &now
	})
	if err != nil {
		return nil, err
	}
	return r.FindByID(ctx, id)
}

func (r *fakeJobRepo) MarkAsCompleted(ctx context.Context, id int64) error {
	return r.move(id, job.StatusRunning, job.StatusCompleted, nil)
}

func (r *fakeJobRepo) MarkAsFailed(ctx context.Context, id int64, errMsg string) error {
	return r.move(id, job.StatusRunning, job.StatusFailed, func(j *job.Job) {
		j.LastError = &errMsg
	})
}

func (r *fakeJobRepo) FailStale(ctx context.Context, cutoff time.Time, reason string) ([]*job.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var failed []*job.Job
	for id, j := range r.s.jobs {
		if j.Status != job.StatusRunning || j.LastAttemptAt == nil || !j.LastAttemptAt.Before(cutoff) {
			continue
		}
		j.Status = job.StatusFailed
		j.LastError = &reason
		r.s.jobs[id] = j
		j := j
		failed = append(failed, &j)
	}
	return failed, nil
}

func (r *fakeJobRepo) ListByStatus(ctx context.Context, status job.Status, limit int) ([]*job.Job, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*job.Job
	for _, j := range r.s.jobs {
		if j.Status == status && len(list) < limit {
			j := j
			list = append(list, &j)
		}
	}
	return list, nil
}

// setJobAttempt backdates a job's last attempt.
func (s *fakeStore) setJobAttempt(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[id]
	j.LastAttemptAt = &at
	s.jobs[id] = j
}

type fakeAccountRepo struct{ s *fakeStore }

func (r *fakeAccountRepo) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.failure("accounts.Create"); err != nil {
		return nil, err
	}
	acc := account.Account{
		ID:                r.s.id(),
		InstitutionID:     params.InstitutionID,
		ExternalAccountID: params.ExternalAccountID,
		Name:              params.Name,
		Type:              params.Type,
		Subtype:           params.Subtype,
		CurrentBalance:    params.CurrentBalance,
		AvailableBalance:  params.AvailableBalance,
		Currency:          params.Currency,
	}
	r.s.accounts[acc.ID] = acc
	return &acc, nil
}

func (r *fakeAccountRepo) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var list []*account.Account
	for _, acc := range r.s.accounts {
		if acc.InstitutionID == institutionID {
			acc := acc
			list = append(list, &acc)
		}
	}
	sort.Slice(list, func(a, b int) bool { return list[a].ID < list[b].ID })
	return list, nil
}

func (r *fakeAccountRepo) UpdateBalances(ctx context.Context, externalAccountID string, balances account.Balances) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, acc := range r.s.accounts {
		if acc.ExternalAccountID == externalAccountID {
			acc.CurrentBalance = balances.Current
			acc.AvailableBalance = balances.Available
			r.s.accounts[id] = acc
			return nil
		}
	}
	return account.ErrAccountNotFound
}

func (s *fakeStore) accountByExternalID(externalID string) (account.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if acc.ExternalAccountID == externalID {
			return acc, true
		}
	}
	return account.Account{}, false
}

type fakeTransactionRepo struct{ s *fakeStore }

func (r *fakeTransactionRepo) FindExistingExternalIDs(ctx context.Context, institutionID int64, externalIDs []string) (map[string]struct{}, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing := make(map[string]struct{})
	for _, id := range externalIDs {
		if tx, ok := r.s.transactions[id]; ok && r.s.accounts[tx.AccountID].InstitutionID == institutionID {
			existing[id] = struct{}{}
		}
	}
	return existing, nil
}

func (r *fakeTransactionRepo) CreateIfAbsent(ctx context.Context, params transaction.CreateParams) (bool, error) {
	if err := params.Validate(); err != nil {
		return false, err
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.transactions[params.ExternalTransactionID]; ok {
		return false, nil
	}
	r.s.transactions[params.ExternalTransactionID] = transaction.Transaction{
		ID:                    r.s.id(),
		AccountID:             params.AccountID,
		ExternalTransactionID: params.ExternalTransactionID,
		Amount:                params.Amount,
		Kind:                  params.Kind,
		Currency:              params.Currency,
		PostedDate:            params.PostedDate,
		MerchantName:          params.MerchantName,
		Category:              params.Category,
		Pending:               params.Pending,
	}
	return true, nil
}

func (r *fakeTransactionRepo) CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, tx := range r.s.transactions {
		if r.s.accounts[tx.AccountID].InstitutionID == institutionID {
			n++
		}
	}
	return n, nil
}

func (r *fakeTransactionRepo) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*transaction.Transaction
	for _, tx := range r.s.transactions {
		if r.s.accounts[tx.AccountID].InstitutionID == institutionID {
			tx := tx
			out = append(out, &tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PostedDate.Equal(out[j].PostedDate) {
			return out[i].PostedDate.After(out[j].PostedDate)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) transaction(externalID string) (transaction.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, ok := s.transactions[externalID]
	return tx, ok
}
