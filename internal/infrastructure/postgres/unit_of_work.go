package postgres

import (
	"context"
	"database/sql"
	"sync"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
	"budgetlink/internal/domain/uow"
)

// UnitOfWork binds the institution, job and account repositories to a single
// transaction for the duration of one composite operation.
type UnitOfWork struct {
	txm *TxManager

	mu     sync.Mutex
	active bool
}

var _ uow.UnitOfWork = (*UnitOfWork)(nil)

// NewUnitOfWork creates a unit of work backed by txm.
func NewUnitOfWork(txm *TxManager) *UnitOfWork {
	return &UnitOfWork{txm: txm}
}

// NewUnitOfWorkFactory returns a uow.Factory producing fresh instances.
func NewUnitOfWorkFactory(txm *TxManager) uow.Factory {
	return func() uow.UnitOfWork {
		return NewUnitOfWork(txm)
	}
}

// ExecuteTransaction runs fn with repositories sharing one transaction.
// Nested or concurrent calls on the same instance fail with uow.ErrTransactionActive.
func (u *UnitOfWork) ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, repos uow.Repositories) error) error {
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

	return u.txm.ExecuteInTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		repos := newTxRepositories(tx)
		defer repos.release()

		return fn(ctx, repos)
	})
}

// Active reports whether a transaction is in flight.
func (u *UnitOfWork) Active() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.active
}

type txRepositories struct {
	institutions *InstitutionRepository
	jobs         *JobRepository
	accounts     *AccountRepository
}

func newTxRepositories(tx *Tx) *txRepositories {
	return &txRepositories{
		institutions: NewInstitutionRepository(tx),
		jobs:         NewJobRepository(tx),
		accounts:     NewAccountRepository(tx),
	}
}

// release points every handle at closedQuerier so a handle kept past the
// transaction fails instead of silently running in autocommit.
func (r *txRepositories) release() {
	r.institutions.db = closedQuerier{}
	r.jobs.db = closedQuerier{}
	r.accounts.db = closedQuerier{}
}

func (r *txRepositories) Institutions() institution.Repository { return r.institutions }
func (r *txRepositories) BackgroundJobs() job.Repository       { return r.jobs }
func (r *txRepositories) Accounts() account.Repository         { return r.accounts }

type closedQuerier struct{}

func (closedQuerier) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, uow.ErrNoActiveTransaction
}

func (closedQuerier) QueryRowContext(context.Context, string, ...any) Row {
	return errRow{err: uow.ErrNoActiveTransaction}
}

func (closedQuerier) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, uow.ErrNoActiveTransaction
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
