// Package uow defines the unit-of-work contract used by composite writes.
package uow

import (
	"context"
	"errors"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/job"
)

var (
	// ErrTransactionActive is returned when ExecuteTransaction is called on a unit
	// of work that already has a transaction in flight.
	ErrTransactionActive = errors.New("unit of work already has an active transaction")
	// ErrNoActiveTransaction is returned by repository handles used after their
	// transaction finished.
	ErrNoActiveTransaction = errors.New("unit of work has no active transaction")
)

// Repositories are bound to one database transaction.
type Repositories interface {
	Institutions() institution.Repository
	BackgroundJobs() job.Repository
	Accounts() account.Repository
}

// UnitOfWork runs fn inside one transaction. fn's error rolls everything back.
type UnitOfWork interface {
	ExecuteTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

// Factory returns a fresh UnitOfWork. One instance serves one composite operation.
type Factory func() UnitOfWork
