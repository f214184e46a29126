package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log"
)

// TxManager runs units of work against one connection checked out of the pool.
type TxManager struct {
	db *sql.DB
}

// NewTxManager creates a transaction manager over the shared pool.
func NewTxManager(db *DB) *TxManager {
	return &TxManager{db: db.DB}
}

// ExecuteInTransaction checks out a connection, begins a transaction, runs fn
// and commits. If fn fails or panics the transaction is rolled back; a failed
// rollback is logged and fn's error is returned unchanged. The connection goes
// back to the pool on every path.
func (m *TxManager) ExecuteInTransaction(ctx context.Context, fn func(ctx context.Context, tx *Tx) error) (err error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			log.Printf("Warning: failed to release connection: %v", closeErr)
		}
	}()

	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &Tx{tx: sqlTx}

	defer func() {
		if p := recover(); p != nil {
			rollback(sqlTx)
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		rollback(sqlTx)
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.Printf("Error rolling back transaction: %v", err)
	}
}

// InTransaction is ExecuteInTransaction for operations that produce a value.
func InTransaction[T any](ctx context.Context, m *TxManager, fn func(ctx context.Context, tx *Tx) (T, error)) (T, error) {
	var result T
	err := m.ExecuteInTransaction(ctx, func(ctx context.Context, tx *Tx) error {
		var err error
		result, err = fn(ctx, tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
