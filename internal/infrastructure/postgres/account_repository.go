package postgres

import (
	"context"
	"fmt"

	"budgetlink/internal/domain/account"
)

const accountColumns = `id, institution_id, external_account_id, name, type, subtype,
	current_balance, available_balance, currency, created_at, updated_at`

// AccountRepository implements the account.Repository interface for PostgreSQL
type AccountRepository struct {
	db Querier
}

var _ account.Repository = (*AccountRepository)(nil)

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db Querier) *AccountRepository {
	return &AccountRepository{db: db}
}

func scanAccount(row Row) (*account.Account, error) {
	var acc account.Account
	err := row.Scan(
		&acc.ID, &acc.InstitutionID, &acc.ExternalAccountID, &acc.Name, &acc.Type, &acc.Subtype,
		&acc.CurrentBalance, &acc.AvailableBalance, &acc.Currency, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acc, nil
}

// Create creates a new account
func (r *AccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.Account, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", account.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO accounts (institution_id, external_account_id, name, type, subtype, current_balance, available_balance, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + accountColumns

	acc, err := scanAccount(r.db.QueryRowContext(ctx, query,
		params.InstitutionID, params.ExternalAccountID, params.Name, params.Type, params.Subtype,
		params.CurrentBalance, params.AvailableBalance, params.Currency,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// ListByInstitutionID retrieves the accounts of one institution
func (r *AccountRepository) ListByInstitutionID(ctx context.Context, institutionID int64) ([]*account.Account, error) {
	query := `SELECT ` + accountColumns + `
		FROM accounts
		WHERE institution_id = $1
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, institutionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// UpdateBalances stores a refreshed balance snapshot
func (r *AccountRepository) UpdateBalances(ctx context.Context, externalAccountID string, balances account.Balances) error {
	query := `
		UPDATE accounts
		SET current_balance = $2, available_balance = $3, updated_at = NOW()
		WHERE external_account_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, externalAccountID, balances.Current, balances.Available)
	if err != nil {
		return fmt.Errorf("failed to update account balances: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return account.ErrAccountNotFound
	}

	return nil
}
