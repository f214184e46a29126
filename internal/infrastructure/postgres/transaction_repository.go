package postgres

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"budgetlink/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db Querier
}

var _ transaction.Repository = (*TransactionRepository)(nil)

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db Querier) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// FindExistingExternalIDs returns which of externalIDs are already stored
// under the institution's accounts.
func (r *TransactionRepository) FindExistingExternalIDs(ctx context.Context, institutionID int64, externalIDs []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(externalIDs) == 0 {
		return existing, nil
	}

	query := `
		SELECT t.external_transaction_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.institution_id = $1 AND t.external_transaction_id = ANY($2)
	`

	rows, err := r.db.QueryContext(ctx, query, institutionID, pq.Array(externalIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to look up transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		existing[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction ids: %w", err)
	}
	return existing, nil
}

// CreateIfAbsent inserts the transaction unless its external id is already stored
func (r *TransactionRepository) CreateIfAbsent(ctx context.Context, params transaction.CreateParams) (bool, error) {
	if err := params.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", transaction.ErrInvalidInput, err)
	}

	query := `
		INSERT INTO transactions (
			account_id, external_transaction_id, amount, kind, currency,
			posted_date, merchant_name, category, pending
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_transaction_id) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query,
		params.AccountID, params.ExternalTransactionID, params.Amount, string(params.Kind), params.Currency,
		params.PostedDate, nullString(params.MerchantName), nullString(params.Category), params.Pending,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return rows > 0, nil
}

// CountByInstitutionID counts stored transactions across the institution's accounts
func (r *TransactionRepository) CountByInstitutionID(ctx context.Context, institutionID int64) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.institution_id = $1
	`

	var count int64
	if err := r.db.QueryRowContext(ctx, query, institutionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// ListByInstitutionID returns a page of the institution's transactions, newest first
func (r *TransactionRepository) ListByInstitutionID(ctx context.Context, institutionID int64, limit, offset int) ([]*transaction.Transaction, error) {
	query := `
		SELECT t.id, t.account_id, t.external_transaction_id, t.amount, t.kind, t.currency,
		       t.posted_date, t.merchant_name, t.category, t.pending, t.created_at
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE a.institution_id = $1
		ORDER BY t.posted_date DESC, t.id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, institutionID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*transaction.Transaction, 0)
	for rows.Next() {
		var t transaction.Transaction
		if err := rows.Scan(
			&t.ID, &t.AccountID, &t.ExternalTransactionID, &t.Amount, &t.Kind, &t.Currency,
			&t.PostedDate, &t.MerchantName, &t.Category, &t.Pending, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}
	return transactions, nil
}
