package openfinance

import (
	"context"
	"fmt"
	"log"
	"time"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/transaction"
	ofclient "budgetlink/internal/infrastructure/openfinance"
)

// DefaultSyncWindowDays is how far back each reconciliation looks.
const DefaultSyncWindowDays = 30

// Reconciler inserts aggregator transactions that are not stored yet.
// Stored transactions are never modified or deleted.
type Reconciler struct {
	client       ofclient.ClientInterface
	accounts     account.Repository
	transactions transaction.Repository
	windowDays   int
	now          func() time.Time
}

// NewReconciler creates a new reconciler
func NewReconciler(
	client ofclient.ClientInterface,
	accounts account.Repository,
	transactions transaction.Repository,
	windowDays int,
) *Reconciler {
	if windowDays <= 0 {
		windowDays = DefaultSyncWindowDays
	}
	return &Reconciler{
		client:       client,
		accounts:     accounts,
		transactions: transactions,
		windowDays:   windowDays,
		now:          time.Now,
	}
}

// Window returns the date range the next reconciliation will cover.
func (r *Reconciler) Window() ofclient.DateRange {
	now := r.now().UTC()
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return ofclient.DateRange{
		Start: end.AddDate(0, 0, -r.windowDays),
		End:   end,
	}
}

// Reconcile pages through the institution's transactions in the sync window
// and inserts the ones whose external id is new. It returns the number of
// rows inserted.
func (r *Reconciler) Reconcile(ctx context.Context, institutionID int64, accessToken string) (int, error) {
	accounts, err := r.accounts.ListByInstitutionID(ctx, institutionID)
	if err != nil {
		return 0, fmt.Errorf("failed to list accounts: %w", err)
	}
	accountIDs := make(map[string]int64, len(accounts))
	for _, a := range accounts {
		accountIDs[a.ExternalAccountID] = a.ID
	}

	window := r.Window()
	seenCursors := make(map[string]struct{})
	cursor := ""
	inserted, skipped := 0, 0

	for {
		page, err := r.client.GetTransactions(ctx, accessToken, window, cursor)
		if err != nil {
			return inserted, fmt.Errorf("failed to fetch transactions: %w", err)
		}

		n, s, err := r.storePage(ctx, institutionID, accountIDs, page.Transactions)
		inserted += n
		skipped += s
		if err != nil {
			return inserted, err
		}

		if !page.HasMore {
			break
		}
		if page.NextCursor == "" {
			return inserted, fmt.Errorf("%w: empty cursor with more pages", ErrCursorLoop)
		}
		if _, seen := seenCursors[page.NextCursor]; seen {
			return inserted, fmt.Errorf("%w: %q", ErrCursorLoop, page.NextCursor)
		}
		seenCursors[page.NextCursor] = struct{}{}
		cursor = page.NextCursor
	}

	log.Printf("Institution %d: reconciled %s..%s - Inserted: %d, Skipped: %d",
		institutionID, window.Start.Format("2006-01-02"), window.End.Format("2006-01-02"), inserted, skipped)
	return inserted, nil
}

// storePage inserts the new transactions of one page. It returns how many
// were inserted and how many were skipped as unusable.
func (r *Reconciler) storePage(ctx context.Context, institutionID int64, accountIDs map[string]int64, txs []ofclient.Transaction) (int, int, error) {
	if len(txs) == 0 {
		return 0, 0, nil
	}

	ids := make([]string, 0, len(txs))
	for _, tx := range txs {
		ids = append(ids, tx.TransactionID)
	}
	existing, err := r.transactions.FindExistingExternalIDs(ctx, institutionID, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to look up existing transactions: %w", err)
	}

	inserted, skipped := 0, 0
	for _, tx := range txs {
		if _, ok := existing[tx.TransactionID]; ok {
			continue
		}

		accountID, ok := accountIDs[tx.AccountID]
		if !ok {
			log.Printf("Institution %d: skipping transaction %s for unknown account %s", institutionID, tx.TransactionID, tx.AccountID)
			skipped++
			continue
		}

		params, err := toCreateParams(accountID, tx)
		if err != nil {
			log.Printf("Institution %d: skipping transaction %s: %v", institutionID, tx.TransactionID, err)
			skipped++
			continue
		}

		created, err := r.transactions.CreateIfAbsent(ctx, params)
		if err != nil {
			return inserted, skipped, fmt.Errorf("failed to store transaction %s: %w", tx.TransactionID, err)
		}
		if created {
			inserted++
		}
		existing[tx.TransactionID] = struct{}{}
	}
	return inserted, skipped, nil
}

// toCreateParams maps an aggregator transaction. The aggregator reports
// outflows as positive amounts; stored amounts are negative for outflows.
func toCreateParams(accountID int64, tx ofclient.Transaction) (transaction.CreateParams, error) {
	posted, err := tx.GetDate()
	if err != nil {
		return transaction.CreateParams{}, err
	}

	amount := tx.Amount.Neg()
	return transaction.CreateParams{
		AccountID:             accountID,
		ExternalTransactionID: tx.TransactionID,
		Amount:                amount,
		Kind:                  transaction.KindForAmount(amount),
		Currency:              tx.Currency(),
		PostedDate:            posted,
		MerchantName:          tx.Merchant(),
		Category:              tx.CategoryPath(),
		Pending:               tx.Pending,
	}, nil
}
