package openfinance

import (
	"context"
)

// ClientInterface defines the methods required from the aggregator API client
type ClientInterface interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error)
	GetInstitutionMetadata(ctx context.Context, externalInstitutionID string) (*InstitutionMetadata, error)
	GetAccounts(ctx context.Context, accessToken string) ([]Account, error)
	// GetTransactions returns one page. An empty cursor starts from the beginning of the range.
	GetTransactions(ctx context.Context, accessToken string, dateRange DateRange, cursor string) (*TransactionPage, error)
}
