package openfinance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultRatePerSecond = 5
	defaultPageSize      = 250
	maxErrorBodyLen      = 512

	exchangePath     = "/item/public_token/exchange"
	itemPath         = "/item/get"
	institutionPath  = "/institutions/get_by_id"
	accountsPath     = "/accounts/get"
	transactionsPath = "/transactions/get"
)

// Config holds the aggregator connection settings
type Config struct {
	BaseURL       string
	ClientID      string
	Secret        string
	Timeout       time.Duration
	RatePerSecond float64
	PageSize      int
}

// Client handles communication with the aggregator API
type Client struct {
	httpClient  *http.Client
	baseURL     string
	credentials credentials
	limiter     *rate.Limiter
	pageSize    int
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// NewClient creates a new aggregator API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RatePerSecond
	if rps <= 0 {
		rps = defaultRatePerSecond
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	return &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:     cfg.BaseURL,
		credentials: credentials{ClientID: cfg.ClientID, Secret: cfg.Secret},
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		pageSize:    pageSize,
	}
}

// credentials are sent in every request body.
type credentials struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

type accessTokenRequest struct {
	credentials
	AccessToken string `json:"access_token"`
}

type exchangeRequest struct {
	credentials
	PublicToken string `json:"public_token"`
}

type exchangeResponse struct {
	AccessToken string `json:"access_token"`
	ItemID      string `json:"item_id"`
}

type itemResponse struct {
	Item struct {
		ItemID        string `json:"item_id"`
		InstitutionID string `json:"institution_id"`
	} `json:"item"`
}

type institutionRequest struct {
	credentials
	InstitutionID string   `json:"institution_id"`
	CountryCodes  []string `json:"country_codes"`
}

type institutionResponse struct {
	Institution InstitutionMetadata `json:"institution"`
}

type accountsResponse struct {
	Accounts []Account `json:"accounts"`
}

type transactionsRequest struct {
	credentials
	AccessToken string              `json:"access_token"`
	StartDate   string              `json:"start_date"`
	EndDate     string              `json:"end_date"`
	Options     transactionsOptions `json:"options"`
}

type transactionsOptions struct {
	Count  int `json:"count"`
	Offset int `json:"offset"`
}

type transactionsResponse struct {
	Transactions      []Transaction `json:"transactions"`
	TotalTransactions int           `json:"total_transactions"`
}

// ExchangePublicToken trades a link token for a long-lived access token and
// resolves which institution the item belongs to.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (*ExchangeResult, error) {
	var exchanged exchangeResponse
	if err := c.post(ctx, exchangePath, exchangeRequest{credentials: c.credentials, PublicToken: publicToken}, &exchanged); err != nil {
		return nil, err
	}
	if exchanged.AccessToken == "" || exchanged.ItemID == "" {
		return nil, fmt.Errorf("exchange response missing access token or item id")
	}

	var item itemResponse
	if err := c.post(ctx, itemPath, accessTokenRequest{credentials: c.credentials, AccessToken: exchanged.AccessToken}, &item); err != nil {
		return nil, err
	}

	return &ExchangeResult{
		AccessToken:           exchanged.AccessToken,
		ExternalItemID:        exchanged.ItemID,
		ExternalInstitutionID: item.Item.InstitutionID,
	}, nil
}

// GetInstitutionMetadata fetches the display metadata of an institution
func (c *Client) GetInstitutionMetadata(ctx context.Context, externalInstitutionID string) (*InstitutionMetadata, error) {
	req := institutionRequest{
		credentials:   c.credentials,
		InstitutionID: externalInstitutionID,
		CountryCodes:  []string{"US"},
	}

	var resp institutionResponse
	if err := c.post(ctx, institutionPath, req, &resp); err != nil {
		return nil, err
	}
	if resp.Institution.Name == "" {
		return nil, fmt.Errorf("institution %s has no name", externalInstitutionID)
	}
	return &resp.Institution, nil
}

// GetAccounts fetches the accounts and balances of an item
func (c *Client) GetAccounts(ctx context.Context, accessToken string) ([]Account, error) {
	var resp accountsResponse
	if err := c.post(ctx, accountsPath, accessTokenRequest{credentials: c.credentials, AccessToken: accessToken}, &resp); err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// GetTransactions fetches one page of transactions. The cursor is the offset
// of the page within the date range.
func (c *Client) GetTransactions(ctx context.Context, accessToken string, dateRange DateRange, cursor string) (*TransactionPage, error) {
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid transactions cursor %q", cursor)
		}
		offset = n
	}

	req := transactionsRequest{
		credentials: c.credentials,
		AccessToken: accessToken,
		StartDate:   dateRange.Start.Format(dateLayout),
		EndDate:     dateRange.End.Format(dateLayout),
		Options:     transactionsOptions{Count: c.pageSize, Offset: offset},
	}

	var resp transactionsResponse
	if err := c.post(ctx, transactionsPath, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Transactions) == 0 && offset < resp.TotalTransactions {
		return nil, fmt.Errorf("%w: offset %d of %d", ErrShortPage, offset, resp.TotalTransactions)
	}

	next := offset + len(resp.Transactions)
	page := &TransactionPage{
		Transactions: resp.Transactions,
		HasMore:      next < resp.TotalTransactions,
	}
	if page.HasMore {
		page.NextCursor = strconv.Itoa(next)
	}
	return page, nil
}

// post sends a JSON request and decodes a JSON response. Non-200 responses
// become *APIError.
func (c *Client) post(ctx context.Context, path string, reqBody, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.Unmarshal(body, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "HTTP_" + strconv.Itoa(resp.StatusCode)
			apiErr.Message = truncate(string(body), maxErrorBodyLen)
		}
		return apiErr
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
