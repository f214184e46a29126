package openfinance

import (
	"errors"
	"fmt"
)

// ErrShortPage is returned when the aggregator sends an empty transactions
// page before the reported total was reached.
var ErrShortPage = errors.New("aggregator returned an empty page before the reported total")

// Error codes that mean the stored credential no longer works and the user
// has to go through the link flow again.
var relinkCodes = map[string]struct{}{
	"ITEM_LOGIN_REQUIRED":  {},
	"INVALID_ACCESS_TOKEN": {},
	"ITEM_LOCKED":          {},
	"ACCESS_NOT_GRANTED":   {},
}

// APIError is an error response from the aggregator.
type APIError struct {
	Type    string `json:"error_type"`
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aggregator error (status %d): %s - %s", e.Status, e.Code, e.Message)
}

// IsRelinkRequired reports whether err carries an error code that requires
// the user to re-authenticate with their bank.
func IsRelinkRequired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	_, ok := relinkCodes[apiErr.Code]
	return ok
}
