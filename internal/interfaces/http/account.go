package http

import (
	"net/http"
	"time"

	"budgetlink/internal/domain/account"
	"budgetlink/internal/domain/institution"
	"budgetlink/internal/shared/middleware"
)

// AccountHandler serves the read-only account views of a linked institution.
type AccountHandler struct {
	institutions *institution.Service
	accounts     account.Repository
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(institutions *institution.Service, accounts account.Repository) *AccountHandler {
	return &AccountHandler{institutions: institutions, accounts: accounts}
}

// AccountResponse is the mobile-friendly response format
type AccountResponse struct {
	ID                int64   `json:"id"`
	InstitutionID     int64   `json:"institutionId"`
	ExternalAccountID string  `json:"externalAccountId"`
	Name              string  `json:"name"`
	AccountType       string  `json:"accountType"` // "normal", "saving", "credit", "loan", "investment"
	Subtype           string  `json:"subtype"`
	Currency          string  `json:"currency"`
	CurrentBalance    *string `json:"currentBalance"`
	AvailableBalance  *string `json:"availableBalance"`
	CreatedAt         string  `json:"createdAt"`
	UpdatedAt         string  `json:"updatedAt"`
}

// HandleListAccounts returns the accounts of one of the user's institutions
func (h *AccountHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	id, ok := parseInstitutionID(w, r)
	if !ok {
		return
	}

	// Ownership check; archived institutions are not found
	if _, err := h.institutions.GetForUser(r.Context(), userID, id); err != nil {
		respondServiceError(w, r, err, "Error loading institution %d for user %s", id, userID)
		return
	}

	accounts, err := h.accounts.ListByInstitutionID(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err, "Error listing accounts of institution %d for user %s", id, userID)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, toAccountResponse(acc))
	}

	respondJSON(w, http.StatusOK, response)
}

func toAccountResponse(acc *account.Account) AccountResponse {
	return AccountResponse{
		ID:                acc.ID,
		InstitutionID:     acc.InstitutionID,
		ExternalAccountID: acc.ExternalAccountID,
		Name:              acc.Name,
		AccountType:       mapAccountType(acc.Type, acc.Subtype),
		Subtype:           acc.Subtype,
		Currency:          acc.Currency,
		CurrentBalance:    formatBalance(acc.CurrentBalance.Decimal.StringFixed(2), acc.CurrentBalance.Valid),
		AvailableBalance:  formatBalance(acc.AvailableBalance.Decimal.StringFixed(2), acc.AvailableBalance.Valid),
		CreatedAt:         acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         acc.UpdatedAt.Format(time.RFC3339),
	}
}

func formatBalance(s string, valid bool) *string {
	if !valid {
		return nil
	}
	return &s
}

// mapAccountType maps the aggregator type and subtype to the mobile account type
func mapAccountType(accountType, subtype string) string {
	switch accountType {
	case "credit":
		return "credit"
	case "loan":
		return "loan"
	case "investment", "brokerage":
		return "investment"
	}
	if subtype == "savings" || subtype == "money market" || subtype == "cd" {
		return "saving"
	}
	return "normal"
}
