package http

import (
	"net/http"
	"strconv"
	"time"

	"budgetlink/internal/domain/institution"
	"budgetlink/internal/domain/transaction"
	"budgetlink/internal/shared/middleware"
)

// TransactionHandler serves the stored transactions of a linked institution.
// Transactions are written by sync only; there is no create or edit route.
type TransactionHandler struct {
	institutions *institution.Service
	transactions transaction.Repository
}

func NewTransactionHandler(institutions *institution.Service, transactions transaction.Repository) *TransactionHandler {
	return &TransactionHandler{
		institutions: institutions,
		transactions: transactions,
	}
}

// TransactionResponse is the public view of a stored transaction
type TransactionResponse struct {
	ID                    int64   `json:"id"`
	AccountID             int64   `json:"accountId"`
	ExternalTransactionID string  `json:"externalTransactionId"`
	Amount                string  `json:"amount"`
	Kind                  string  `json:"kind"`
	Currency              string  `json:"currency"`
	PostedDate            string  `json:"postedDate"`
	MerchantName          *string `json:"merchantName"`
	Category              *string `json:"category"`
	Pending               bool    `json:"pending"`
	CreatedAt             string  `json:"createdAt"`
}

// HandleListTransactions returns a page of an institution's transactions, newest first
func (h *TransactionHandler) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, r, http.StatusUnauthorized, ErrCodeUnauthorized, "Unauthorized")
		return
	}

	id, ok := parseInstitutionID(w, r)
	if !ok {
		return
	}

	// Parse pagination parameters
	limit := transaction.DefaultListLimit
	offset := 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = min(parsed, transaction.MaxListLimit)
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		parsed, err := strconv.Atoi(offsetStr)
		if err != nil || parsed < 0 {
			respondError(w, r, http.StatusBadRequest, ErrCodeInvalidInput, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}

	// Verify ownership
	if _, err := h.institutions.GetForUser(r.Context(), userID, id); err != nil {
		respondServiceError(w, r, err, "Error loading institution %d for user %s", id, userID)
		return
	}

	transactions, err := h.transactions.ListByInstitutionID(r.Context(), id, limit, offset)
	if err != nil {
		respondServiceError(w, r, err, "Error listing transactions of institution %d for user %s", id, userID)
		return
	}

	response := make([]TransactionResponse, 0, len(transactions))
	for _, t := range transactions {
		response = append(response, toTransactionResponse(t))
	}

	respondJSON(w, http.StatusOK, response)
}

func toTransactionResponse(t *transaction.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:                    t.ID,
		AccountID:             t.AccountID,
		ExternalTransactionID: t.ExternalTransactionID,
		Amount:                t.Amount.StringFixed(2),
		Kind:                  string(t.Kind),
		Currency:              t.Currency,
		PostedDate:            t.PostedDate.Format("2006-01-02"),
		MerchantName:          t.MerchantName,
		Category:              t.Category,
		Pending:               t.Pending,
		CreatedAt:             t.CreatedAt.Format(time.RFC3339),
	}
}
