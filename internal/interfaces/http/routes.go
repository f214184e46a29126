package http

import "net/http"

// RegisterInstitutionRoutes mounts the institution endpoints behind auth.
func RegisterInstitutionRoutes(mux *http.ServeMux, h *InstitutionHandler, auth func(http.Handler) http.Handler) {
	mux.Handle("POST /api/institutions/link", auth(http.HandlerFunc(h.HandleLink)))
	mux.Handle("GET /api/institutions", auth(http.HandlerFunc(h.HandleList)))
	mux.Handle("DELETE /api/institutions/{id}", auth(http.HandlerFunc(h.HandleArchive)))
	mux.Handle("POST /api/institutions/{id}/refresh", auth(http.HandlerFunc(h.HandleRefresh)))
}

// RegisterAccountRoutes mounts the read-only account endpoints behind auth.
func RegisterAccountRoutes(mux *http.ServeMux, h *AccountHandler, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/institutions/{id}/accounts", auth(http.HandlerFunc(h.HandleListAccounts)))
}

// RegisterTransactionRoutes mounts the read-only transaction endpoints behind auth.
func RegisterTransactionRoutes(mux *http.ServeMux, h *TransactionHandler, auth func(http.Handler) http.Handler) {
	mux.Handle("GET /api/institutions/{id}/transactions", auth(http.HandlerFunc(h.HandleListTransactions)))
}
