package main

import (
	"log"
	"net/http"

	httphandlers "budgetlink/internal/interfaces/http"
	"budgetlink/internal/shared/config"
	"budgetlink/internal/shared/middleware"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", deps.HealthHandler.HandleHealth)

	// Protected routes
	authMiddleware := middleware.Auth(deps.JWT)
	httphandlers.RegisterInstitutionRoutes(mux, deps.InstitutionHandler, authMiddleware)
	httphandlers.RegisterAccountRoutes(mux, deps.AccountHandler, authMiddleware)
	httphandlers.RegisterTransactionRoutes(mux, deps.TransactionHandler, authMiddleware)

	// Apply global middleware
	handler := middleware.CORS(cfg.Server.AllowedHosts)(mux)
	handler = middleware.Telemetry(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	if cfg.TLS.Enabled {
		handler = middleware.HSTS(handler)
		log.Println("HSTS enabled")
	}

	return handler
}
