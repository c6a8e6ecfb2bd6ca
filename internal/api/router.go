/**
 * @description
 * This file sets up the HTTP router for the facepay-service. It defines the API
 * endpoints, associates them with their handlers, and applies middleware for logging,
 * CORS, authentication and role checks.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling for the web and terminal clients.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/transfa/facepay-service/internal/domain"
)

// NewRouter creates the facepay-service router.
func NewRouter(h *Handlers, tokens TokenParser) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Post("/auth/login", h.LoginHandler)
	r.Post("/auth/register", h.RegisterAccountHandler)
	r.Get("/verify-transaction", h.VerifyTransactionHandler)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(tokens))

		r.Get("/ledger/blocks", h.ListBlocksHandler)
		r.Get("/ledger/validate", h.ValidateLedgerHandler)
		r.Get("/transactions", h.ListTransactionsHandler)
		r.Get("/account/balance", h.BalanceHandler)
		r.Get("/account/dashboard", h.DashboardHandler)
		r.Post("/deposits", h.DepositHandler)

		r.Route("/facepay/sessions", func(r chi.Router) {
			r.Use(RequireRole(domain.AccountTypeVendor))
			r.Post("/", h.InitiateSessionHandler)
			r.Get("/{sessionID}", h.GetSessionHandler)
			r.Post("/{sessionID}/confirm-amount", h.ConfirmAmountHandler)
			r.Post("/{sessionID}/verify-phone", h.VerifyPhoneHandler)
			r.Post("/{sessionID}/verify-face", h.VerifyFaceHandler)
			r.Post("/{sessionID}/verify-pin", h.VerifyPINHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(domain.AccountTypeCustomer))
			r.Post("/facepay/register", h.RegisterFacePayHandler)
			r.Get("/facepay/status", h.FacePayStatusHandler)
			r.Post("/facepay/toggle", h.ToggleFacePayHandler)
			r.Post("/transfers", h.TransferHandler)
		})
	})

	return r
}
