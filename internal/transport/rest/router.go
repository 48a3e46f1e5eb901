package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/amacgov/revenue-collection/internal/auth"
	"github.com/amacgov/revenue-collection/internal/payment"
	"github.com/amacgov/revenue-collection/internal/reconciliation"
	"github.com/amacgov/revenue-collection/internal/transport/middleware"
	"github.com/amacgov/revenue-collection/internal/transport/swagger"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, allowedOrigins string, tokenService *auth.JWTTokenService, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, reconciliationHandler *reconciliation.Handler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if webhookHandler != nil {
			r.Post("/payments/webhook/remita", webhookHandler.HandleRemitaWebhook)
		}

		// Public payer routes. Payers are identified by reference and RRR,
		// not by account.
		if paymentHandler != nil {
			r.Route("/payments", func(pr chi.Router) {
				pr.Post("/initialize", paymentHandler.Initialize)
				pr.Post("/verify", paymentHandler.Verify)
				pr.Post("/{reference}/proof", paymentHandler.SubmitProof)
			})
		}

		// Back-office routes require a staff token with the right
		// permission.
		if tokenService != nil {
			r.Group(func(sr chi.Router) {
				sr.Use(middleware.Authenticate(tokenService))

				if paymentHandler != nil {
					sr.Group(func(mr chi.Router) {
						mr.Use(middleware.RequirePermissions(auth.PermissionReviewPayments))
						mr.Patch("/payments/{reference}/review", paymentHandler.Review)
					})
				}

				if reconciliationHandler != nil {
					sr.Group(func(mr chi.Router) {
						mr.Use(middleware.RequirePermissions(auth.PermissionReconcile))
						mr.Post("/reconciliation/run", reconciliationHandler.Run)
						mr.Get("/reconciliation/payments/{reference}/log", reconciliationHandler.PaymentLog)
					})
				}
			})
		}
	})
}
