package reconciliation

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/amacgov/revenue-collection/internal"
	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
	"github.com/amacgov/revenue-collection/internal/transport"
)

// LogHistoryAPI reads the append-only reconciliation trail.
type LogHistoryAPI interface {
	ListByPaymentID(paymentID int64) ([]recmodel.LogEntry, error)
}

// PaymentLookupAPI resolves a payment reference for the history endpoint.
type PaymentLookupAPI interface {
	GetByReference(reference string) (*paymentmodel.Payment, error)
}

type Handler struct {
	*transport.BaseHandler
	Engine   *Engine
	History  LogHistoryAPI
	Payments PaymentLookupAPI
	Logger   *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, engine *Engine, history LogHistoryAPI, payments PaymentLookupAPI, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Engine:      engine,
		History:     history,
		Payments:    payments,
		Logger:      logger,
	}
}

// Run handles POST /api/v1/reconciliation/run
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		h.Logger.Error("Run: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	summary, err := h.Engine.Run(r.Context(), req.DaysBack, req.AutoResolve)
	if err != nil {
		h.Logger.Error("Run: reconciliation failed", "error", err)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, RunResponse{Success: true, Summary: summary})
}

// PaymentLog handles GET /api/v1/reconciliation/payments/{reference}/log
func (h *Handler) PaymentLog(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if ref == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeInvalidReference))
		return
	}

	p, err := h.Payments.GetByReference(ref)
	if err != nil {
		h.HandleServiceError(w, err)
		return
	}

	entries, err := h.History.ListByPaymentID(p.ID)
	if err != nil {
		h.Logger.Error("PaymentLog: failed to load entries", "error", err, "reference", ref)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, LogResponse{
		Reference:  p.Reference,
		RRR:        p.RRR,
		Reconciled: p.Reconciled,
		Entries:    entries,
	})
}
