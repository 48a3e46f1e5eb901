package payment

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"

	errors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/transport"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
	Logger  *slog.Logger
}

func NewHandler(baseHandler *transport.BaseHandler, service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Logger:      logger,
	}
}

// Initialize handles POST /api/v1/payments/initialize
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req InitializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Initialize: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	record, err := h.Service.Initialize(r.Context(), &req)
	if err != nil {
		h.Logger.Error("Initialize: service error", "error", err, "revenue_type", req.RevenueType)
		h.HandleServiceError(w, err)
		return
	}

	resp := InitializeResponse{
		Success:   true,
		Reference: record.Reference,
		RRR:       record.RRR,
		Amount:    record.Amount,
	}
	if record.PaymentURL != nil {
		resp.PaymentURL = *record.PaymentURL
	}

	h.Logger.Info("Initialize: payment initialized",
		"reference", record.Reference,
		"rrr", record.RRR,
		"amount", record.Amount)

	h.WriteJSON(w, http.StatusOK, resp)
}

// Verify handles POST /api/v1/payments/verify
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Verify: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	snap, err := h.Service.Verify(r.Context(), &req)
	if err != nil {
		h.Logger.Error("Verify: service error", "error", err, "reference", req.Reference, "rrr", req.RRR)
		h.HandleServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, snap)
}

// SubmitProof handles POST /api/v1/payments/{reference}/proof
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if ref == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeInvalidReference))
		return
	}

	record, err := h.Service.SubmitForVerification(ref)
	if err != nil {
		h.Logger.Error("SubmitProof: service error", "error", err, "reference", ref)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("SubmitProof: payment moved to manual review", "reference", ref)

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reference": record.Reference,
		"status":    record.Status,
	})
}

// Review handles PATCH /api/v1/payments/{reference}/review (admin only).
func (h *Handler) Review(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "reference")
	if ref == "" {
		h.HandleError(w, errors.NewValidationError("reference is required", errors.ErrCodeInvalidReference))
		return
	}

	var req ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Logger.Error("Review: failed to parse request body", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Service.Review(ref, &req)
	if err != nil {
		h.Logger.Error("Review: service error", "error", err, "reference", ref, "decision", req.Decision)
		h.HandleServiceError(w, err)
		return
	}

	h.Logger.Info("Review: decision applied",
		"reference", ref,
		"decision", req.Decision,
		"status", result.Payment.Status,
		"reviewedBy", errors.UserIDFromContext(r.Context()))

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"reference":      result.Payment.Reference,
		"status":         result.Payment.Status,
		"receipt_number": result.ReceiptNumber,
	})
}
