package payment

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	errors "github.com/amacgov/revenue-collection/internal"
	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
	"github.com/amacgov/revenue-collection/internal/gateway"
	"github.com/amacgov/revenue-collection/internal/transport"
)

const remitaSignatureHeader = "x-remita-signature"

// WebhookVerifierAPI authenticates raw webhook bodies.
type WebhookVerifierAPI interface {
	Verify(rawBody []byte, headerSignature string) bool
}

// WebhookHandler ingests gateway callbacks. It acknowledges with 200 only
// after the state transition (or a safe no-op) is durably committed; any
// transient persistence failure answers 503 so the gateway redelivers.
type WebhookHandler struct {
	*transport.BaseHandler
	service       *Service
	verifier      WebhookVerifierAPI
	allowUnsigned bool
	logger        *slog.Logger
}

var _ WebhookVerifierAPI = (*gateway.WebhookVerifier)(nil)

func NewWebhookHandler(baseHandler *transport.BaseHandler, service *Service, verifier WebhookVerifierAPI, allowUnsigned bool, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		BaseHandler:   baseHandler,
		service:       service,
		verifier:      verifier,
		allowUnsigned: allowUnsigned,
		logger:        logger,
	}
}

type webhookResponse struct {
	Received bool   `json:"received"`
	Status   string `json:"status"`
	RRR      string `json:"rrr,omitempty"`
}

func (h *WebhookHandler) HandleRemitaWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		h.HandleError(w, errors.NewValidationError("unreadable request body", errors.ErrCodeValidationFailed))
		return
	}

	signature := r.Header.Get(remitaSignatureHeader)
	if signature == "" {
		if !h.allowUnsigned {
			h.logger.Error("webhook rejected: no signature header")
			h.HandleError(w, errors.ErrMissingSignature)
			return
		}
		// Explicitly configured exception; every acceptance is audited.
		h.logger.Warn("accepting unsigned webhook", "remote_addr", r.RemoteAddr)
	} else if !h.verifier.Verify(rawBody, signature) {
		h.logger.Error("webhook rejected: signature mismatch", "remote_addr", r.RemoteAddr)
		h.HandleError(w, errors.ErrInvalidSignature)
		return
	}

	var callback gatewaytypes.RemitaCallback
	if err := json.Unmarshal(rawBody, &callback); err != nil {
		h.logger.Error("invalid webhook payload", "error", err)
		h.HandleError(w, errors.NewValidationError("invalid webhook payload", errors.ErrCodeValidationFailed))
		return
	}

	if callback.RRR == "" {
		h.logger.Error("webhook payload missing RRR")
		h.HandleError(w, errors.NewValidationError("missing RRR", errors.ErrCodeInvalidReference))
		return
	}

	ev := callback.Normalize(rawBody)

	h.logger.Info("received gateway webhook",
		"rrr", ev.RRR,
		"status_code", ev.StatusCode,
		"outcome", ev.Outcome,
		"amount", ev.Amount)

	result, err := h.service.ApplyGatewayEvent(ev)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok {
			if appErr.Code == errors.ErrCodeInvalidTransition {
				// The record is already in a different terminal state.
				// Redelivery cannot change that, so acknowledge; the
				// reconciliation pass surfaces any real disagreement.
				h.logger.Warn("webhook ignored: conflicting terminal state", "rrr", ev.RRR)
				h.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: "ignored", RRR: ev.RRR})
				return
			}
			// 404 for unknown RRRs and 503 for transient store failures;
			// the gateway redelivers on the latter.
			h.logger.Error("webhook processing failed",
				"error", err,
				"rrr", ev.RRR,
				"retryable", appErr.Retryable())
			h.HandleError(w, appErr)
			return
		}
		h.HandleError(w, errors.NewInternalError("webhook processing failed", err))
		return
	}

	status := "processed"
	if result.AlreadyFinal {
		status = "already_processed"
	}

	h.WriteJSON(w, http.StatusOK, webhookResponse{Received: true, Status: status, RRR: ev.RRR})
}
