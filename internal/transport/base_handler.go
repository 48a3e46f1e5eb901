package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/pkg/logger"

	"gorm.io/gorm"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
		if lg == nil {
			lg = slog.Default()
		}
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// HandleError writes a typed application error with its mapped status code.
func (h *BaseHandler) HandleError(w http.ResponseWriter, appErr *apperrors.AppError) {
	status, payload := appErr.ToHTTPResponse()
	h.WriteJSON(w, status, payload)
}

// HandleServiceError maps service layer errors onto HTTP responses. Typed
// application errors keep their status; untyped errors become a 500 without
// leaking internals.
func (h *BaseHandler) HandleServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := apperrors.IsAppError(err); ok {
		h.HandleError(w, appErr)
		return
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		h.HandleError(w, apperrors.NewNotFoundError("resource not found", apperrors.ErrCodePaymentNotFound))
		return
	}

	h.HandleError(w, apperrors.NewInternalError("internal server error", err))
}
