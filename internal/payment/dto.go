package payment

import (
	errors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/core/common/validation"
)

// InitializeRequest starts a payment attempt for a levy.
type InitializeRequest struct {
	RevenueType string `json:"revenueType"`
	ServiceName string `json:"serviceName"`
	Amount      int64  `json:"amount"`
	PayerName   string `json:"payerName"`
	PayerPhone  string `json:"payerPhone"`
	PayerEmail  string `json:"payerEmail,omitempty"`
	Zone        string `json:"zone,omitempty"`
}

func (r *InitializeRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("revenueType", r.RevenueType).Required().MaxLength(64)
	validator.Field("serviceName", r.ServiceName).Required().MaxLength(255)
	validator.Field("amount", r.Amount).Required().MinInt(1, errors.ErrCodeInvalidAmount)
	validator.Field("payerName", r.PayerName).Required().MaxLength(255)
	validator.Field("payerPhone", r.PayerPhone).Phone()
	validator.Field("payerEmail", r.PayerEmail).Email()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}

	// At least one contact channel is needed to deliver the receipt.
	if r.PayerPhone == "" && r.PayerEmail == "" {
		return errors.NewValidationFieldError("payerPhone", "payerPhone or payerEmail is required", errors.ErrCodeInvalidContact)
	}
	return nil
}

type InitializeResponse struct {
	Success    bool   `json:"success"`
	Reference  string `json:"reference,omitempty"`
	RRR        string `json:"rrr,omitempty"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	Amount     int64  `json:"amount,omitempty"`
	Error      string `json:"error,omitempty"`
}

// VerifyRequest polls the current state of a payment by reference or RRR.
type VerifyRequest struct {
	Reference string `json:"reference,omitempty"`
	RRR       string `json:"rrr,omitempty"`
}

func (r *VerifyRequest) Validate() error {
	if r.Reference == "" && r.RRR == "" {
		return errors.NewValidationError("reference or rrr is required", errors.ErrCodeInvalidReference)
	}
	return nil
}

// ReviewRequest is an admin decision on an awaiting_verification payment.
type ReviewRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

func (r *ReviewRequest) Validate() error {
	if r.Decision != ReviewApprove && r.Decision != ReviewReject {
		return errors.NewValidationError("decision must be approve or reject", errors.ErrCodeValidationFailed)
	}
	if r.Decision == ReviewReject && r.Reason == "" {
		return errors.NewValidationFieldError("reason", "reason is required when rejecting", errors.ErrCodeValidationFailed)
	}
	return nil
}
