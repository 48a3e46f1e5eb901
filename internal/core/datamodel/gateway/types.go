package gateway

import (
	"encoding/json"
	"time"
)

// Outcome is the normalized result of a gateway callback or status poll.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomePending Outcome = "pending"
	OutcomeUnknown Outcome = "unknown"
)

// Event is the single internal shape every gateway payload is normalized
// into before it reaches the payment lifecycle. Downstream code never
// inspects raw gateway JSON.
type Event struct {
	Gateway       string          `json:"gateway"`
	RRR           string          `json:"rrr"`
	Reference     string          `json:"reference,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        int64           `json:"amount"`
	Outcome       Outcome         `json:"outcome"`
	StatusCode    string          `json:"status_code"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	Raw           json.RawMessage `json:"-"`
}

// RemitaCallback is the webhook body Remita posts after a payment attempt.
type RemitaCallback struct {
	RRR            string  `json:"RRR"`
	OrderID        string  `json:"orderId"`
	TransactionRef string  `json:"transactionRef"`
	Amount         int64   `json:"amount"`
	Status         string  `json:"status"`
	ResponseCode   string  `json:"responseCode"`
	PaymentMethod  string  `json:"paymentMethod"`
	PaymentDate    string  `json:"paymentDate"`
	Message        string  `json:"message"`
	Channel        string  `json:"channel"`
	PayerEmail     string  `json:"payerEmail"`
	Fee            float64 `json:"fee"`
}

// Remita status codes: 00/01 settled, 021/025 pending, 02/09 failed.
func remitaOutcome(code string) Outcome {
	switch code {
	case "00", "01":
		return OutcomeSuccess
	case "02", "09":
		return OutcomeFailed
	case "021", "025":
		return OutcomePending
	default:
		return OutcomeUnknown
	}
}

// Normalize maps the Remita callback into the internal event shape. The
// raw body is kept verbatim for the audit trail.
func (c *RemitaCallback) Normalize(raw json.RawMessage) *Event {
	code := c.Status
	if code == "" {
		code = c.ResponseCode
	}

	ev := &Event{
		Gateway:       "remita",
		RRR:           c.RRR,
		Reference:     c.OrderID,
		TransactionID: c.TransactionRef,
		Amount:        c.Amount,
		Outcome:       remitaOutcome(code),
		StatusCode:    code,
		PaymentMethod: c.PaymentMethod,
		Raw:           raw,
	}

	if ev.Outcome == OutcomeFailed {
		ev.FailureReason = c.Message
	}

	if c.PaymentDate != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", c.PaymentDate); err == nil {
			ev.PaidAt = &t
		}
	}

	return ev
}

// InitRequest is the signed payment initialization call.
type InitRequest struct {
	ServiceTypeID string `json:"serviceTypeId"`
	Amount        string `json:"amount"`
	OrderID       string `json:"orderId"`
	PayerName     string `json:"payerName"`
	PayerEmail    string `json:"payerEmail"`
	PayerPhone    string `json:"payerPhone"`
	Description   string `json:"description"`
}

// InitResponse is Remita's acknowledgment of an initialization request.
// Statuscode 025 means the RRR was generated and payment can proceed.
type InitResponse struct {
	StatusCode    string `json:"statuscode"`
	RRR           string `json:"RRR"`
	StatusMessage string `json:"status"`
}

// StatusResponse is the answer to a signed status poll for an RRR.
type StatusResponse struct {
	RRR            string `json:"RRR"`
	OrderID        string `json:"orderId"`
	TransactionRef string `json:"transactionRef"`
	Amount         int64  `json:"amount"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	PaymentMethod  string `json:"paymentMethod"`
	PaymentDate    string `json:"paymentDate"`
}

// Normalize maps a status poll response into the internal event shape.
func (s *StatusResponse) Normalize(raw json.RawMessage) *Event {
	ev := &Event{
		Gateway:       "remita",
		RRR:           s.RRR,
		Reference:     s.OrderID,
		TransactionID: s.TransactionRef,
		Amount:        s.Amount,
		Outcome:       remitaOutcome(s.Status),
		StatusCode:    s.Status,
		PaymentMethod: s.PaymentMethod,
		Raw:           raw,
	}

	if ev.Outcome == OutcomeFailed {
		ev.FailureReason = s.Message
	}

	if s.PaymentDate != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", s.PaymentDate); err == nil {
			ev.PaidAt = &t
		}
	}

	return ev
}
