package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed = "payment.confirmed"
	EventTypePaymentFailed    = "payment.failed"
	EventTypeReceiptIssued    = "receipt.issued"
)

type PaymentConfirmedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	Reference     string `json:"reference"`
	RRR           string `json:"rrr"`
	Amount        int64  `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

func NewPaymentConfirmedEvent(paymentID int64, reference, rrr string, amount int64, paymentMethod string) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"reference":      reference,
				"rrr":            rrr,
				"amount":         amount,
				"payment_method": paymentMethod,
			},
		},
		PaymentID:     paymentID,
		Reference:     reference,
		RRR:           rrr,
		Amount:        amount,
		PaymentMethod: paymentMethod,
	}
}

type PaymentFailedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	Reference     string `json:"reference"`
	RRR           string `json:"rrr"`
	Amount        int64  `json:"amount"`
	FailureReason string `json:"failure_reason"`
}

func NewPaymentFailedEvent(paymentID int64, reference, rrr string, amount int64, failureReason string) *PaymentFailedEvent {
	return &PaymentFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"reference":      reference,
				"rrr":            rrr,
				"amount":         amount,
				"failure_reason": failureReason,
			},
		},
		PaymentID:     paymentID,
		Reference:     reference,
		RRR:           rrr,
		Amount:        amount,
		FailureReason: failureReason,
	}
}

type ReceiptIssuedEvent struct {
	BaseEvent
	PaymentID     int64  `json:"payment_id"`
	ReceiptNumber string `json:"receipt_number"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	PayerName     string `json:"payer_name"`
	PayerPhone    string `json:"payer_phone"`
	PayerEmail    string `json:"payer_email"`
	ServiceName   string `json:"service_name"`
}

func NewReceiptIssuedEvent(paymentID int64, receiptNumber, reference string, amount int64, payerName, payerPhone, payerEmail, serviceName string) *ReceiptIssuedEvent {
	return &ReceiptIssuedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeReceiptIssued,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"payment_id":     paymentID,
				"receipt_number": receiptNumber,
				"reference":      reference,
				"amount":         amount,
			},
		},
		PaymentID:     paymentID,
		ReceiptNumber: receiptNumber,
		Reference:     reference,
		Amount:        amount,
		PayerName:     payerName,
		PayerPhone:    payerPhone,
		PayerEmail:    payerEmail,
		ServiceName:   serviceName,
	}
}
