package payment

import (
	"context"
	"time"

	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
	"github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	receiptmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/receipt"
)

// RepositoryAPI is the payment store. TransitionStatus is a conditional
// update: the transition is applied only if the current status is one of
// fromStatuses, and the boolean result reports whether a row changed. That
// compare-and-set is what serializes concurrent webhook deliveries for the
// same reference without any in-process lock.
type RepositoryAPI interface {
	Create(p *payment.Payment) error
	GetByID(id int64) (*payment.Payment, error)
	GetByReference(reference string) (*payment.Payment, error)
	GetByRRR(rrr string) (*payment.Payment, error)
	TransitionStatus(id int64, toStatus string, fromStatuses []string, updates map[string]interface{}) (bool, error)
}

// GatewayAPI is the signed gateway client surface the lifecycle needs.
type GatewayAPI interface {
	InitializePayment(ctx context.Context, req *gatewaytypes.InitRequest) (*gatewaytypes.InitResponse, string, error)
	CheckStatus(ctx context.Context, rrr string) (*gatewaytypes.Event, error)
}

// ReferenceAPI produces payment references and retrieval references.
type ReferenceAPI interface {
	PaymentReference(revenueType string) string
	RRR() string
}

// ReceiptAPI is the receipt issuer. Issue must be idempotent for a given
// payment.
type ReceiptAPI interface {
	Issue(p *payment.Payment) (*receiptmodel.Receipt, error)
	GetByPaymentID(paymentID int64) (*receiptmodel.Receipt, error)
}

// Outcome of applying a gateway event to a payment record.
type ApplyResult struct {
	Payment       *payment.Payment
	Transitioned  bool
	AlreadyFinal  bool
	ReceiptNumber string
}

// Snapshot is the externally visible state of a payment, returned by the
// verify endpoint.
type Snapshot struct {
	Reference     string     `json:"reference"`
	RRR           string     `json:"rrr"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	ServiceName   string     `json:"service_name"`
	PayerName     string     `json:"payer_name"`
	PaymentMethod *string    `json:"payment_method,omitempty"`
	PaymentURL    *string    `json:"payment_url,omitempty"`
	ReceiptNumber string     `json:"receipt_number,omitempty"`
	ConfirmedAt   *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
