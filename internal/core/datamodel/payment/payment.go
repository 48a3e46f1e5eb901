package payment

import (
	"encoding/json"
	"time"
)

// Status values a payment moves through. Transitions are forward-only;
// a failed or rejected payment is never resurrected, a new attempt gets a
// new reference.
const (
	StatusPending              = "pending"
	StatusProcessing           = "processing"
	StatusConfirmed            = "confirmed"
	StatusFailed               = "failed"
	StatusAwaitingVerification = "awaiting_verification"
	StatusRejected             = "rejected"
)

type Payment struct {
	ID              int64           `gorm:"primaryKey"`
	Reference       string          `gorm:"column:reference;not null;uniqueIndex"`
	RRR             string          `gorm:"column:rrr;not null;uniqueIndex"`
	RevenueType     string          `gorm:"column:revenue_type;not null"`
	ServiceName     string          `gorm:"column:service_name;not null"`
	Zone            *string         `gorm:"column:zone"`
	Amount          int64           `gorm:"column:amount;not null"`
	PayerName       string          `gorm:"column:payer_name;not null"`
	PayerPhone      string          `gorm:"column:payer_phone"`
	PayerEmail      *string         `gorm:"column:payer_email"`
	Status          string          `gorm:"column:status;default:pending"`
	PaymentMethod   *string         `gorm:"column:payment_method"`
	PaymentURL      *string         `gorm:"column:payment_url"`
	GatewayResponse json.RawMessage `gorm:"column:gateway_response;type:jsonb"`
	FailureReason   *string         `gorm:"column:failure_reason"`

	BankTransactionID *string    `gorm:"column:bank_transaction_id"`
	BankConfirmed     bool       `gorm:"column:bank_confirmed;default:false"`
	BankConfirmedAt   *time.Time `gorm:"column:bank_confirmed_at"`
	Reconciled        bool       `gorm:"column:reconciled;default:false"`
	ReconciledAt      *time.Time `gorm:"column:reconciled_at"`

	ConfirmedAt *time.Time `gorm:"column:confirmed_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string {
	return "payments"
}

// Terminal reports whether no further gateway-driven transition applies.
func Terminal(status string) bool {
	return status == StatusConfirmed || status == StatusFailed || status == StatusRejected
}

// AllowedSources returns the statuses a payment may hold immediately before
// moving to target. The repository enforces these in a single conditional
// update, which is what makes concurrent webhook deliveries safe.
func AllowedSources(target string) []string {
	switch target {
	case StatusProcessing:
		return []string{StatusPending}
	case StatusConfirmed:
		// Webhooks can arrive before the init acknowledgment lands, so a
		// confirmation from pending is accepted as well.
		return []string{StatusPending, StatusProcessing, StatusAwaitingVerification}
	case StatusFailed:
		return []string{StatusPending, StatusProcessing}
	case StatusAwaitingVerification:
		return []string{StatusPending, StatusProcessing}
	case StatusRejected:
		return []string{StatusAwaitingVerification}
	default:
		return nil
	}
}
