package reconciliation

import "time"

// Discrepancy reasons recorded on unmatched log entries.
const (
	ReasonAmountMismatch    = "amount_mismatch"
	ReasonNoBankTransaction = "no_bank_transaction"
	ReasonStalePayment      = "stale_payment"
)

// LogEntry is one reconciliation outcome for one payment. Entries are
// append-only: repeated passes may add new entries for the same payment but
// never rewrite old ones.
type LogEntry struct {
	ID                int64      `gorm:"primaryKey" json:"id"`
	PaymentID         int64      `gorm:"column:payment_id;not null;index" json:"payment_id"`
	PaymentAmount     int64      `gorm:"column:payment_amount;not null" json:"payment_amount"`
	BankAmount        int64      `gorm:"column:bank_amount" json:"bank_amount"`
	PaymentRRR        string     `gorm:"column:payment_rrr" json:"payment_rrr"`
	BankReference     *string    `gorm:"column:bank_reference" json:"bank_reference,omitempty"`
	Matched           bool       `gorm:"column:matched;default:false" json:"matched"`
	DiscrepancyReason *string    `gorm:"column:discrepancy_reason" json:"discrepancy_reason,omitempty"`
	Notes             *string    `gorm:"column:notes" json:"notes,omitempty"`
	Resolved          bool       `gorm:"column:resolved;default:false" json:"resolved"`
	ResolvedAt        *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (LogEntry) TableName() string {
	return "reconciliation_log"
}

// SettlementTransaction is one externally observed bank/gateway settlement
// record, as delivered by the settlement feed.
type SettlementTransaction struct {
	Reference     string    `json:"reference"`
	Amount        int64     `json:"amount"`
	Description   string    `json:"description"`
	TransactionAt time.Time `json:"transaction_date"`
	BankReference string    `json:"bank_reference,omitempty"`
}
