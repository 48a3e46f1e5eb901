package receipt

import "time"

// Receipt is linked 1:1 to a confirmed payment. Immutable after creation
// except for the delivery flags, which the notification subscriber updates.
type Receipt struct {
	ID            int64     `gorm:"primaryKey"`
	PaymentID     int64     `gorm:"column:payment_id;not null;uniqueIndex"`
	ReceiptNumber string    `gorm:"column:receipt_number;not null;uniqueIndex"`
	QRCodeData    string    `gorm:"column:qr_code_data"`
	SentViaSMS    bool      `gorm:"column:sent_via_sms;default:false"`
	SentViaEmail  bool      `gorm:"column:sent_via_email;default:false"`
	IssuedAt      time.Time `gorm:"column:issued_at"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Receipt) TableName() string {
	return "receipts"
}
