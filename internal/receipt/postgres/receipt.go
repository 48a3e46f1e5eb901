package postgres

import (
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/amacgov/revenue-collection/internal"
	receiptmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/receipt"
	receiptpkg "github.com/amacgov/revenue-collection/internal/receipt"
)

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) receiptpkg.RepositoryAPI {
	return &ReceiptRepository{
		db: db,
	}
}

func (r *ReceiptRepository) Create(rcpt *receiptmodel.Receipt) error {
	err := r.db.Create(rcpt).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.ErrDuplicateRef
	}
	return err
}

func (r *ReceiptRepository) GetByPaymentID(paymentID int64) (*receiptmodel.Receipt, error) {
	var rcpt receiptmodel.Receipt
	err := r.db.Where("payment_id = ?", paymentID).First(&rcpt).Error
	if err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (r *ReceiptRepository) GetByNumber(receiptNumber string) (*receiptmodel.Receipt, error) {
	var rcpt receiptmodel.Receipt
	err := r.db.Where("receipt_number = ?", receiptNumber).First(&rcpt).Error
	if err != nil {
		return nil, err
	}
	return &rcpt, nil
}

func (r *ReceiptRepository) UpdateDeliveryFlags(id int64, sentViaSMS, sentViaEmail *bool) error {
	updates := map[string]interface{}{
		"updated_at": time.Now().UTC(),
	}
	if sentViaSMS != nil {
		updates["sent_via_sms"] = *sentViaSMS
	}
	if sentViaEmail != nil {
		updates["sent_via_email"] = *sentViaEmail
	}
	return r.db.Model(&receiptmodel.Receipt{}).Where("id = ?", id).Updates(updates).Error
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
