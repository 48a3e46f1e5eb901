package postgres

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	paymentpkg "github.com/amacgov/revenue-collection/internal/payment"
	"github.com/amacgov/revenue-collection/internal/reconciliation"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) paymentpkg.RepositoryAPI {
	return &PaymentRepository{
		db: db,
	}
}

// NewReconciliationStore exposes the same table through the narrower surface
// the reconciliation engine works with.
func NewReconciliationStore(db *gorm.DB) reconciliation.PaymentStoreAPI {
	return &PaymentRepository{
		db: db,
	}
}

func (r *PaymentRepository) Create(p *payment.Payment) error {
	err := r.db.Create(p).Error
	if err != nil && isUniqueViolation(err) {
		return apperrors.ErrDuplicateRef
	}
	return err
}

func (r *PaymentRepository) GetByID(id int64) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.First(&p, id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByReference(reference string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("reference = ?", reference).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByRRR(rrr string) (*payment.Payment, error) {
	var p payment.Payment
	err := r.db.Where("rrr = ?", rrr).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// TransitionStatus applies a conditional update: the row changes only when
// its current status is one of fromStatuses. RowsAffected tells the caller
// whether this delivery won the race; a loser observes zero rows and treats
// the event as already applied.
func (r *PaymentRepository) TransitionStatus(id int64, toStatus string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = toStatus
	updates["updated_at"] = time.Now().UTC()

	tx := r.db.Model(&payment.Payment{}).
		Where("id = ? AND status IN ?", id, fromStatuses).
		Updates(updates)
	if tx.Error != nil {
		return false, tx.Error
	}

	return tx.RowsAffected > 0, nil
}

// UnreconciledConfirmed returns confirmed payments within the window that
// the reconciliation engine still has to settle.
func (r *PaymentRepository) UnreconciledConfirmed(since time.Time) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.
		Where("created_at >= ?", since).
		Where("status = ?", payment.StatusConfirmed).
		Where("bank_confirmed = ? OR reconciled = ?", false, false).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// StaleInFlight returns payments still pending or processing whose age
// exceeds the grace window; candidates for a no_bank_transaction flag.
func (r *PaymentRepository) StaleInFlight(olderThan time.Time) ([]*payment.Payment, error) {
	var payments []*payment.Payment
	err := r.db.
		Where("status IN ?", []string{payment.StatusPending, payment.StatusProcessing}).
		Where("created_at < ?", olderThan).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// MarkReconciled is the reconciliation engine's write path for the bank
// confirmation flags; it never touches status.
func (r *PaymentRepository) MarkReconciled(id int64, bankTransactionID string, autoResolve bool) error {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"bank_confirmed":      true,
		"bank_confirmed_at":   now,
		"bank_transaction_id": bankTransactionID,
		"updated_at":          now,
	}
	if autoResolve {
		updates["reconciled"] = true
		updates["reconciled_at"] = now
	}
	return r.db.Model(&payment.Payment{}).Where("id = ?", id).Updates(updates).Error
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// pgx surfaces unique violations as SQLSTATE 23505; SQLite (tests) as
	// "UNIQUE constraint failed".
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
