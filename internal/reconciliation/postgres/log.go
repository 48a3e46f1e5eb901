package postgres

import (
	"gorm.io/gorm"

	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
	recpkg "github.com/amacgov/revenue-collection/internal/reconciliation"
)

// LogRepository stores reconciliation log entries. The table is append-only;
// no update or delete methods exist on purpose.
type LogRepository struct {
	db *gorm.DB
}

var (
	_ recpkg.LogAPI        = (*LogRepository)(nil)
	_ recpkg.LogHistoryAPI = (*LogRepository)(nil)
)

func NewLogRepository(db *gorm.DB) *LogRepository {
	return &LogRepository{
		db: db,
	}
}

func (r *LogRepository) Append(entry *recmodel.LogEntry) error {
	return r.db.Create(entry).Error
}

// ListByPaymentID returns the audit trail for one payment, oldest first.
func (r *LogRepository) ListByPaymentID(paymentID int64) ([]recmodel.LogEntry, error) {
	var entries []recmodel.LogEntry
	err := r.db.Where("payment_id = ?", paymentID).Order("created_at asc").Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
