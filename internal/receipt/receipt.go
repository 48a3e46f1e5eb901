package receipt

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	errors "github.com/amacgov/revenue-collection/internal"
	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	receiptmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/receipt"
)

const numberAttempts = 3

// RepositoryAPI is the receipt store.
type RepositoryAPI interface {
	Create(rcpt *receiptmodel.Receipt) error
	GetByPaymentID(paymentID int64) (*receiptmodel.Receipt, error)
	GetByNumber(receiptNumber string) (*receiptmodel.Receipt, error)
	UpdateDeliveryFlags(id int64, sentViaSMS, sentViaEmail *bool) error
}

// Service issues receipts for confirmed payments. A payment gets exactly
// one receipt; re-issuing returns the existing one.
type Service struct {
	repo   RepositoryAPI
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

// Issue creates the receipt for a confirmed payment, or returns the one
// already on file. Receipt numbers carry the revenue code so counter staff
// can read them: AMAC/<year>/<REV>/<suffix>.
func (s *Service) Issue(p *paymentmodel.Payment) (*receiptmodel.Receipt, error) {
	if p.Status != paymentmodel.StatusConfirmed {
		return nil, errors.NewConflictError("receipt requires a confirmed payment", errors.ErrCodeInvalidTransition)
	}

	if existing, err := s.repo.GetByPaymentID(p.ID); err == nil && existing != nil {
		return existing, nil
	}

	var lastErr error
	for attempt := 0; attempt < numberAttempts; attempt++ {
		rcpt := &receiptmodel.Receipt{
			PaymentID:     p.ID,
			ReceiptNumber: s.number(p.RevenueType),
			QRCodeData:    fmt.Sprintf("rrr:%s", p.RRR),
			IssuedAt:      s.now().UTC(),
		}

		err := s.repo.Create(rcpt)
		if err == nil {
			s.logger.Info("receipt issued",
				"payment_id", p.ID,
				"receipt_number", rcpt.ReceiptNumber)
			return rcpt, nil
		}

		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeDuplicateRef {
			// Either a number collision (regenerate) or a concurrent Issue
			// for the same payment (return the winner's receipt).
			if existing, gerr := s.repo.GetByPaymentID(p.ID); gerr == nil && existing != nil {
				return existing, nil
			}
			s.logger.Warn("receipt number collision, regenerating", "attempt", attempt+1)
			lastErr = err
			continue
		}
		return nil, err
	}

	return nil, errors.NewInternalError("could not generate a unique receipt number", lastErr)
}

func (s *Service) GetByPaymentID(paymentID int64) (*receiptmodel.Receipt, error) {
	return s.repo.GetByPaymentID(paymentID)
}

// MarkDelivered records delivery on the named channel. Only delivery flags
// are mutable on a receipt.
func (s *Service) MarkDelivered(receiptNumber, channel string) error {
	rcpt, err := s.repo.GetByNumber(receiptNumber)
	if err != nil {
		return errors.NewNotFoundError("Receipt not found", errors.ErrCodeReceiptNotFound)
	}

	yes := true
	switch channel {
	case "sms":
		return s.repo.UpdateDeliveryFlags(rcpt.ID, &yes, nil)
	case "email":
		return s.repo.UpdateDeliveryFlags(rcpt.ID, nil, &yes)
	default:
		return errors.NewValidationError("unknown delivery channel", errors.ErrCodeValidationFailed)
	}
}

func (s *Service) number(revenueType string) string {
	code := strings.ToUpper(revenueType)
	if len(code) > 3 {
		code = code[:3]
	}
	if code == "" {
		code = "REV"
	}

	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	suffix := int64(0)
	if err == nil {
		suffix = n.Int64()
	} else {
		suffix = s.now().UnixNano() % 1_000_000
	}

	return fmt.Sprintf("AMAC/%d/%s/%06d", s.now().Year(), code, suffix)
}
