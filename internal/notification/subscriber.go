package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/core/events"
)

const deliveryTimeout = 15 * time.Second

// DeliveryRecorderAPI flags which channels a receipt went out on.
type DeliveryRecorderAPI interface {
	MarkDelivered(receiptNumber, channel string) error
}

// Subscriber listens for issued receipts and pushes them to the payer over
// SMS and email. Delivery is best effort: a failed send is logged and the
// payment flow is never rolled back.
type Subscriber struct {
	sender   SenderAPI
	receipts DeliveryRecorderAPI
	logger   *slog.Logger
}

func NewSubscriber(sender SenderAPI, receipts DeliveryRecorderAPI, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		sender:   sender,
		receipts: receipts,
		logger:   logger,
	}
}

func (s *Subscriber) Register(bus *events.EventBus) {
	bus.Subscribe(events.EventTypeReceiptIssued, s.handleReceiptIssued)
	bus.Subscribe(events.EventTypePaymentFailed, s.handlePaymentFailed)
}

func (s *Subscriber) handleReceiptIssued(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.ReceiptIssuedEvent)
	if !ok {
		s.logger.Error("unexpected event payload for receipt.issued", "event_id", event.EventID())
		return nil
	}

	message := fmt.Sprintf("Payment of NGN %s for %s received. Receipt: %s. Ref: %s. Thank you.",
		formatNaira(ev.Amount), ev.ServiceName, ev.ReceiptNumber, ev.Reference)

	// Event handlers run off the request path; bound the gateway calls so a
	// hung provider cannot pin the bus goroutine.
	ctx, cancel := apperrors.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if ev.PayerPhone != "" {
		if err := s.sender.SendSMS(ctx, ev.PayerPhone, message); err != nil {
			s.logger.Warn("receipt SMS delivery failed",
				"error", err, "receipt_number", ev.ReceiptNumber)
		} else if err := s.receipts.MarkDelivered(ev.ReceiptNumber, "sms"); err != nil {
			s.logger.Error("failed to record sms delivery",
				"error", err, "receipt_number", ev.ReceiptNumber)
		}
	}

	if ev.PayerEmail != "" {
		subject := fmt.Sprintf("Payment Receipt %s", ev.ReceiptNumber)
		if err := s.sender.SendEmail(ctx, ev.PayerEmail, subject, message); err != nil {
			s.logger.Warn("receipt email delivery failed",
				"error", err, "receipt_number", ev.ReceiptNumber)
		} else if err := s.receipts.MarkDelivered(ev.ReceiptNumber, "email"); err != nil {
			s.logger.Error("failed to record email delivery",
				"error", err, "receipt_number", ev.ReceiptNumber)
		}
	}

	return nil
}

func (s *Subscriber) handlePaymentFailed(ctx context.Context, event events.Event) error {
	ev, ok := event.(*events.PaymentFailedEvent)
	if !ok {
		return nil
	}

	s.logger.Info("payment failed",
		"payment_id", ev.PaymentID,
		"reference", ev.Reference,
		"reason", ev.FailureReason)
	return nil
}

func formatNaira(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}
