package payment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	errors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/core/events"
	"github.com/amacgov/revenue-collection/internal/gateway"
	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
	"github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	"github.com/amacgov/revenue-collection/internal/reference"
)

// Service owns the payment state machine. It is the sole writer of the
// status column; every transition goes through the repository's conditional
// update so duplicate and out-of-order gateway events collapse into no-ops.
type Service struct {
	repo     RepositoryAPI
	gateway  GatewayAPI
	refs     ReferenceAPI
	receipts ReceiptAPI
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo RepositoryAPI, gw GatewayAPI, refs ReferenceAPI, receipts ReceiptAPI, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		gateway:  gw,
		refs:     refs,
		receipts: receipts,
		eventBus: eventBus,
		logger:   logger,
	}
}

// Initialize creates a pending payment record, signs and sends the gateway
// initialization call, and moves the record to processing on acknowledgment.
func (s *Service) Initialize(ctx context.Context, req *InitializeRequest) (*payment.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.createWithFreshReference(req)
	if err != nil {
		return nil, err
	}

	initReq := &gatewaytypes.InitRequest{
		Amount:      gateway.FormatAmount(record.Amount),
		OrderID:     record.RRR,
		PayerName:   record.PayerName,
		PayerPhone:  record.PayerPhone,
		Description: req.ServiceName + " - " + req.RevenueType,
	}
	if record.PayerEmail != nil {
		initReq.PayerEmail = *record.PayerEmail
	}

	initResp, paymentURL, err := s.gateway.InitializePayment(ctx, initReq)
	if err != nil {
		if appErr, ok := errors.IsAppError(err); ok && !appErr.Retryable() {
			// Permanent rejection: the attempt is dead, a retry needs a new
			// reference.
			reason := appErr.Message
			updates := map[string]interface{}{"failure_reason": &reason}
			if _, ferr := s.repo.TransitionStatus(record.ID, payment.StatusFailed, payment.AllowedSources(payment.StatusFailed), updates); ferr != nil {
				s.logger.Error("failed to mark payment failed after gateway rejection", "error", ferr, "reference", record.Reference)
			}
		}
		s.logger.Error("gateway initialization failed",
			"error", err,
			"reference", record.Reference,
			"rrr", record.RRR)
		return nil, err
	}

	updates := map[string]interface{}{
		"payment_url": paymentURL,
	}
	if initResp.RRR != "" && initResp.RRR != record.RRR {
		// The gateway assigned its own retrieval reference; ours was only a
		// placeholder order id.
		updates["rrr"] = initResp.RRR
	}
	if raw, merr := json.Marshal(initResp); merr == nil {
		updates["gateway_response"] = json.RawMessage(raw)
	}

	applied, err := s.repo.TransitionStatus(record.ID, payment.StatusProcessing, payment.AllowedSources(payment.StatusProcessing), updates)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to persist payment state", errors.ErrCodeStoreUnavailable, err)
	}
	if !applied {
		// A webhook confirmed the payment before the init ack was stored.
		// Fine: re-read and hand back whatever state won.
		s.logger.Info("initialization ack arrived after a later transition", "reference", record.Reference)
	}

	return s.repo.GetByID(record.ID)
}

func (s *Service) createWithFreshReference(req *InitializeRequest) (*payment.Payment, error) {
	var lastErr error

	for attempt := 0; attempt < reference.MaxAttempts; attempt++ {
		record := &payment.Payment{
			Reference:   s.refs.PaymentReference(req.RevenueType),
			RRR:         s.refs.RRR(),
			RevenueType: req.RevenueType,
			ServiceName: req.ServiceName,
			Amount:      req.Amount,
			PayerName:   req.PayerName,
			PayerPhone:  req.PayerPhone,
			Status:      payment.StatusPending,
		}
		if req.PayerEmail != "" {
			record.PayerEmail = &req.PayerEmail
		}
		if req.Zone != "" {
			record.Zone = &req.Zone
		}

		err := s.repo.Create(record)
		if err == nil {
			s.logger.Info("payment record created",
				"payment_id", record.ID,
				"reference", record.Reference,
				"rrr", record.RRR,
				"amount", record.Amount)
			return record, nil
		}

		if appErr, ok := errors.IsAppError(err); ok && appErr.Code == errors.ErrCodeDuplicateRef {
			s.logger.Warn("reference collision, regenerating", "attempt", attempt+1)
			lastErr = err
			continue
		}
		return nil, errors.NewUnavailableError("failed to create payment record", errors.ErrCodeStoreUnavailable, err)
	}

	return nil, errors.NewInternalError("could not generate a unique payment reference", lastErr)
}

// ApplyGatewayEvent folds a normalized gateway event (webhook or status
// poll) into the record's state. Re-applying a confirmation to an already
// confirmed payment is a no-op returning the existing outcome.
func (s *Service) ApplyGatewayEvent(ev *gatewaytypes.Event) (*ApplyResult, error) {
	record, err := s.lookup(ev.Reference, ev.RRR)
	if err != nil {
		return nil, err
	}

	switch ev.Outcome {
	case gatewaytypes.OutcomeSuccess:
		return s.confirm(record, ev)
	case gatewaytypes.OutcomeFailed:
		return s.fail(record, ev)
	case gatewaytypes.OutcomePending:
		// Nothing to transition; keep the payload for audit.
		s.recordGatewayResponse(record, ev)
		return &ApplyResult{Payment: record}, nil
	default:
		// Unknown status codes are never guessed at; the payload is kept
		// and the reconciliation pass will surface the payment if it stays
		// in limbo.
		s.logger.Warn("unknown gateway status code",
			"rrr", ev.RRR,
			"status_code", ev.StatusCode)
		s.recordGatewayResponse(record, ev)
		return &ApplyResult{Payment: record}, nil
	}
}

func (s *Service) confirm(record *payment.Payment, ev *gatewaytypes.Event) (*ApplyResult, error) {
	if record.Status == payment.StatusConfirmed {
		return s.existingOutcome(record)
	}

	confirmedAt := time.Now().UTC()
	if ev.PaidAt != nil {
		confirmedAt = *ev.PaidAt
	}

	updates := map[string]interface{}{
		"confirmed_at":      confirmedAt,
		"bank_confirmed":    true,
		"bank_confirmed_at": time.Now().UTC(),
	}
	if ev.PaymentMethod != "" {
		updates["payment_method"] = ev.PaymentMethod
	}
	if ev.TransactionID != "" {
		updates["bank_transaction_id"] = ev.TransactionID
	}
	if len(ev.Raw) > 0 {
		updates["gateway_response"] = json.RawMessage(ev.Raw)
	}

	applied, err := s.repo.TransitionStatus(record.ID, payment.StatusConfirmed, payment.AllowedSources(payment.StatusConfirmed), updates)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to persist confirmation", errors.ErrCodeStoreUnavailable, err)
	}

	record, err = s.repo.GetByID(record.ID)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to reload payment", errors.ErrCodeStoreUnavailable, err)
	}

	if !applied {
		if record.Status == payment.StatusConfirmed {
			// Concurrent delivery won the race; same outcome either way.
			return s.existingOutcome(record)
		}
		s.logger.Error("confirmation not applicable",
			"reference", record.Reference,
			"current_status", record.Status)
		return nil, errors.ErrInvalidTransition
	}

	result := &ApplyResult{Payment: record, Transitioned: true}

	rcpt, err := s.receipts.Issue(record)
	if err != nil {
		// The confirmation is durable; a missing receipt is repaired on the
		// next verify call since Issue is idempotent.
		s.logger.Error("receipt issuance failed", "error", err, "reference", record.Reference)
	} else {
		result.ReceiptNumber = rcpt.ReceiptNumber

		email := ""
		if record.PayerEmail != nil {
			email = *record.PayerEmail
		}
		s.eventBus.Publish(context.Background(), events.NewReceiptIssuedEvent(
			record.ID, rcpt.ReceiptNumber, record.Reference, record.Amount,
			record.PayerName, record.PayerPhone, email, record.ServiceName))
	}

	method := ""
	if record.PaymentMethod != nil {
		method = *record.PaymentMethod
	}
	s.eventBus.Publish(context.Background(), events.NewPaymentConfirmedEvent(record.ID, record.Reference, record.RRR, record.Amount, method))

	s.logger.Info("payment confirmed",
		"payment_id", record.ID,
		"reference", record.Reference,
		"rrr", record.RRR,
		"receipt_number", result.ReceiptNumber)

	return result, nil
}

func (s *Service) fail(record *payment.Payment, ev *gatewaytypes.Event) (*ApplyResult, error) {
	if payment.Terminal(record.Status) {
		return s.existingOutcome(record)
	}

	updates := map[string]interface{}{}
	if ev.FailureReason != "" {
		updates["failure_reason"] = ev.FailureReason
	}
	if len(ev.Raw) > 0 {
		updates["gateway_response"] = json.RawMessage(ev.Raw)
	}

	applied, err := s.repo.TransitionStatus(record.ID, payment.StatusFailed, payment.AllowedSources(payment.StatusFailed), updates)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to persist failure", errors.ErrCodeStoreUnavailable, err)
	}

	record, err = s.repo.GetByID(record.ID)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to reload payment", errors.ErrCodeStoreUnavailable, err)
	}

	if applied {
		s.eventBus.Publish(context.Background(), events.NewPaymentFailedEvent(record.ID, record.Reference, record.RRR, record.Amount, ev.FailureReason))
		s.logger.Info("payment failed",
			"payment_id", record.ID,
			"reference", record.Reference,
			"failure_reason", ev.FailureReason)
	}

	return &ApplyResult{Payment: record, Transitioned: applied, AlreadyFinal: !applied}, nil
}

func (s *Service) existingOutcome(record *payment.Payment) (*ApplyResult, error) {
	result := &ApplyResult{Payment: record, AlreadyFinal: true}
	if record.Status == payment.StatusConfirmed {
		if rcpt, err := s.receipts.GetByPaymentID(record.ID); err == nil && rcpt != nil {
			result.ReceiptNumber = rcpt.ReceiptNumber
		}
	}
	return result, nil
}

func (s *Service) recordGatewayResponse(record *payment.Payment, ev *gatewaytypes.Event) {
	if len(ev.Raw) == 0 {
		return
	}
	updates := map[string]interface{}{"gateway_response": json.RawMessage(ev.Raw)}
	// Same-status "transition" just refreshes the audit payload.
	if _, err := s.repo.TransitionStatus(record.ID, record.Status, []string{record.Status}, updates); err != nil {
		s.logger.Error("failed to store gateway payload", "error", err, "reference", record.Reference)
	}
}

// Verify returns the current state of a payment; while the payment is still
// in flight it polls the gateway's status endpoint first.
func (s *Service) Verify(ctx context.Context, req *VerifyRequest) (*Snapshot, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.lookup(req.Reference, req.RRR)
	if err != nil {
		return nil, err
	}

	if record.Status == payment.StatusPending || record.Status == payment.StatusProcessing {
		ev, gerr := s.gateway.CheckStatus(ctx, record.RRR)
		if gerr != nil {
			// The stored state still answers the caller; the poll is best
			// effort.
			s.logger.Warn("gateway status poll failed", "error", gerr, "rrr", record.RRR)
		} else if _, aerr := s.ApplyGatewayEvent(ev); aerr != nil {
			return nil, aerr
		}

		record, err = s.repo.GetByID(record.ID)
		if err != nil {
			return nil, errors.NewUnavailableError("failed to reload payment", errors.ErrCodeStoreUnavailable, err)
		}
	}

	return s.snapshot(record)
}

func (s *Service) snapshot(record *payment.Payment) (*Snapshot, error) {
	snap := &Snapshot{
		Reference:     record.Reference,
		RRR:           record.RRR,
		Status:        record.Status,
		Amount:        record.Amount,
		ServiceName:   record.ServiceName,
		PayerName:     record.PayerName,
		PaymentMethod: record.PaymentMethod,
		PaymentURL:    record.PaymentURL,
		ConfirmedAt:   record.ConfirmedAt,
		CreatedAt:     record.CreatedAt,
	}

	if record.Status == payment.StatusConfirmed {
		rcpt, err := s.receipts.GetByPaymentID(record.ID)
		if err == nil && rcpt != nil {
			snap.ReceiptNumber = rcpt.ReceiptNumber
		} else if rcpt2, ierr := s.receipts.Issue(record); ierr == nil {
			// Repair a confirmation whose receipt side effect was lost.
			snap.ReceiptNumber = rcpt2.ReceiptNumber
		}
	}

	return snap, nil
}

// SubmitForVerification moves a bank-transfer payment into the manual
// review branch once the payer reports an offline transfer.
func (s *Service) SubmitForVerification(reference string) (*payment.Payment, error) {
	record, err := s.repo.GetByReference(reference)
	if err != nil {
		return nil, errors.ErrPaymentNotFound
	}

	method := "bank_transfer"
	updates := map[string]interface{}{"payment_method": &method}

	applied, err := s.repo.TransitionStatus(record.ID, payment.StatusAwaitingVerification, payment.AllowedSources(payment.StatusAwaitingVerification), updates)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to persist payment state", errors.ErrCodeStoreUnavailable, err)
	}

	record, err = s.repo.GetByID(record.ID)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to reload payment", errors.ErrCodeStoreUnavailable, err)
	}
	if !applied && record.Status != payment.StatusAwaitingVerification {
		return nil, errors.ErrInvalidTransition
	}

	return record, nil
}

// Review applies an admin decision to an awaiting_verification payment.
// Approval carries the same side effects as a gateway confirmation.
func (s *Service) Review(reference string, req *ReviewRequest) (*ApplyResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	record, err := s.repo.GetByReference(reference)
	if err != nil {
		return nil, errors.ErrPaymentNotFound
	}

	if req.Decision == ReviewApprove {
		ev := &gatewaytypes.Event{
			Gateway:       "manual",
			RRR:           record.RRR,
			Reference:     record.Reference,
			Amount:        record.Amount,
			Outcome:       gatewaytypes.OutcomeSuccess,
			StatusCode:    "manual_approval",
			PaymentMethod: "bank_transfer",
		}
		return s.confirm(record, ev)
	}

	updates := map[string]interface{}{"failure_reason": &req.Reason}
	applied, err := s.repo.TransitionStatus(record.ID, payment.StatusRejected, payment.AllowedSources(payment.StatusRejected), updates)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to persist rejection", errors.ErrCodeStoreUnavailable, err)
	}

	record, err = s.repo.GetByID(record.ID)
	if err != nil {
		return nil, errors.NewUnavailableError("failed to reload payment", errors.ErrCodeStoreUnavailable, err)
	}
	if !applied && record.Status != payment.StatusRejected {
		return nil, errors.ErrInvalidTransition
	}

	s.logger.Info("payment review applied",
		"reference", record.Reference,
		"decision", req.Decision)

	return &ApplyResult{Payment: record, Transitioned: applied}, nil
}

// lookup resolves an event or query to a payment record. The RRR is the
// primary correlation key; a reference match never overrides a mismatched
// RRR, so a payload carrying a known orderId but someone else's RRR stays
// unresolved.
func (s *Service) lookup(ref, rrr string) (*payment.Payment, error) {
	if rrr != "" {
		if record, err := s.repo.GetByRRR(rrr); err == nil {
			return record, nil
		}
	}
	if ref != "" {
		if record, err := s.repo.GetByReference(ref); err == nil {
			if rrr != "" && record.RRR != rrr {
				s.logger.Warn("payload reference matched a payment with a different rrr",
					"reference", ref,
					"payload_rrr", rrr,
					"record_rrr", record.RRR)
				return nil, errors.ErrPaymentNotFound
			}
			return record, nil
		}
	}
	return nil, errors.ErrPaymentNotFound
}
