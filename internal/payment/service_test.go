package payment_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/amacgov/revenue-collection/internal"
	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	receiptmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/receipt"
	"github.com/amacgov/revenue-collection/internal/core/events"
	"github.com/amacgov/revenue-collection/internal/payment"
)

func TestPaymentService(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Payment Service Suite")
}

// Mock repository with real compare-and-set semantics so the idempotency
// behavior under test matches what the conditional update does in postgres.
type mockPaymentRepository struct {
	payments        map[int64]*paymentmodel.Payment
	byReference     map[string]int64
	byRRR           map[string]int64
	nextID          int64
	createError     error
	createFailures  int
	transitionError error
}

func newMockPaymentRepository() *mockPaymentRepository {
	return &mockPaymentRepository{
		payments:    make(map[int64]*paymentmodel.Payment),
		byReference: make(map[string]int64),
		byRRR:       make(map[string]int64),
		nextID:      1,
	}
}

func (m *mockPaymentRepository) Create(p *paymentmodel.Payment) error {
	if m.createFailures > 0 {
		m.createFailures--
		return apperrors.ErrDuplicateRef
	}
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.byReference[p.Reference]; exists {
		return apperrors.ErrDuplicateRef
	}
	if _, exists := m.byRRR[p.RRR]; exists {
		return apperrors.ErrDuplicateRef
	}
	p.ID = m.nextID
	m.nextID++
	p.CreatedAt = time.Now().UTC()
	m.payments[p.ID] = p
	m.byReference[p.Reference] = p.ID
	m.byRRR[p.RRR] = p.ID
	return nil
}

func (m *mockPaymentRepository) GetByID(id int64) (*paymentmodel.Payment, error) {
	p, exists := m.payments[id]
	if !exists {
		return nil, fmt.Errorf("payment not found")
	}
	copied := *p
	return &copied, nil
}

func (m *mockPaymentRepository) GetByReference(reference string) (*paymentmodel.Payment, error) {
	id, exists := m.byReference[reference]
	if !exists {
		return nil, fmt.Errorf("payment not found")
	}
	return m.GetByID(id)
}

func (m *mockPaymentRepository) GetByRRR(rrr string) (*paymentmodel.Payment, error) {
	id, exists := m.byRRR[rrr]
	if !exists {
		return nil, fmt.Errorf("payment not found")
	}
	return m.GetByID(id)
}

func (m *mockPaymentRepository) TransitionStatus(id int64, toStatus string, fromStatuses []string, updates map[string]interface{}) (bool, error) {
	if m.transitionError != nil {
		return false, m.transitionError
	}
	p, exists := m.payments[id]
	if !exists {
		return false, nil
	}

	allowed := false
	for _, from := range fromStatuses {
		if p.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}

	p.Status = toStatus
	p.UpdatedAt = time.Now().UTC()
	for column, value := range updates {
		switch column {
		case "confirmed_at":
			if t, ok := value.(time.Time); ok {
				p.ConfirmedAt = &t
			}
		case "bank_confirmed":
			if b, ok := value.(bool); ok {
				p.BankConfirmed = b
			}
		case "bank_confirmed_at":
			if t, ok := value.(time.Time); ok {
				p.BankConfirmedAt = &t
			}
		case "payment_method":
			switch v := value.(type) {
			case string:
				p.PaymentMethod = &v
			case *string:
				p.PaymentMethod = v
			}
		case "bank_transaction_id":
			if s, ok := value.(string); ok {
				p.BankTransactionID = &s
			}
		case "failure_reason":
			switch v := value.(type) {
			case string:
				p.FailureReason = &v
			case *string:
				p.FailureReason = v
			}
		case "payment_url":
			if s, ok := value.(string); ok {
				p.PaymentURL = &s
			}
		case "rrr":
			if s, ok := value.(string); ok {
				delete(m.byRRR, p.RRR)
				p.RRR = s
				m.byRRR[s] = p.ID
			}
		}
	}
	return true, nil
}

// Mock gateway client
type mockGateway struct {
	initResponse   *gatewaytypes.InitResponse
	initPaymentURL string
	initError      error
	statusEvent    *gatewaytypes.Event
	statusError    error
	initCalls      int
	statusCalls    int
}

func (m *mockGateway) InitializePayment(ctx context.Context, req *gatewaytypes.InitRequest) (*gatewaytypes.InitResponse, string, error) {
	m.initCalls++
	if m.initError != nil {
		return nil, "", m.initError
	}
	return m.initResponse, m.initPaymentURL, nil
}

func (m *mockGateway) CheckStatus(ctx context.Context, rrr string) (*gatewaytypes.Event, error) {
	m.statusCalls++
	if m.statusError != nil {
		return nil, m.statusError
	}
	return m.statusEvent, nil
}

// Mock reference generator with deterministic output
type mockReferenceGenerator struct {
	counter int
}

func (m *mockReferenceGenerator) PaymentReference(revenueType string) string {
	m.counter++
	return fmt.Sprintf("AMC-TEN-1700000000000-REF%03d", m.counter)
}

func (m *mockReferenceGenerator) RRR() string {
	return fmt.Sprintf("29001968%04d", m.counter)
}

// Mock receipt issuer, idempotent like the real one
type mockReceiptIssuer struct {
	receipts   map[int64]*receiptmodel.Receipt
	issueCalls int
	issueError error
	nextNumber int
}

func newMockReceiptIssuer() *mockReceiptIssuer {
	return &mockReceiptIssuer{receipts: make(map[int64]*receiptmodel.Receipt), nextNumber: 1}
}

func (m *mockReceiptIssuer) Issue(p *paymentmodel.Payment) (*receiptmodel.Receipt, error) {
	m.issueCalls++
	if m.issueError != nil {
		return nil, m.issueError
	}
	if existing, exists := m.receipts[p.ID]; exists {
		return existing, nil
	}
	rcpt := &receiptmodel.Receipt{
		ID:            int64(m.nextNumber),
		PaymentID:     p.ID,
		ReceiptNumber: fmt.Sprintf("AMAC/2025/TEN/%06d", m.nextNumber),
		IssuedAt:      time.Now().UTC(),
	}
	m.nextNumber++
	m.receipts[p.ID] = rcpt
	return rcpt, nil
}

func (m *mockReceiptIssuer) GetByPaymentID(paymentID int64) (*receiptmodel.Receipt, error) {
	rcpt, exists := m.receipts[paymentID]
	if !exists {
		return nil, fmt.Errorf("receipt not found")
	}
	return rcpt, nil
}

var _ = ginkgo.Describe("PaymentService", func() {
	var (
		service      *payment.Service
		mockRepo     *mockPaymentRepository
		mockGW       *mockGateway
		mockRefs     *mockReferenceGenerator
		mockReceipts *mockReceiptIssuer
		eventBus     *events.EventBus
		logger       *slog.Logger

		confirmedEvents     *atomic.Int32
		failedEvents        *atomic.Int32
		receiptIssuedEvents *atomic.Int32
	)

	validRequest := func() *payment.InitializeRequest {
		return &payment.InitializeRequest{
			RevenueType: "tenement",
			ServiceName: "Tenement Rate",
			Amount:      250000,
			PayerName:   "Adamu Bello",
			PayerPhone:  "+2348012345678",
		}
	}

	initializePayment := func() *paymentmodel.Payment {
		record, err := service.Initialize(context.Background(), validRequest())
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return record
	}

	successEvent := func(rrr string) *gatewaytypes.Event {
		return &gatewaytypes.Event{
			Gateway:       "remita",
			RRR:           rrr,
			Outcome:       gatewaytypes.OutcomeSuccess,
			StatusCode:    "00",
			PaymentMethod: "card",
			TransactionID: "TXN-991",
			Raw:           []byte(`{"status":"00"}`),
		}
	}

	ginkgo.BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		mockGW = &mockGateway{
			initResponse:   &gatewaytypes.InitResponse{StatusCode: "025", RRR: ""},
			initPaymentURL: "https://gateway.example/finalize?rrr=290019680001",
		}
		mockRefs = &mockReferenceGenerator{}
		mockReceipts = newMockReceiptIssuer()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		eventBus = events.NewEventBus(logger)

		// Publish is async; counters are fresh per spec and the handlers
		// capture them directly, so a straggling goroutine from an earlier
		// spec's bus can only touch that spec's counters.
		confirmed, failed, issued := new(atomic.Int32), new(atomic.Int32), new(atomic.Int32)
		confirmedEvents, failedEvents, receiptIssuedEvents = confirmed, failed, issued
		eventBus.Subscribe(events.EventTypePaymentConfirmed, func(ctx context.Context, event events.Event) error {
			confirmed.Add(1)
			return nil
		})
		eventBus.Subscribe(events.EventTypePaymentFailed, func(ctx context.Context, event events.Event) error {
			failed.Add(1)
			return nil
		})
		eventBus.Subscribe(events.EventTypeReceiptIssued, func(ctx context.Context, event events.Event) error {
			issued.Add(1)
			return nil
		})

		service = payment.NewService(mockRepo, mockGW, mockRefs, mockReceipts, eventBus, logger)
	})

	ginkgo.Describe("Initialize", func() {
		ginkgo.It("should create the record and move it to processing on gateway acknowledgment", func() {
			record := initializePayment()

			gomega.Expect(record.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
			gomega.Expect(record.Reference).To(gomega.HavePrefix("AMC-TEN-"))
			gomega.Expect(record.RRR).To(gomega.HaveLen(12))
			gomega.Expect(record.PaymentURL).ToNot(gomega.BeNil())
			gomega.Expect(mockGW.initCalls).To(gomega.Equal(1))
		})

		ginkgo.It("should adopt a gateway-assigned RRR", func() {
			mockGW.initResponse = &gatewaytypes.InitResponse{StatusCode: "025", RRR: "110022334455"}

			record := initializePayment()
			gomega.Expect(record.RRR).To(gomega.Equal("110022334455"))
		})

		ginkgo.It("should retry with a fresh reference after a duplicate collision", func() {
			mockRepo.createFailures = 1

			record := initializePayment()
			gomega.Expect(record.ID).ToNot(gomega.BeZero())
			gomega.Expect(mockRefs.counter).To(gomega.Equal(2))
		})

		ginkgo.It("should give up after repeated duplicate collisions", func() {
			mockRepo.createFailures = 10

			_, err := service.Initialize(context.Background(), validRequest())
			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Type).To(gomega.Equal(apperrors.ErrorTypeInternal))
		})

		ginkgo.It("should mark the attempt failed on a permanent gateway rejection", func() {
			mockGW.initError = apperrors.NewIntegrationError("invalid hash", apperrors.ErrCodeInvalidHash)

			_, err := service.Initialize(context.Background(), validRequest())
			gomega.Expect(err).To(gomega.HaveOccurred())

			stored, gerr := mockRepo.GetByID(1)
			gomega.Expect(gerr).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusFailed))
		})

		ginkgo.It("should leave the record pending on a transient gateway failure", func() {
			mockGW.initError = apperrors.NewUnavailableError("gateway timeout", apperrors.ErrCodeGatewayUnavailable, nil)

			_, err := service.Initialize(context.Background(), validRequest())
			gomega.Expect(err).To(gomega.HaveOccurred())

			stored, gerr := mockRepo.GetByID(1)
			gomega.Expect(gerr).ToNot(gomega.HaveOccurred())
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusPending))
		})

		ginkgo.It("should reject a request without any contact channel", func() {
			req := validRequest()
			req.PayerPhone = ""
			req.PayerEmail = ""

			_, err := service.Initialize(context.Background(), req)
			gomega.Expect(err).To(gomega.HaveOccurred())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeInvalidContact))
		})

		ginkgo.It("should reject a non-positive amount", func() {
			req := validRequest()
			req.Amount = 0

			_, err := service.Initialize(context.Background(), req)
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("ApplyGatewayEvent", func() {
		ginkgo.It("should confirm a processing payment, issue a receipt, and publish the event", func() {
			record := initializePayment()

			result, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Transitioned).To(gomega.BeTrue())
			gomega.Expect(result.Payment.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
			gomega.Expect(result.Payment.BankConfirmed).To(gomega.BeTrue())
			gomega.Expect(result.ReceiptNumber).To(gomega.MatchRegexp(`^AMAC/\d{4}/`))
			gomega.Eventually(confirmedEvents.Load).Should(gomega.Equal(int32(1)))
			gomega.Eventually(receiptIssuedEvents.Load).Should(gomega.Equal(int32(1)))
		})

		ginkgo.It("should treat a duplicate confirmation as a no-op with the same outcome", func() {
			record := initializePayment()

			first, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			second, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(second.Transitioned).To(gomega.BeFalse())
			gomega.Expect(second.AlreadyFinal).To(gomega.BeTrue())
			gomega.Expect(second.ReceiptNumber).To(gomega.Equal(first.ReceiptNumber))

			gomega.Expect(mockReceipts.issueCalls).To(gomega.Equal(1))
			gomega.Eventually(confirmedEvents.Load).Should(gomega.Equal(int32(1)))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.ConfirmedAt).To(gomega.Equal(first.Payment.ConfirmedAt))
		})

		ginkgo.It("should mark a processing payment failed on a failure event", func() {
			record := initializePayment()

			result, err := service.ApplyGatewayEvent(&gatewaytypes.Event{
				RRR:           record.RRR,
				Outcome:       gatewaytypes.OutcomeFailed,
				StatusCode:    "02",
				FailureReason: "insufficient funds",
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Transitioned).To(gomega.BeTrue())
			gomega.Expect(result.Payment.Status).To(gomega.Equal(paymentmodel.StatusFailed))
			gomega.Expect(*result.Payment.FailureReason).To(gomega.Equal("insufficient funds"))
			gomega.Eventually(failedEvents.Load).Should(gomega.Equal(int32(1)))
		})

		ginkgo.It("should not demote a confirmed payment on a late failure event", func() {
			record := initializePayment()

			_, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			result, err := service.ApplyGatewayEvent(&gatewaytypes.Event{
				RRR:        record.RRR,
				Outcome:    gatewaytypes.OutcomeFailed,
				StatusCode: "02",
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.AlreadyFinal).To(gomega.BeTrue())

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
			gomega.Consistently(failedEvents.Load).Should(gomega.Equal(int32(0)))
		})

		ginkgo.It("should keep the payload without transitioning on an unknown status code", func() {
			record := initializePayment()

			result, err := service.ApplyGatewayEvent(&gatewaytypes.Event{
				RRR:        record.RRR,
				Outcome:    gatewaytypes.OutcomeUnknown,
				StatusCode: "777",
				Raw:        []byte(`{"status":"777"}`),
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Transitioned).To(gomega.BeFalse())

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
		})

		ginkgo.It("should return not found for an unknown RRR", func() {
			_, err := service.ApplyGatewayEvent(successEvent("999999999999"))
			gomega.Expect(err).To(gomega.Equal(apperrors.ErrPaymentNotFound))
		})

		ginkgo.It("should keep the confirmation durable even when receipt issuance fails", func() {
			record := initializePayment()
			mockReceipts.issueError = fmt.Errorf("receipt store down")

			result, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Transitioned).To(gomega.BeTrue())
			gomega.Expect(result.ReceiptNumber).To(gomega.BeEmpty())

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
		})
	})

	ginkgo.Describe("Verify", func() {
		ginkgo.It("should poll the gateway for an in-flight payment and fold in the result", func() {
			record := initializePayment()
			mockGW.statusEvent = successEvent(record.RRR)

			snap, err := service.Verify(context.Background(), &payment.VerifyRequest{RRR: record.RRR})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(mockGW.statusCalls).To(gomega.Equal(1))
			gomega.Expect(snap.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
			gomega.Expect(snap.ReceiptNumber).ToNot(gomega.BeEmpty())
		})

		ginkgo.It("should answer from stored state when the status poll fails", func() {
			record := initializePayment()
			mockGW.statusError = fmt.Errorf("gateway down")

			snap, err := service.Verify(context.Background(), &payment.VerifyRequest{Reference: record.Reference})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(snap.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
		})

		ginkgo.It("should not poll the gateway for a terminal payment", func() {
			record := initializePayment()
			mockGW.statusEvent = successEvent(record.RRR)

			_, err := service.Verify(context.Background(), &payment.VerifyRequest{RRR: record.RRR})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.Verify(context.Background(), &payment.VerifyRequest{RRR: record.RRR})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(mockGW.statusCalls).To(gomega.Equal(1))
		})

		ginkgo.It("should repair a missing receipt for a confirmed payment", func() {
			record := initializePayment()
			mockReceipts.issueError = fmt.Errorf("receipt store down")

			_, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			mockReceipts.issueError = nil
			snap, err := service.Verify(context.Background(), &payment.VerifyRequest{RRR: record.RRR})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(snap.ReceiptNumber).ToNot(gomega.BeEmpty())
		})

		ginkgo.It("should require a reference or rrr", func() {
			_, err := service.Verify(context.Background(), &payment.VerifyRequest{})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})

	ginkgo.Describe("SubmitForVerification and Review", func() {
		ginkgo.It("should move an in-flight payment to awaiting verification", func() {
			record := initializePayment()

			moved, err := service.SubmitForVerification(record.Reference)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(moved.Status).To(gomega.Equal(paymentmodel.StatusAwaitingVerification))
			gomega.Expect(*moved.PaymentMethod).To(gomega.Equal("bank_transfer"))
		})

		ginkgo.It("should not move a confirmed payment to awaiting verification", func() {
			record := initializePayment()
			_, err := service.ApplyGatewayEvent(successEvent(record.RRR))
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = service.SubmitForVerification(record.Reference)
			gomega.Expect(err).To(gomega.Equal(apperrors.ErrInvalidTransition))
		})

		ginkgo.It("should confirm the payment with receipt and event on approval", func() {
			record := initializePayment()
			_, err := service.SubmitForVerification(record.Reference)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			result, err := service.Review(record.Reference, &payment.ReviewRequest{Decision: payment.ReviewApprove})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Transitioned).To(gomega.BeTrue())
			gomega.Expect(result.Payment.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
			gomega.Expect(result.ReceiptNumber).ToNot(gomega.BeEmpty())
			gomega.Eventually(confirmedEvents.Load).Should(gomega.Equal(int32(1)))
		})

		ginkgo.It("should reject with a recorded reason", func() {
			record := initializePayment()
			_, err := service.SubmitForVerification(record.Reference)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			result, err := service.Review(record.Reference, &payment.ReviewRequest{
				Decision: payment.ReviewReject,
				Reason:   "no matching bank credit",
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(result.Payment.Status).To(gomega.Equal(paymentmodel.StatusRejected))
			gomega.Expect(*result.Payment.FailureReason).To(gomega.Equal("no matching bank credit"))
		})

		ginkgo.It("should require a reason when rejecting", func() {
			record := initializePayment()

			_, err := service.Review(record.Reference, &payment.ReviewRequest{Decision: payment.ReviewReject})
			gomega.Expect(err).To(gomega.HaveOccurred())
		})
	})
})
