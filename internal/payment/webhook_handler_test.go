package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	"github.com/amacgov/revenue-collection/internal/core/events"
	"github.com/amacgov/revenue-collection/internal/gateway"
	"github.com/amacgov/revenue-collection/internal/payment"
	"github.com/amacgov/revenue-collection/internal/transport"
)

var _ = ginkgo.Describe("WebhookHandler", func() {
	var (
		handler      *payment.WebhookHandler
		service      *payment.Service
		mockRepo     *mockPaymentRepository
		mockGW       *mockGateway
		mockReceipts *mockReceiptIssuer
		verifier     *gateway.WebhookVerifier
		logger       *slog.Logger

		record *paymentmodel.Payment
	)

	newHandler := func(allowUnsigned bool) *payment.WebhookHandler {
		return payment.NewWebhookHandler(transport.NewBaseHandler(logger), service, verifier, allowUnsigned, logger)
	}

	post := func(h *payment.WebhookHandler, body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook/remita", bytes.NewReader(body))
		if signature != "" {
			req.Header.Set("x-remita-signature", signature)
		}
		rec := httptest.NewRecorder()
		h.HandleRemitaWebhook(rec, req)
		return rec
	}

	callbackBody := func(rrr, status string) []byte {
		body, err := json.Marshal(map[string]interface{}{
			"RRR":            rrr,
			"orderId":        "AMC-TEN-1700000000000-REF001",
			"transactionRef": "TXN-441",
			"amount":         250000,
			"status":         status,
			"paymentMethod":  "card",
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return body
	}

	decodeResponse := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var payload map[string]interface{}
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &payload)).To(gomega.Succeed())
		return payload
	}

	ginkgo.BeforeEach(func() {
		mockRepo = newMockPaymentRepository()
		mockGW = &mockGateway{
			initResponse:   &gatewaytypes.InitResponse{StatusCode: "025"},
			initPaymentURL: "https://gateway.example/finalize",
		}
		mockReceipts = newMockReceiptIssuer()
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		verifier = gateway.NewWebhookVerifier("webhook-secret")

		service = payment.NewService(mockRepo, mockGW, &mockReferenceGenerator{}, mockReceipts, events.NewEventBus(logger), logger)
		handler = newHandler(false)

		var err error
		record, err = service.Initialize(context.Background(), &payment.InitializeRequest{
			RevenueType: "tenement",
			ServiceName: "Tenement Rate",
			Amount:      250000,
			PayerName:   "Adamu Bello",
			PayerPhone:  "+2348012345678",
		})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
	})

	ginkgo.Context("signature enforcement", func() {
		ginkgo.It("should reject a missing signature with 401", func() {
			body := callbackBody(record.RRR, "00")
			rec := post(handler, body, "")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
		})

		ginkgo.It("should reject a bad signature with 401", func() {
			body := callbackBody(record.RRR, "00")
			rec := post(handler, body, "deadbeef")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should reject a valid signature over a different body", func() {
			signed := verifier.Sign(callbackBody(record.RRR, "00"))
			tampered := callbackBody(record.RRR, "02")
			rec := post(handler, tampered, signed)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should accept an unsigned webhook only when explicitly configured", func() {
			permissive := newHandler(true)
			body := callbackBody(record.RRR, "00")
			rec := post(permissive, body, "")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeResponse(rec)["status"]).To(gomega.Equal("processed"))
		})
	})

	ginkgo.Context("payload validation", func() {
		ginkgo.It("should answer 400 for a malformed body", func() {
			body := []byte(`{not json`)
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should answer 400 when the RRR is missing", func() {
			body := []byte(`{"status":"00","amount":250000}`)
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should answer 404 for an unknown RRR", func() {
			body := callbackBody("999999999999", "00")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))

			// The payload's orderId names an existing payment; a mismatched
			// RRR must not resolve to it.
			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
		})
	})

	ginkgo.Context("event processing", func() {
		ginkgo.It("should confirm the payment and answer processed", func() {
			body := callbackBody(record.RRR, "00")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			payload := decodeResponse(rec)
			gomega.Expect(payload["status"]).To(gomega.Equal("processed"))
			gomega.Expect(payload["rrr"]).To(gomega.Equal(record.RRR))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusConfirmed))
		})

		ginkgo.It("should answer already_processed on redelivery without a second receipt", func() {
			body := callbackBody(record.RRR, "00")
			first := post(handler, body, verifier.Sign(body))
			gomega.Expect(first.Code).To(gomega.Equal(http.StatusOK))

			second := post(handler, body, verifier.Sign(body))
			gomega.Expect(second.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeResponse(second)["status"]).To(gomega.Equal("already_processed"))
			gomega.Expect(mockReceipts.issueCalls).To(gomega.Equal(1))
		})

		ginkgo.It("should mark the payment failed on a failure status", func() {
			body := callbackBody(record.RRR, "02")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusFailed))
		})

		ginkgo.It("should acknowledge a pending status without transitioning", func() {
			body := callbackBody(record.RRR, "021")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusProcessing))
		})

		ginkgo.It("should acknowledge with ignored when the record is in a conflicting terminal state", func() {
			_, err := service.SubmitForVerification(record.Reference)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = service.Review(record.Reference, &payment.ReviewRequest{
				Decision: payment.ReviewReject,
				Reason:   "no matching bank credit",
			})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			body := callbackBody(record.RRR, "00")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decodeResponse(rec)["status"]).To(gomega.Equal("ignored"))

			stored, _ := mockRepo.GetByID(record.ID)
			gomega.Expect(stored.Status).To(gomega.Equal(paymentmodel.StatusRejected))
		})

		ginkgo.It("should answer 503 on a transient store failure so the gateway redelivers", func() {
			mockRepo.transitionError = fmt.Errorf("connection reset")
			body := callbackBody(record.RRR, "00")
			rec := post(handler, body, verifier.Sign(body))

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusServiceUnavailable))
		})
	})
})
