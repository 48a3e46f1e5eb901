package reconciliation_test

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"gorm.io/gorm"

	paymentmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/payment"
	recmodel "github.com/amacgov/revenue-collection/internal/core/datamodel/reconciliation"
	"github.com/amacgov/revenue-collection/internal/reconciliation"
	"github.com/amacgov/revenue-collection/internal/transport"
)

type mockHistory struct {
	entries map[int64][]recmodel.LogEntry
	listErr error
}

func (m *mockHistory) ListByPaymentID(paymentID int64) ([]recmodel.LogEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.entries[paymentID], nil
}

type mockPaymentLookup struct {
	payments map[string]*paymentmodel.Payment
}

func (m *mockPaymentLookup) GetByReference(reference string) (*paymentmodel.Payment, error) {
	if p, ok := m.payments[reference]; ok {
		return p, nil
	}
	return nil, gorm.ErrRecordNotFound
}

var _ = ginkgo.Describe("Handler", func() {
	var (
		history *mockHistory
		lookup  *mockPaymentLookup
		handler *reconciliation.Handler
	)

	ginkgo.BeforeEach(func() {
		history = &mockHistory{entries: map[int64][]recmodel.LogEntry{}}
		lookup = &mockPaymentLookup{payments: map[string]*paymentmodel.Payment{}}
		handler = reconciliation.NewHandler(transport.NewBaseHandler(slog.Default()), nil, history, lookup, slog.Default())
	})

	getLog := func(reference string) *httptest.ResponseRecorder {
		router := chi.NewRouter()
		router.Get("/reconciliation/payments/{reference}/log", handler.PaymentLog)

		req := httptest.NewRequest(http.MethodGet, "/reconciliation/payments/"+reference+"/log", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	ginkgo.Describe("PaymentLog", func() {
		ginkgo.It("should return the trail for a known payment", func() {
			lookup.payments["AMC-TEN-1-AAAAAA"] = &paymentmodel.Payment{
				ID:         42,
				Reference:  "AMC-TEN-1-AAAAAA",
				RRR:        "290019680001",
				Reconciled: true,
			}
			reason := recmodel.ReasonNoBankTransaction
			history.entries[42] = []recmodel.LogEntry{
				{PaymentID: 42, PaymentAmount: 50000, DiscrepancyReason: &reason, CreatedAt: time.Now().Add(-time.Hour)},
				{PaymentID: 42, PaymentAmount: 50000, BankAmount: 50000, Matched: true, CreatedAt: time.Now()},
			}

			rec := getLog("AMC-TEN-1-AAAAAA")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp reconciliation.LogResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Reference).To(gomega.Equal("AMC-TEN-1-AAAAAA"))
			gomega.Expect(resp.Reconciled).To(gomega.BeTrue())
			gomega.Expect(resp.Entries).To(gomega.HaveLen(2))
			gomega.Expect(*resp.Entries[0].DiscrepancyReason).To(gomega.Equal(recmodel.ReasonNoBankTransaction))
			gomega.Expect(resp.Entries[1].Matched).To(gomega.BeTrue())
		})

		ginkgo.It("should return an empty trail for a payment never reconciled", func() {
			lookup.payments["AMC-TEN-2-BBBBBB"] = &paymentmodel.Payment{
				ID:        7,
				Reference: "AMC-TEN-2-BBBBBB",
				RRR:       "290019680002",
			}

			rec := getLog("AMC-TEN-2-BBBBBB")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))

			var resp reconciliation.LogResponse
			gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Entries).To(gomega.BeEmpty())
		})

		ginkgo.It("should answer 404 for an unknown reference", func() {
			rec := getLog("AMC-NOPE")
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
		})
	})
})
