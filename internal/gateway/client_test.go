package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	apperrors "github.com/amacgov/revenue-collection/internal"
	gatewaytypes "github.com/amacgov/revenue-collection/internal/core/datamodel/gateway"
)

var _ = ginkgo.Describe("Client", func() {
	var (
		server *httptest.Server
		client *Client
	)

	newClient := func(handler http.Handler) *Client {
		server = httptest.NewServer(handler)
		return NewClient(ClientConfig{
			BaseURL:       server.URL,
			MerchantID:    "2547916",
			ServiceTypeID: "4430731",
			APIKey:        "1946",
			MaxRetries:    1,
			RetryBackoff:  time.Millisecond,
		}, slog.Default())
	}

	ginkgo.AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	initRequest := func() *gatewaytypes.InitRequest {
		return &gatewaytypes.InitRequest{
			Amount:      "2500.00",
			OrderID:     "AMC-TEN-1-AAAAAA",
			PayerName:   "Adamu Bello",
			PayerPhone:  "+2348012345678",
			Description: "Tenement Rate",
		}
	}

	ginkgo.Describe("InitializePayment", func() {
		ginkgo.It("should send the signed request and return the RRR and payment URL", func() {
			var gotAuth, gotPath string
			var gotBody map[string]interface{}
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				gotPath = r.URL.Path
				body, _ := io.ReadAll(r.Body)
				_ = json.Unmarshal(body, &gotBody)
				w.Write([]byte(`{"statuscode":"025","RRR":"290019681818","status":"Payment Reference generated"}`))
			}))

			resp, paymentURL, err := client.InitializePayment(context.Background(), initRequest())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(resp.RRR).To(gomega.Equal("290019681818"))
			gomega.Expect(gotPath).To(gomega.Equal("/echannelsvc/merchant/api/paymentinit"))

			// The body and the hash must carry the same serviceTypeId even
			// when the caller never set it.
			gomega.Expect(gotBody["serviceTypeId"]).To(gomega.Equal("4430731"))

			wantHash := client.Signer().InitHash("AMC-TEN-1-AAAAAA", "2500.00")
			gomega.Expect(gotAuth).To(gomega.Equal("remitaConsumerKey=2547916,remitaConsumerToken=" + wantHash))
			gomega.Expect(paymentURL).To(gomega.ContainSubstring("rrr=290019681818"))
			gomega.Expect(paymentURL).To(gomega.ContainSubstring("merchantId=2547916"))
		})

		ginkgo.It("should surface a hash rejection as an integration error", func() {
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"statuscode":"026","status":"Invalid hash"}`))
			}))

			_, _, err := client.InitializePayment(context.Background(), initRequest())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeInvalidHash))
		})

		ginkgo.It("should retry server errors before giving up", func() {
			attempts := 0
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(http.StatusBadGateway)
			}))

			_, _, err := client.InitializePayment(context.Background(), initRequest())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeGatewayUnavailable))
			gomega.Expect(attempts).To(gomega.Equal(2))
		})

		ginkgo.It("should not retry a 4xx rejection", func() {
			attempts := 0
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				attempts++
				w.WriteHeader(http.StatusBadRequest)
			}))

			_, _, err := client.InitializePayment(context.Background(), initRequest())
			appErr, ok := apperrors.IsAppError(err)
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(appErr.Code).To(gomega.Equal(apperrors.ErrCodeGatewayRejected))
			gomega.Expect(attempts).To(gomega.Equal(1))
		})
	})

	ginkgo.Describe("CheckStatus", func() {
		ginkgo.It("should poll the signed status URL and normalize the answer", func() {
			var gotPath string
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				w.Write([]byte(`{"RRR":"290019681818","orderId":"AMC-TEN-1-AAAAAA","amount":250000,"status":"00","paymentMethod":"card"}`))
			}))

			event, err := client.CheckStatus(context.Background(), "290019681818")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(event.Outcome).To(gomega.Equal(gatewaytypes.OutcomeSuccess))
			gomega.Expect(event.RRR).To(gomega.Equal("290019681818"))

			wantHash := client.Signer().StatusHash("290019681818")
			gomega.Expect(gotPath).To(gomega.Equal("/echannelsvc/2547916/290019681818/" + wantHash + "/status.reg"))
		})

		ginkgo.It("should fill in the RRR when the gateway omits it", func() {
			client = newClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"status":"021"}`))
			}))

			event, err := client.CheckStatus(context.Background(), "290019681818")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(event.RRR).To(gomega.Equal("290019681818"))
			gomega.Expect(event.Outcome).To(gomega.Equal(gatewaytypes.OutcomePending))
		})
	})
})
