package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/amacgov/revenue-collection/internal/transport/middleware"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestMiddleware(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Middleware Suite")
}

var _ = ginkgo.Describe("CORS", func() {
	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	serve := func(allowedOrigins, origin, method string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/api/v1/ping", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		middleware.CORS(allowedOrigins)(okHandler).ServeHTTP(rec, req)
		return rec
	}

	ginkgo.It("allows any origin with a wildcard", func() {
		rec := serve("*", "https://portal.amacgov.ng", http.MethodGet)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(gomega.Equal("*"))
	})

	ginkgo.It("echoes a configured origin", func() {
		rec := serve("https://portal.amacgov.ng, https://staff.amacgov.ng", "https://staff.amacgov.ng", http.MethodGet)

		gomega.Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(gomega.Equal("https://staff.amacgov.ng"))
		gomega.Expect(rec.Header().Values("Vary")).To(gomega.ContainElement("Origin"))
	})

	ginkgo.It("withholds the allow header from an unlisted origin", func() {
		rec := serve("https://portal.amacgov.ng", "https://evil.example.com", http.MethodGet)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		gomega.Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(gomega.BeEmpty())
	})

	ginkgo.It("short-circuits preflight requests", func() {
		rec := serve("*", "https://portal.amacgov.ng", http.MethodOptions)

		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))
		gomega.Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(gomega.ContainSubstring("PATCH"))
	})
})
