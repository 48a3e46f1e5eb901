package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/amacgov/revenue-collection/internal/auth"
)

func TestAuth(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Auth Suite")
}

var _ = ginkgo.Describe("JWTTokenService", func() {
	var tokens *auth.JWTTokenService

	ginkgo.BeforeEach(func() {
		tokens = auth.NewJWTTokenService("test-secret", time.Hour)
	})

	ginkgo.It("should round-trip claims through a signed token", func() {
		tokenString, err := tokens.GenerateAccessToken("user-1", "clerk@amac.gov.ng",
			[]string{auth.PermissionReviewPayments})
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		claims, err := tokens.ValidateToken(tokenString)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(claims.UserID).To(gomega.Equal("user-1"))
		gomega.Expect(claims.Email).To(gomega.Equal("clerk@amac.gov.ng"))
		gomega.Expect(claims.Permissions).To(gomega.Equal([]string{auth.PermissionReviewPayments}))
	})

	ginkgo.It("should reject a token signed with another secret", func() {
		other := auth.NewJWTTokenService("other-secret", time.Hour)
		tokenString, err := other.GenerateAccessToken("user-1", "clerk@amac.gov.ng", nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = tokens.ValidateToken(tokenString)
		gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidToken))
	})

	ginkgo.It("should reject an expired token", func() {
		expired := auth.NewJWTTokenService("test-secret", -time.Minute)
		tokenString, err := expired.GenerateAccessToken("user-1", "clerk@amac.gov.ng", nil)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())

		_, err = tokens.ValidateToken(tokenString)
		gomega.Expect(err).To(gomega.Equal(auth.ErrTokenExpired))
	})

	ginkgo.It("should reject garbage input", func() {
		_, err := tokens.ValidateToken("not-a-token")
		gomega.Expect(err).To(gomega.Equal(auth.ErrInvalidToken))
	})
})

var _ = ginkgo.Describe("User", func() {
	ginkgo.It("should grant a permission the user holds", func() {
		user := &auth.User{ID: "u1", Permissions: []string{auth.PermissionReconcile}}
		gomega.Expect(user.HasPermission(auth.PermissionReconcile)).To(gomega.BeTrue())
		gomega.Expect(user.HasPermission(auth.PermissionReviewPayments)).To(gomega.BeFalse())
	})

	ginkgo.It("should grant everything to an admin", func() {
		user := &auth.User{ID: "u1", Permissions: []string{auth.PermissionAdmin}}
		gomega.Expect(user.HasPermission(auth.PermissionReviewPayments)).To(gomega.BeTrue())
		gomega.Expect(user.HasPermission(auth.PermissionReconcile)).To(gomega.BeTrue())
	})

	ginkgo.It("should travel through the request context", func() {
		user := &auth.User{ID: "u1", Email: "clerk@amac.gov.ng"}
		ctx := auth.WithUser(context.Background(), user)

		got, ok := auth.UserFromContext(ctx)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(got).To(gomega.Equal(user))

		_, ok = auth.UserFromContext(context.Background())
		gomega.Expect(ok).To(gomega.BeFalse())
	})
})
