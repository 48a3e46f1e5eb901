package middleware

import (
	"net/http"
	"strings"

	apperrors "github.com/amacgov/revenue-collection/internal"
	"github.com/amacgov/revenue-collection/internal/auth"
	"github.com/amacgov/revenue-collection/pkg/logger"
)

// TokenValidatorAPI validates a bearer token and returns its claims.
type TokenValidatorAPI interface {
	ValidateToken(tokenString string) (*auth.Claims, error)
}

// Authenticate parses the Authorization bearer token and attaches the staff
// user to the request context. Requests without a valid token are rejected.
func Authenticate(tokens TokenValidatorAPI) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.ValidateToken(strings.TrimPrefix(authHeader, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			user := &auth.User{
				ID:          claims.UserID,
				Email:       claims.Email,
				Permissions: claims.Permissions,
			}

			ctx := auth.WithUser(r.Context(), user)
			ctx = apperrors.ContextWithUserID(ctx, user.ID)
			ctx = logger.With(ctx, "userID", user.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
