package handlers

import (
	"context"
	"net/http"
	"strings"

	utility "checkout/internal/utility"
	httpClient "checkout/internal/utility/http"

	"github.com/go-chi/chi"
)

type contextKey string

const claimsKey contextKey = "session_claims"

// Authentication requires a bearer token issued for the session named by the
// {id} route parameter.
func Authentication(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			clientToken := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if header == "" || clientToken == "" {
				httpClient.RespondError(w, http.StatusUnauthorized, "No Authorization header provided")
				return
			}

			claims, err := utility.ValidateSessionToken(secret, clientToken)
			if err != nil {
				httpClient.RespondError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			if id := chi.URLParam(r, "id"); id != "" && id != claims.SessionID {
				httpClient.RespondError(w, http.StatusForbidden, "Token does not belong to this session")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func claimsFrom(ctx context.Context) (*utility.SessionClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*utility.SessionClaims)
	return claims, ok
}
