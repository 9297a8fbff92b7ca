package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"boongle/internal/domain"
)

// SessionSource is the part of the identity provider SessionSync needs.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*domain.Session, error)
	SignIn(ctx context.Context, token string) (*domain.Session, error)
}

// SessionSync signs in with the bearer token of a request when it differs
// from the held session. Requests without a bearer token pass through so
// the UI can rely on the session established via POST /v1/session.
func SessionSync(src SessionSource, l zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			current, err := src.CurrentSession(r.Context())
			if err == nil && current != nil && current.AccessToken == token {
				next.ServeHTTP(w, r)
				return
			}
			if _, err := src.SignIn(r.Context(), token); err != nil {
				l.Warn().Err(err).Str("request_id", RequestIDFromContext(r.Context())).Msg("bearer sign-in rejected")
				p := domain.Describe(err)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]domain.Problem{"error": p})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
