package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"boongle/internal/ids"
)

const requestIDHeader = "X-Request-ID"

// RequestID takes the caller's X-Request-ID or mints one, echoes it on the
// response and stores it on the request context.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		ctx := ids.WithRequestID(r.Context(), rid)
		w.Header().Set(requestIDHeader, rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequestIDFromContext(ctx context.Context) string {
	return ids.RequestIDFrom(ctx)
}
