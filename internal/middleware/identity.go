package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"storygate/internal/identity"
	"storygate/pkg/logging/logging"
)

// Identity resolves the caller id and stores it in the request context.
// Requests without a usable identity get 401.
func Identity(resolver identity.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller, err := resolver.Resolve(r)
			if err != nil {
				logging.L(r.Context()).Info("caller rejected", zap.Error(err))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing or invalid caller identity","code":"unauthorized"}`))
				return
			}

			ctx := identity.WithCaller(r.Context(), caller)
			ctx = logging.WithFields(ctx, zap.String("caller_id", caller))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
