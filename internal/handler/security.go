package handler

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/franchise-orders/internal/domain/auth"
)

// HeaderAPIKey carries the raw API key.
const HeaderAPIKey = "api_key"

// requireAPIKey rejects requests without a valid key and stores the
// principal in the request context.
func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		info, err := h.auth.Authenticate(ctx, r.Header.Get(HeaderAPIKey))
		if err != nil {
			zctx.From(ctx).Debug("API key rejected", zap.Error(err))
			writeError(ctx, w, auth.ErrUnauthorized)
			return
		}
		ctx = auth.WithPrincipal(ctx, info)
		ctx = zctx.With(ctx, zap.String("api_key_id", info.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// PrincipalKey keys throttling by API key id, falling back to key when the
// request is anonymous.
func PrincipalKey(fallback func(*http.Request) string) func(*http.Request) string {
	return func(r *http.Request) string {
		if info, ok := auth.PrincipalFromContext(r.Context()); ok {
			return "key:" + info.ID
		}
		return fallback(r)
	}
}
