package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"idoracle/internal/platform/metrics"
	"idoracle/pkg/domain"
	dErrors "idoracle/pkg/domain-errors"
	"idoracle/pkg/platform/httputil"
	"idoracle/pkg/requestcontext"
)

// AccountValidator turns a bearer token into the account that signed it.
type AccountValidator interface {
	AccountFromToken(tokenString string) (domain.AccountID, error)
}

// RequireAuth admits only requests carrying a valid bearer token and stores
// the signing account in the request context.
func RequireAuth(validator AccountValidator, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				m.IncrementUnauthorized()
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			account, err := validator.AccountFromToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				m.IncrementUnauthorized()
				httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithAccount(ctx, account)))
		})
	}
}
