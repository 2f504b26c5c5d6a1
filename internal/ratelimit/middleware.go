package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"idoracle/pkg/platform/httputil"
	"idoracle/pkg/requestcontext"
)

type exceededResponse struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after"`
}

// Middleware limits authenticated requests per signing account. It must run
// after authentication. When the store fails the request is let through.
type Middleware struct {
	store   Store
	limit   int
	window  time.Duration
	prefix  string
	logger  *slog.Logger
	metrics *Metrics
}

func NewMiddleware(store Store, prefix string, limit int, window time.Duration, logger *slog.Logger, m *Metrics) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		store:   store,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		logger:  logger,
		metrics: m,
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		account, ok := requestcontext.Account(ctx)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		result, err := m.store.Allow(ctx, m.prefix+":"+account.String(), m.limit, m.window)
		if err != nil {
			m.logger.ErrorContext(ctx, "failed to check rate limit",
				"account", account,
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			m.metrics.record("error")
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			m.metrics.record("denied")
			retryAfter := result.RetryAfter(requestcontext.Now(ctx))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, exceededResponse{
				Error:      "rate_limit_exceeded",
				Message:    "too many verification requests for this account",
				RetryAfter: retryAfter,
			})
			return
		}
		m.metrics.record("allowed")
		next.ServeHTTP(w, r)
	})
}
