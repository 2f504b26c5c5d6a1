package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idoracle/internal/platform/metrics"
	"idoracle/pkg/domain"
	dErrors "idoracle/pkg/domain-errors"
	"idoracle/pkg/requestcontext"
)

type stubValidator struct {
	account domain.AccountID
	err     error
}

func (v stubValidator) AccountFromToken(string) (domain.AccountID, error) {
	return v.account, v.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestcontext.RequestID(r.Context())
	}))

	t.Run("propagates inbound id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, "abc", seen)
		assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
	})

	t.Run("mints an id when absent", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaces oversized ids", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, string(bytes.Repeat([]byte("x"), maxRequestIDLen+1)))
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Len(t, seen, 36)
	})
}

func TestRequireAuth(t *testing.T) {
	alice := domain.AccountIDFromSeed("alice")
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, found := requestcontext.Account(r.Context())
		require.True(t, found)
		assert.Equal(t, alice, account)
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("valid token sets account", func(t *testing.T) {
		h := RequireAuth(stubValidator{account: alice}, discard(), nil)(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer token")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		h := RequireAuth(stubValidator{account: alice}, discard(), m)(ok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), `"error":"unauthorized"`)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Unauthorized))
	})

	t.Run("rejected token", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: dErrors.New(dErrors.CodeUnauthorized, "token has expired")}, discard(), nil)(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer expired")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("validator failure is still unauthorized", func(t *testing.T) {
		h := RequireAuth(stubValidator{err: errors.New("boom")}, discard(), nil)(ok)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer x")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestLatencyUsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	r := chi.NewRouter()
	r.Use(Latency(m))
	r.Get("/v1/identities/{account}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/identities/abc", nil))

	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration, "idoracle_http_request_duration_seconds"))
	n, err := testutil.GatherAndCount(reg, "idoracle_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
