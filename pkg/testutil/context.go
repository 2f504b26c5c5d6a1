package testutil

import (
	"net/http"

	"idoracle/pkg/domain"
	"idoracle/pkg/requestcontext"
)

// WithAccount marks req as authenticated by account, as RequireAuth would.
func WithAccount(req *http.Request, account domain.AccountID) *http.Request {
	return req.WithContext(requestcontext.WithAccount(req.Context(), account))
}

// WithRequestID sets the correlation id the RequestID middleware would set.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	return req.WithContext(requestcontext.WithRequestID(req.Context(), requestID))
}
