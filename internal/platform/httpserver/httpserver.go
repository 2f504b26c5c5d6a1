package httpserver

import (
	"net/http"
	"time"
)

// New builds the API server. Write timeout stays above the handler timeout
// so slow handlers still get to write their 503.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
