package gist

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idoracle/pkg/domain"
)

func TestHTTPFetcher(t *testing.T) {
	var lastAuth, lastAgent atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastAuth.Store(r.Header.Get("Authorization"))
		lastAgent.Store(r.Header.Get("User-Agent"))
		switch r.URL.Path {
		case "/gists/ok":
			_, _ = w.Write([]byte(`{"files":{"a":{}},"owner":{"login":"x"}}`))
		case "/gists/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		case "/gists/created":
			w.WriteHeader(http.StatusCreated)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	fetcher := NewHTTPFetcher(srv.URL+"/", WithToken("secret"), WithTimeout(50*time.Millisecond))

	t.Run("builds the gist API url", func(t *testing.T) {
		assert.Equal(t, srv.URL+"/gists/abc123", fetcher.URL(domain.MustResourceID("abc123")))
	})

	t.Run("returns the body of a 200 response", func(t *testing.T) {
		body, err := fetcher.Fetch(context.Background(), domain.MustResourceID("ok"))
		require.NoError(t, err)
		assert.JSONEq(t, `{"files":{"a":{}},"owner":{"login":"x"}}`, string(body))
		assert.Equal(t, "Bearer secret", lastAuth.Load())
		assert.Equal(t, "idoracle", lastAgent.Load())
	})

	statusCases := map[string]int{"missing": http.StatusNotFound, "created": http.StatusCreated}
	for id, status := range statusCases {
		t.Run("non-200 is bad_status: "+id, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), domain.MustResourceID(id))
			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, FetchBadStatus, fe.Kind)
			assert.Equal(t, status, fe.Status)
		})
	}

	t.Run("deadline is a timeout", func(t *testing.T) {
		_, err := fetcher.Fetch(context.Background(), domain.MustResourceID("slow"))
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, FetchTimeout, fe.Kind)
	})

	t.Run("unreachable host is a network failure", func(t *testing.T) {
		down := httptest.NewServer(http.NotFoundHandler())
		url := down.URL
		down.Close()

		_, err := NewHTTPFetcher(url).Fetch(context.Background(), domain.MustResourceID("ok"))
		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, FetchNetwork, fe.Kind)
	})
}

func TestIsUpstreamFailure(t *testing.T) {
	assert.True(t, IsUpstreamFailure(&FetchError{Kind: FetchTimeout}))
	assert.True(t, IsUpstreamFailure(&FetchError{Kind: FetchNetwork}))
	assert.True(t, IsUpstreamFailure(&FetchError{Kind: FetchBadStatus, Status: 503}))
	assert.True(t, IsUpstreamFailure(&FetchError{Kind: FetchBadStatus, Status: 429}))
	assert.False(t, IsUpstreamFailure(&FetchError{Kind: FetchBadStatus, Status: 404}))
	assert.False(t, IsUpstreamFailure(&ParseError{Kind: ParseMalformed}))
	assert.False(t, IsUpstreamFailure(nil))
}
