package wrapper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/retry"
)

func fastRetry(n int) retry.Policy {
	return retry.NewPolicy(retry.BackoffFixed, time.Millisecond, time.Millisecond, n)
}

func TestHTTPFetcherRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	body, err := NewHTTPFetcher(srv.Client()).WithRetry(fastRetry(3)).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPFetcherDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client()).WithRetry(fastRetry(3)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryNetwork))
	assert.Equal(t, int32(1), calls.Load())
}

func TestHTTPFetcherRejectsOversizedBodies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", maxRemoteSize+1)))
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(srv.Client()).WithRetry(fastRetry(0)).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, derrors.HasCategory(err, derrors.CategoryUserFeedback))
}
