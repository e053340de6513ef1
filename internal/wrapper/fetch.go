package wrapper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/retry"
)

// maxRemoteSize caps a remote document's body.
const maxRemoteSize = 64 << 20

// Fetcher retrieves remote document sources.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches documents over HTTP(S). Transport failures, 429 and
// 5xx responses are retried according to its policy.
type HTTPFetcher struct {
	client *http.Client
	policy retry.Policy
}

// NewHTTPFetcher uses client, or a client with a 30s timeout when nil.
func NewHTTPFetcher(client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPFetcher{client: client, policy: retry.DefaultPolicy()}
}

// WithRetry replaces the retry policy.
func (f *HTTPFetcher) WithRetry(p retry.Policy) *HTTPFetcher {
	f.policy = p
	return f
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte
	err := f.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		body, err = f.fetch(ctx, url)
		return err
	})
	return body, err
}

func (f *HTTPFetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, derrors.UserFeedback(fmt.Sprintf("invalid url '%s'", url)).WithCause(err).Build()
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, derrors.NetworkError("failed to fetch remote document").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b := derrors.NetworkError(fmt.Sprintf("fetching %s returned %s", url, resp.Status)).
			WithContext("url", url).
			WithContext("status", resp.StatusCode)
		if resp.StatusCode != http.StatusTooManyRequests && resp.StatusCode < 500 {
			b = b.WithRetry(derrors.RetryNever)
		}
		return nil, b.Build()
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteSize+1))
	if err != nil {
		return nil, derrors.NetworkError("failed to read remote document").
			WithCause(err).
			WithContext("url", url).
			Build()
	}
	if len(body) > maxRemoteSize {
		return nil, derrors.UserFeedback(fmt.Sprintf("remote document %s is larger than %d bytes", url, maxRemoteSize)).Build()
	}
	return body, nil
}
