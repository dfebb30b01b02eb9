// Package host ships concrete implementations of the capabilities the
// control plane treats as opaque collaborators: HTTP/S3 origins
// for the Fetcher interface, a Redis-backed resource cache decorator, and
// a real wall-clock Timer.
package host

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

// HTTPFetcher is a requester.Fetcher backed by net/http, the default
// origin for playlists and segments served over plain HTTP(S).
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates an HTTPFetcher with the given per-request
// timeout as a client-level ceiling; the Requester's own per-category
// timeout still governs retry behavior via the context it supplies.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch issues a GET request and returns the response body, classifying a
// non-2xx response as a *requester.StatusError so the Requester's retry
// policy can act on it.
func (f *HTTPFetcher) Fetch(ctx context.Context, url urlutil.Url) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url.String(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &requester.TimeoutError{}
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &requester.StatusError{Status: resp.StatusCode}
	}

	return io.ReadAll(resp.Body)
}
