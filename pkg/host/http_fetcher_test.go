package host

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aminofox/hlsplay/pkg/requester"
	"github.com/aminofox/hlsplay/pkg/urlutil"
)

func TestHTTPFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("#EXTM3U\n"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	data, err := f.Fetch(context.Background(), urlutil.New(srv.URL))
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "#EXTM3U\n" {
		t.Errorf("Fetch() = %q", data)
	}
}

func TestHTTPFetcherNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	_, err := f.Fetch(context.Background(), urlutil.New(srv.URL))

	statusErr, ok := err.(*requester.StatusError)
	if !ok || statusErr.Status != 503 {
		t.Fatalf("Fetch() error = %v, want *requester.StatusError{503}", err)
	}
}

func TestObjectKeyStripsDomain(t *testing.T) {
	u := urlutil.New("https://bucket.s3.amazonaws.com/live/master.m3u8")
	if got := objectKey(u); got != "live/master.m3u8" {
		t.Errorf("objectKey() = %q, want %q", got, "live/master.m3u8")
	}
}
