package firecrawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollCrawl_CompletesAfterScraping(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			_, _ = w.Write([]byte(`{"status": "scraping", "total": 0, "data": []}`))
			return
		}
		_, _ = w.Write([]byte(`{"status": "completed", "total": 2, "data": [{"url": "a"}, {"url": "b"}]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))

	status, err := PollCrawl(context.Background(), client, "id-1",
		WithPollInterval(time.Millisecond), WithPollCap(2*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "completed", status.Status)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollCrawl_Failed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "failed"}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))

	_, err := PollCrawl(context.Background(), client, "id-1", WithPollInterval(time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}

func TestPollCrawl_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status": "scraping"}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))

	_, err := PollCrawl(context.Background(), client, "id-1",
		WithPollInterval(time.Millisecond), WithPollTimeout(10*time.Millisecond))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}
