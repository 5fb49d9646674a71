package crawl

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/resilience"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
)

func TestCrawlerRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/crawl":
			_, _ = w.Write([]byte(`{"success": true, "id": "job-1"}`))
		case "/crawl/job-1":
			_, _ = w.Write([]byte(`{
				"status": "completed",
				"total": 1,
				"data": [{"url": "https://acme-bakery.example", "markdown": "Contact: hello@acme-bakery.example"}]
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	crawler := NewCrawler(
		firecrawl.NewClient("k", firecrawl.WithBaseURL(srv.URL)),
		config.FirecrawlConfig{MaxPages: 10},
	)

	data, err := crawler.Run(context.Background(), bakeryBusiness())
	require.NoError(t, err)
	assert.Equal(t, "b-1", data.BusinessID)
	assert.Equal(t, "hello@acme-bakery.example", data.Email)
}

func TestCrawlerRun_NoURL(t *testing.T) {
	crawler := NewCrawler(firecrawl.NewClient("k"), config.FirecrawlConfig{})

	b := bakeryBusiness()
	b.URL = ""
	_, err := crawler.Run(context.Background(), b)
	require.Error(t, err)
}

func TestCrawlerRun_RejectedJob(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	crawler := NewCrawler(
		firecrawl.NewClient("k", firecrawl.WithBaseURL(srv.URL)),
		config.FirecrawlConfig{},
	)

	_, err := crawler.Run(context.Background(), bakeryBusiness())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
	// Rejection is final; retry envelopes must not resubmit it.
	assert.False(t, resilience.IsTransient(err))
	var perm *resilience.Permanent
	assert.ErrorAs(t, err, &perm)
}
