package resilience

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"

	"github.com/visiq/visibility-cli/pkg/anthropic"
	"github.com/visiq/visibility-cli/pkg/firecrawl"
	"github.com/visiq/visibility-cli/pkg/jina"
	"github.com/visiq/visibility-cli/pkg/perplexity"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", MarkTransient(eris.New("429"), 429), true},
		{"marked permanent", MarkPermanent(eris.New("bad input")), false},
		{"permanent wins over transient message", MarkPermanent(eris.New("i/o timeout")), false},
		{"plain error", eris.New("something odd"), false},
		{"timeout message", eris.New("dial tcp: i/o timeout"), true},
		{"reset message", eris.New("read: connection reset by peer"), true},
		{"dns message", eris.New("lookup api.example.com: no such host"), true},

		// Typed client errors classify by their HTTP status.
		{"firecrawl 503", &firecrawl.APIError{StatusCode: 503}, true},
		{"firecrawl 401", &firecrawl.APIError{StatusCode: 401}, false},
		{"perplexity 429", &perplexity.APIError{StatusCode: 429}, true},
		{"perplexity 400", &perplexity.APIError{StatusCode: 400}, false},
		{"jina 502", &jina.APIError{StatusCode: 502}, true},
		{"wikibase 503", &wikibase.StatusError{StatusCode: 503}, true},
		{"anthropic overloaded", &anthropic.APIError{StatusCode: 529, Err: eris.New("overloaded")}, true},
		{"wrapped firecrawl 503", eris.Wrap(&firecrawl.APIError{StatusCode: 503}, "crawl: submit"), true},
		{"wrapped firecrawl 400", eris.Wrap(&firecrawl.APIError{StatusCode: 400}, "crawl: submit"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryableStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, RetryableStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 301, 400, 401, 403, 404, 422} {
		assert.False(t, RetryableStatus(code), "status %d", code)
	}
}

func TestExhausted_Unwrap(t *testing.T) {
	inner := MarkTransient(eris.New("503"), 503)
	ex := &Exhausted{Op: "publish", Attempts: 4, Err: inner}
	assert.True(t, IsExhausted(ex))
	assert.Contains(t, ex.Error(), "publish")
	assert.ErrorIs(t, ex, inner)
}
