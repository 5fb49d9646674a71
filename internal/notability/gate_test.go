package notability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/pkg/anthropic"
	"github.com/visiq/visibility-cli/pkg/jina"
)

type fakeSearch struct {
	results []jina.SearchResult
	queries []string
}

func (s *fakeSearch) Search(_ context.Context, query string) (*jina.SearchResponse, error) {
	s.queries = append(s.queries, query)
	return &jina.SearchResponse{Code: 200, Data: s.results}, nil
}

type fakeLLM struct {
	response string
	calls    int
}

func (l *fakeLLM) CreateMessage(_ context.Context, _ anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	l.calls++
	return &anthropic.MessageResponse{Text: l.response}, nil
}

func testGateBusiness() model.Business {
	return model.Business{
		ID:       "b-1",
		Name:     "Acme Bakery",
		URL:      "https://acme-bakery.example",
		Location: model.Location{City: "Berlin", Country: "Germany"},
	}
}

func searchHits(n int) []jina.SearchResult {
	hits := []jina.SearchResult{
		{Title: "Berlin's best bakeries", URL: "https://news.example/bakeries", Description: "City paper feature"},
		{Title: "Acme Bakery review", URL: "https://guide.example/acme", Description: "Directory entry"},
		{Title: "Acme Bakery", URL: "https://acme-bakery.example", Description: "Official site"},
		{Title: "Craft bread in Kreuzberg", URL: "https://blog.example/bread", Description: "Local blog"},
	}
	return hits[:n]
}

func TestAssess_ZeroResultsShortCircuits(t *testing.T) {
	search := &fakeSearch{}
	llm := &fakeLLM{}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	assert.NotEmpty(t, verdict.Reasons)
	assert.Zero(t, llm.calls, "model must not be invoked for zero results")
	require.Len(t, search.queries, 1)
	assert.Equal(t, "Acme Bakery Berlin", search.queries[0])
}

func TestAssess_TwoSeriousReferencesFail(t *testing.T) {
	search := &fakeSearch{results: searchHits(3)}
	llm := &fakeLLM{response: `{
		"references": [
			{"url": "https://news.example/bakeries", "serious": true, "independent": true, "reason": "news coverage"},
			{"url": "https://guide.example/acme", "serious": true, "independent": true, "reason": "established directory"},
			{"url": "https://acme-bakery.example", "serious": false, "independent": false, "reason": "own website"}
		],
		"confidence": 0.9,
		"reasons": [],
		"suggestions": ["seek additional press coverage"]
	}`}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{MinReferences: 3, ConfidenceFloor: 0.7})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	assert.Equal(t, 2, verdict.SeriousCount())
	assert.Contains(t, verdict.Reasons[0], "insufficient serious references")
	assert.NotEmpty(t, verdict.Suggestions)
}

func TestAssess_ThreeSeriousReferencesPass(t *testing.T) {
	search := &fakeSearch{results: searchHits(4)}
	llm := &fakeLLM{response: "Here is the classification:\n```json\n" + `{
		"references": [
			{"url": "https://news.example/bakeries", "serious": true, "independent": true},
			{"url": "https://guide.example/acme", "serious": true, "independent": true},
			{"url": "https://acme-bakery.example", "serious": false, "independent": false},
			{"url": "https://blog.example/bread", "serious": true, "independent": true}
		],
		"confidence": 0.85,
		"reasons": [],
		"suggestions": []
	}` + "\n```"}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{MinReferences: 3, ConfidenceFloor: 0.7})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)

	assert.True(t, verdict.Passed)
	assert.Equal(t, 3, verdict.SeriousCount())
	assert.Equal(t, 0.85, verdict.Confidence)

	require.Len(t, verdict.References, 4)
	assert.Equal(t, "news.example", verdict.References[0].Domain)
}

func TestAssess_LowConfidenceFails(t *testing.T) {
	search := &fakeSearch{results: searchHits(3)}
	llm := &fakeLLM{response: `{
		"references": [
			{"url": "https://news.example/bakeries", "serious": true, "independent": true},
			{"url": "https://guide.example/acme", "serious": true, "independent": true},
			{"url": "https://acme-bakery.example", "serious": true, "independent": true}
		],
		"confidence": 0.4
	}`}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{MinReferences: 3, ConfidenceFloor: 0.7})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)

	assert.False(t, verdict.Passed)
	assert.Contains(t, verdict.Reasons[0], "below floor")
}

func TestAssess_UnclassifiedHitsDefaultToNotSerious(t *testing.T) {
	search := &fakeSearch{results: searchHits(2)}
	llm := &fakeLLM{response: `{
		"references": [
			{"url": "https://news.example/bakeries", "serious": true, "independent": true}
		],
		"confidence": 0.9
	}`}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)

	assert.Equal(t, 1, verdict.SeriousCount())
	require.Len(t, verdict.References, 2)
	assert.False(t, verdict.References[1].Serious)
}

func TestAssess_MaxResultsBound(t *testing.T) {
	search := &fakeSearch{results: searchHits(4)}
	llm := &fakeLLM{response: `{"references": [], "confidence": 0.9}`}
	gate := NewGate(search, llm, "test-model", config.NotabilityConfig{MaxResults: 2})

	verdict, err := gate.Assess(context.Background(), testGateBusiness())
	require.NoError(t, err)
	assert.Len(t, verdict.References, 2)
}
