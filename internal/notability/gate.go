// Package notability decides whether a business has enough independent,
// serious coverage to justify a knowledge-graph entity. It searches the web
// for the business, has a language model classify each hit against an
// explicit rubric, and applies fixed thresholds to the classified list.
package notability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/pkg/anthropic"
	"github.com/visiq/visibility-cli/pkg/jina"
)

const rubricSystemPrompt = `You judge whether web search results are serious, independent references for a business. A reference is "serious" when it comes from a reputable source category: news media, government, academic publications, or established business directories. A reference is "independent" when the business itself did not author or commission it (its own website, social profiles, and press releases are not independent). Respond with JSON only, no prose, in this shape:
{"references":[{"url":"...","serious":true,"independent":true,"reason":"..."}],"confidence":0.0,"reasons":["..."],"suggestions":["..."]}
The confidence field is your aggregate confidence in the classification, between 0 and 1. When the business falls short, reasons states what is missing and suggestions names concrete coverage that would help.`

// Gate assesses notability.
type Gate struct {
	search    jina.Client
	llm       anthropic.Client
	modelName string

	minReferences   int
	confidenceFloor float64
	maxResults      int
}

// NewGate builds a gate with thresholds from configuration.
func NewGate(search jina.Client, llm anthropic.Client, modelName string, cfg config.NotabilityConfig) *Gate {
	minReferences := cfg.MinReferences
	if minReferences <= 0 {
		minReferences = 3
	}
	confidenceFloor := cfg.ConfidenceFloor
	if confidenceFloor <= 0 {
		confidenceFloor = 0.7
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Gate{
		search:          search,
		llm:             llm,
		modelName:       modelName,
		minReferences:   minReferences,
		confidenceFloor: confidenceFloor,
		maxResults:      maxResults,
	}
}

// Assess runs the full search-classify-threshold sequence for one business.
// Zero search results short-circuit to a failed verdict without a model
// call.
func (g *Gate) Assess(ctx context.Context, b model.Business) (*model.NotabilityVerdict, error) {
	query := b.Name
	if b.Location.City != "" {
		query += " " + b.Location.City
	}

	resp, err := g.search.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "notability: search")
	}

	results := resp.Data
	if len(results) > g.maxResults {
		results = results[:g.maxResults]
	}

	if len(results) == 0 {
		zap.L().Info("notability short-circuit: no search results",
			zap.String("business_id", b.ID))
		return &model.NotabilityVerdict{
			BusinessID: b.ID,
			Passed:     false,
			Confidence: 1.0,
			Reasons:    []string{"no search results found for business name"},
			Suggestions: []string{
				"seek coverage in local news or established business directories",
			},
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	classified, err := g.classify(ctx, b, results)
	if err != nil {
		return nil, err
	}

	verdict := &model.NotabilityVerdict{
		BusinessID: b.ID,
		Confidence: classified.Confidence,
		References: classified.references(results),
		Reasons:    classified.Reasons,
		Suggestions: classified.Suggestions,
		CreatedAt:  time.Now().UTC(),
	}

	serious := verdict.SeriousCount()
	verdict.Passed = serious >= g.minReferences && verdict.Confidence >= g.confidenceFloor
	if !verdict.Passed {
		if serious < g.minReferences {
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("insufficient serious references: %d of %d required", serious, g.minReferences))
		}
		if verdict.Confidence < g.confidenceFloor {
			verdict.Reasons = append(verdict.Reasons,
				fmt.Sprintf("classification confidence %.2f below floor %.2f", verdict.Confidence, g.confidenceFloor))
		}
	}

	zap.L().Info("notability verdict",
		zap.String("business_id", b.ID),
		zap.Bool("passed", verdict.Passed),
		zap.Int("serious_references", serious),
		zap.Float64("confidence", verdict.Confidence),
	)
	return verdict, nil
}

// classification is the model's JSON response.
type classification struct {
	References []struct {
		URL         string `json:"url"`
		Serious     bool   `json:"serious"`
		Independent bool   `json:"independent"`
		Reason      string `json:"reason"`
	} `json:"references"`
	Confidence  float64  `json:"confidence"`
	Reasons     []string `json:"reasons"`
	Suggestions []string `json:"suggestions"`
}

// references joins the model's per-URL classification back onto the search
// hits. Hits the model did not classify default to not-serious.
func (c *classification) references(results []jina.SearchResult) []model.NotabilityReference {
	byURL := make(map[string]int, len(c.References))
	for i, r := range c.References {
		byURL[r.URL] = i
	}

	out := make([]model.NotabilityReference, 0, len(results))
	for _, hit := range results {
		ref := model.NotabilityReference{
			Title:  hit.Title,
			URL:    hit.URL,
			Domain: domainOf(hit.URL),
		}
		if i, ok := byURL[hit.URL]; ok {
			ref.Serious = c.References[i].Serious
			ref.Independent = c.References[i].Independent
			ref.Reason = c.References[i].Reason
		}
		out = append(out, ref)
	}
	return out
}

func (g *Gate) classify(ctx context.Context, b model.Business, results []jina.SearchResult) (*classification, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Business: %s", b.Name)
	if loc := b.Location.String(); loc != "" {
		fmt.Fprintf(&sb, " (%s)", loc)
	}
	fmt.Fprintf(&sb, "\nWebsite: %s\n\nSearch results:\n", b.URL)
	for i, r := range results {
		fmt.Fprintf(&sb, "%d. %s\n   URL: %s\n   Snippet: %s\n", i+1, r.Title, r.URL, r.Description)
	}

	resp, err := g.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.modelName,
		MaxTokens: 2048,
		System:    rubricSystemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "notability: classify references")
	}

	var c classification
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &c); err != nil {
		return nil, eris.Wrap(err, "notability: parse classification")
	}
	return &c, nil
}

// extractJSON tolerates models that wrap the JSON object in fences or prose.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Host), "www.")
}
