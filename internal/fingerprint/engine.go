// Package fingerprint measures how visible a business is to conversational
// AI models. It fans a prompt matrix (configured models × prompt categories)
// out concurrently, classifies each response without further model calls,
// and aggregates the slots into a visibility score and competitive
// leaderboard.
package fingerprint

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/metrics"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/resilience"
	"github.com/visiq/visibility-cli/pkg/anthropic"
	"github.com/visiq/visibility-cli/pkg/perplexity"
)

// Caller executes one prompt against one provider's model and returns the
// response text with its token cost.
type Caller interface {
	Call(ctx context.Context, modelName, system, prompt string) (text string, tokens int, err error)
}

// AnthropicCaller adapts the Anthropic client to the Caller interface.
type AnthropicCaller struct {
	Client    anthropic.Client
	MaxTokens int64
}

func (c AnthropicCaller) Call(ctx context.Context, modelName, system, prompt string) (string, int, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	resp, err := c.Client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     modelName,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", 0, err
	}
	return resp.Text, int(resp.Usage.Total()), nil
}

// PerplexityCaller adapts the Perplexity client to the Caller interface.
type PerplexityCaller struct {
	Client perplexity.Client
}

func (c PerplexityCaller) Call(ctx context.Context, modelName, system, prompt string) (string, int, error) {
	resp, err := c.Client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: modelName,
		Messages: []perplexity.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return "", 0, err
	}
	if len(resp.Choices) == 0 {
		return "", 0, eris.New("fingerprint: empty completion")
	}
	return resp.Choices[0].Message.Content, resp.Usage.PromptTokens + resp.Usage.CompletionTokens, nil
}

// Engine runs fingerprint analyses.
type Engine struct {
	callers     map[string]Caller // keyed by provider name
	models      []config.ModelSpec
	limiter     *rate.Limiter
	maxParallel int
	callTimeout time.Duration

	// breakers isolates a failing provider so the rest of the matrix
	// keeps running while its slots fail fast.
	breakers *resilience.BreakerSet
}

// NewEngine builds an engine over the given provider callers.
func NewEngine(callers map[string]Caller, cfg config.FingerprintConfig) *Engine {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 4
	}
	callTimeout := cfg.CallTimeout()
	if callTimeout <= 0 {
		callTimeout = 45 * time.Second
	}
	ratePerSecond := cfg.RatePerSecond
	if ratePerSecond <= 0 {
		ratePerSecond = 2.0
	}

	return &Engine{
		callers:     callers,
		models:      cfg.Models,
		limiter:     rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		maxParallel: maxParallel,
		callTimeout: callTimeout,
		breakers: resilience.NewBreakerSet(resilience.BreakerConfig{
			Threshold: cfg.BreakerThreshold,
			OnStateChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("provider breaker state change",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

// Run dispatches the full prompt matrix for one business and aggregates the
// results. Every slot is preserved: a call that errors or times out keeps
// its position with an error marker and counts as a non-mention. Run fails
// only when no call succeeded at all.
func (e *Engine) Run(ctx context.Context, b model.Business, crawled *model.CrawledData) (*model.FingerprintAnalysis, error) {
	if len(e.models) == 0 {
		return nil, eris.New("fingerprint: no models configured")
	}

	results := make([]model.FingerprintResult, len(e.models)*len(model.Categories))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)

	for mi, spec := range e.models {
		for ci, category := range model.Categories {
			slot := mi*len(model.Categories) + ci
			g.Go(func() error {
				results[slot] = e.callSlot(gctx, spec, category, b, crawled)
				return nil
			})
		}
	}
	// Workers never return errors; slots carry their own failures.
	_ = g.Wait()

	analysis := Analyze(b.ID, results)
	metrics.SetVisibilityScore(b.ID, analysis.VisibilityScore)

	zap.L().Info("fingerprint run complete",
		zap.String("business_id", b.ID),
		zap.Int("attempted", analysis.Attempted),
		zap.Int("succeeded", analysis.Succeeded),
		zap.Float64("visibility_score", analysis.VisibilityScore),
	)

	if analysis.Succeeded == 0 {
		return nil, eris.Errorf("fingerprint: all %d model calls failed", analysis.Attempted)
	}
	return &analysis, nil
}

func (e *Engine) callSlot(ctx context.Context, spec config.ModelSpec, category model.PromptCategory, b model.Business, crawled *model.CrawledData) model.FingerprintResult {
	result := model.FingerprintResult{
		Provider: spec.Provider,
		Model:    spec.Model,
		Category: category,
	}

	caller, ok := e.callers[spec.Provider]
	if !ok {
		result.Error = "unknown provider: " + spec.Provider
		return result
	}

	if err := e.limiter.Wait(ctx); err != nil {
		result.Error = err.Error()
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	start := time.Now()
	var text string
	var tokens int
	err := e.breakers.Get(spec.Provider).Execute(callCtx, func(ctx context.Context) error {
		var callErr error
		text, tokens, callErr = caller.Call(ctx, spec.Model, systemPrompt, BuildPrompt(category, b, crawled))
		return callErr
	})
	if err != nil {
		metrics.ObserveModelCall(spec.Provider, spec.Model, "error", 0, time.Since(start))
		zap.L().Warn("model call failed",
			zap.String("provider", spec.Provider),
			zap.String("model", spec.Model),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		result.Error = err.Error()
		return result
	}
	metrics.ObserveModelCall(spec.Provider, spec.Model, "ok", tokens, time.Since(start))

	result.Tokens = tokens
	result.Mentioned = DetectMention(text, b.Name)
	result.Sentiment, result.Confidence = ClassifySentiment(text)
	if category == model.CategoryRecommendation {
		result.Rank = ExtractRank(text, b.Name)
		result.Competitors = ExtractCompetitors(text, b.Name)
	}
	return result
}
