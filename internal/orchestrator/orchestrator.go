// Package orchestrator drives businesses through the crawl, fingerprint and
// publish stages. It owns the status state machine: every transition is a
// compare-and-set through the store, stage failures land in the error state
// with the failing stage recorded, and each stage runs under a bounded retry
// envelope.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/visiq/visibility-cli/internal/config"
	"github.com/visiq/visibility-cli/internal/entity"
	"github.com/visiq/visibility-cli/internal/metrics"
	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/resilience"
	"github.com/visiq/visibility-cli/internal/store"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

// Crawler is the crawl stage.
type Crawler interface {
	Run(ctx context.Context, b model.Business) (*model.CrawledData, error)
}

// Fingerprinter is the fingerprint stage.
type Fingerprinter interface {
	Run(ctx context.Context, b model.Business, crawled *model.CrawledData) (*model.FingerprintAnalysis, error)
}

// Gate assesses notability ahead of publishing.
type Gate interface {
	Assess(ctx context.Context, b model.Business) (*model.NotabilityVerdict, error)
}

// Orchestrator coordinates the pipeline for individual businesses.
type Orchestrator struct {
	store   store.Store
	crawler Crawler
	engine  Fingerprinter
	gate    Gate
	builder *entity.Builder
	graph   wikibase.Client

	runTimeout    time.Duration
	maxConcurrent int

	// publishBreaker stops retry envelopes from hammering the knowledge
	// graph once it keeps failing transiently across businesses.
	publishBreaker *resilience.Breaker
}

// New wires an orchestrator.
func New(st store.Store, crawler Crawler, engine Fingerprinter, gate Gate, builder *entity.Builder, graph wikibase.Client, cfg config.PipelineConfig) *Orchestrator {
	runTimeout := cfg.RunTimeout()
	if runTimeout <= 0 {
		runTimeout = 10 * time.Minute
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Orchestrator{
		store:         st,
		crawler:       crawler,
		engine:        engine,
		gate:          gate,
		builder:       builder,
		graph:         graph,
		runTimeout:    runTimeout,
		maxConcurrent: maxConcurrent,
		publishBreaker: resilience.NewBreaker(resilience.BreakerConfig{
			OnStateChange: func(from, to resilience.BreakerState) {
				zap.L().Warn("publish breaker state change",
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			},
		}),
	}
}

// Status is the full pipeline view of one business.
type Status struct {
	Business    model.Business             `json:"business"`
	Fingerprint *model.FingerprintAnalysis `json:"fingerprint,omitempty"`
	// ScoreDelta is the visibility change against the previous analysis,
	// present from the second run on.
	ScoreDelta *float64                 `json:"score_delta,omitempty"`
	Verdict    *model.NotabilityVerdict `json:"verdict,omitempty"`
}

// GetStatus returns the business with its latest analysis, the score trend
// against the previous run, and the latest verdict.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*Status, error) {
	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return nil, err
	}

	s := &Status{Business: *b}
	if history, err := o.store.ListFingerprints(ctx, id, 2); err != nil {
		return nil, err
	} else if len(history) > 0 {
		s.Fingerprint = &history[0]
		if len(history) > 1 {
			delta := history[0].VisibilityScore - history[1].VisibilityScore
			s.ScoreDelta = &delta
		}
	}
	if verdict, err := o.store.LatestVerdict(ctx, id); err == nil {
		s.Verdict = verdict
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s, nil
}

// StartProcessing runs the crawl and fingerprint stages for one pending
// business, then attempts auto-publish when the tier allows it. The whole
// run is bounded by the configured timeout; fingerprinting starts after
// crawl completion (sequential-but-pipelined), so a fingerprint retry never
// observes partial crawl data.
func (o *Orchestrator) StartProcessing(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	switch b.Status {
	case model.StatusPending:
	case model.StatusError:
		return eris.Errorf("orchestrator: business %s is errored, reset it before reprocessing", id)
	default:
		// Already in flight or done; a repeated start is a no-op.
		zap.L().Info("start skipped",
			zap.String("business_id", id),
			zap.String("status", string(b.Status)),
		)
		return nil
	}

	crawled, err := o.runCrawl(ctx, *b)
	if err != nil {
		return err
	}

	if _, err := o.runFingerprint(ctx, *b, crawled); err != nil {
		return err
	}

	return o.maybeAutoPublish(ctx, id)
}

func (o *Orchestrator) runCrawl(ctx context.Context, b model.Business) (*model.CrawledData, error) {
	if err := o.transition(ctx, b.ID, model.StatusPending, model.StatusCrawling); err != nil {
		return nil, err
	}

	start := time.Now()
	crawled, err := resilience.RunVal(ctx, resilience.StageEnvelope("crawl"),
		func(ctx context.Context) (*model.CrawledData, error) {
			return o.crawler.Run(ctx, b)
		})
	if err != nil {
		metrics.ObserveStage("crawl", "error", time.Since(start))
		return nil, o.fail(ctx, b.ID, "crawl", err)
	}

	if err := o.store.SaveCrawl(ctx, *crawled); err != nil {
		return nil, o.fail(ctx, b.ID, "crawl", err)
	}
	if err := o.transition(ctx, b.ID, model.StatusCrawling, model.StatusCrawled); err != nil {
		return nil, err
	}
	metrics.ObserveStage("crawl", "ok", time.Since(start))
	return crawled, nil
}

func (o *Orchestrator) runFingerprint(ctx context.Context, b model.Business, crawled *model.CrawledData) (*model.FingerprintAnalysis, error) {
	if err := o.transition(ctx, b.ID, model.StatusCrawled, model.StatusGenerating); err != nil {
		return nil, err
	}

	start := time.Now()
	analysis, err := o.engine.Run(ctx, b, crawled)
	if err != nil {
		metrics.ObserveStage("fingerprint", "error", time.Since(start))
		return nil, o.fail(ctx, b.ID, "fingerprint", err)
	}

	// The analysis ID is stable across retries, so a repeated save upserts
	// instead of growing history.
	if err := resilience.StageEnvelope("save fingerprint").Run(ctx, func(ctx context.Context) error {
		return o.store.SaveFingerprint(ctx, *analysis)
	}); err != nil {
		return nil, o.fail(ctx, b.ID, "fingerprint", err)
	}

	if err := o.transition(ctx, b.ID, model.StatusGenerating, model.StatusFingerprinted); err != nil {
		return nil, err
	}
	metrics.ObserveStage("fingerprint", "ok", time.Since(start))
	return analysis, nil
}

// maybeAutoPublish assesses notability and publishes when the pure decision
// allows it. A negative decision is not an error; the business stays
// fingerprinted awaiting a manual trigger.
func (o *Orchestrator) maybeAutoPublish(ctx context.Context, id string) error {
	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	if !b.Tier.AutoPublishEligible() {
		zap.L().Info("auto-publish skipped",
			zap.String("business_id", id),
			zap.String("reason", "tier not eligible"),
			zap.String("tier", string(b.Tier)),
		)
		return nil
	}

	verdict, err := o.assess(ctx, *b)
	if err != nil {
		return o.fail(ctx, id, "notability", err)
	}

	publish, reasons := ShouldAutoPublish(b.Status, b.Tier, verdict)
	if !publish {
		metrics.ObservePublish("gated")
		zap.L().Info("auto-publish skipped",
			zap.String("business_id", id),
			zap.Strings("reasons", reasons),
		)
		return nil
	}

	return o.publish(ctx, *b, verdict)
}

// ManualPublish publishes a fingerprinted business on explicit request. The
// notability gate still applies; only the tier requirement is waived.
func (o *Orchestrator) ManualPublish(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}
	if b.Status == model.StatusPublished {
		zap.L().Info("publish skipped: already published",
			zap.String("business_id", id),
			zap.String("entity_id", b.EntityID),
		)
		return nil
	}
	if b.Status != model.StatusFingerprinted {
		return eris.Errorf("orchestrator: business %s is %s, not %s", id, b.Status, model.StatusFingerprinted)
	}

	verdict, err := o.assess(ctx, *b)
	if err != nil {
		return o.fail(ctx, id, "notability", err)
	}
	if !verdict.Passed {
		metrics.ObservePublish("gated")
		return eris.Errorf("orchestrator: notability verdict failed for %s", id)
	}

	return o.publish(ctx, *b, verdict)
}

func (o *Orchestrator) assess(ctx context.Context, b model.Business) (*model.NotabilityVerdict, error) {
	verdict, err := resilience.RunVal(ctx, resilience.StageEnvelope("notability"),
		func(ctx context.Context) (*model.NotabilityVerdict, error) {
			return o.gate.Assess(ctx, b)
		})
	if err != nil {
		return nil, err
	}
	if err := o.store.SaveVerdict(ctx, *verdict); err != nil {
		return nil, err
	}
	return verdict, nil
}

// publish transitions into publishing, creates the entity, and records its
// identifier. An existing identifier (either stored or reported by a create
// conflict) makes the publish idempotent.
func (o *Orchestrator) publish(ctx context.Context, b model.Business, verdict *model.NotabilityVerdict) error {
	if err := o.transition(ctx, b.ID, model.StatusFingerprinted, model.StatusPublishing); err != nil {
		return err
	}

	if b.EntityID != "" {
		zap.L().Info("publish skipped: entity already exists",
			zap.String("business_id", b.ID),
			zap.String("entity_id", b.EntityID),
		)
		metrics.ObservePublish("conflict")
		return o.transition(ctx, b.ID, model.StatusPublishing, model.StatusPublished)
	}

	crawled, err := o.store.GetCrawl(ctx, b.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return o.fail(ctx, b.ID, "publish", err)
	}

	var refs []model.NotabilityReference
	if verdict != nil {
		refs = verdict.References
	}
	draft := o.builder.Build(ctx, b, crawled, refs)
	payload := entity.ToPayload(draft)

	start := time.Now()
	entityID, err := resilience.RunVal(ctx, resilience.StageEnvelope("publish"),
		func(ctx context.Context) (string, error) {
			// The breaker sits inside the envelope: once it opens,
			// ErrBreakerOpen is not transient and the envelope stops.
			return resilience.ExecuteVal(ctx, o.publishBreaker,
				func(ctx context.Context) (string, error) {
					id, err := o.graph.CreateEntity(ctx, payload)
					var conflict *wikibase.ConflictError
					if errors.As(err, &conflict) && conflict.ExistingID != "" {
						// Someone (possibly an earlier attempt of ours)
						// already created this entity. Adopt it.
						return conflict.ExistingID, nil
					}
					var apiErr *wikibase.APIError
					if errors.As(err, &apiErr) && apiErr.Retryable() {
						return "", resilience.MarkTransient(err, 0)
					}
					return id, err
				})
		})
	if err != nil {
		metrics.ObservePublish("failed")
		metrics.ObserveStage("publish", "error", time.Since(start))
		return o.fail(ctx, b.ID, "publish", err)
	}

	if err := o.store.SetEntityID(ctx, b.ID, entityID); err != nil {
		return o.fail(ctx, b.ID, "publish", err)
	}
	if err := o.transition(ctx, b.ID, model.StatusPublishing, model.StatusPublished); err != nil {
		return err
	}

	metrics.ObservePublish("created")
	metrics.ObserveStage("publish", "ok", time.Since(start))
	zap.L().Info("published",
		zap.String("business_id", b.ID),
		zap.String("entity_id", entityID),
		zap.Int("claims", draft.ClaimCount()),
	)
	return nil
}

// ResetAndRetry moves an errored business back to pending and, when
// reprocess is set, immediately runs the pipeline again. Resetting a
// business that is already pending is a no-op, so a repeated retry
// request cannot fail.
func (o *Orchestrator) ResetAndRetry(ctx context.Context, id string, reprocess bool) error {
	b, err := o.store.GetBusiness(ctx, id)
	if err != nil {
		return err
	}

	switch b.Status {
	case model.StatusError:
		if err := o.transition(ctx, id, model.StatusError, model.StatusPending); err != nil {
			return err
		}
	case model.StatusPending:
		// Already reset.
	default:
		return eris.Wrapf(store.ErrStatusConflict,
			"orchestrator: business %s is %s, nothing to reset", id, b.Status)
	}

	if !reprocess {
		return nil
	}
	return o.StartProcessing(ctx, id)
}

// ProcessMany runs the pipeline for a batch of pending businesses with
// bounded parallelism. Failures are isolated per business.
func (o *Orchestrator) ProcessMany(ctx context.Context, ids []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.maxConcurrent)

	for _, id := range ids {
		g.Go(func() error {
			if err := o.StartProcessing(gctx, id); err != nil {
				zap.L().Error("pipeline run failed",
					zap.String("business_id", id),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	return g.Wait()
}

// transition performs a CAS status update, validating the edge first.
func (o *Orchestrator) transition(ctx context.Context, id string, from, to model.Status) error {
	if !model.CanTransition(from, to) {
		return eris.Errorf("orchestrator: illegal transition %s -> %s", from, to)
	}
	if err := o.store.UpdateStatus(ctx, id, from, to); err != nil {
		return eris.Wrapf(err, "orchestrator: transition %s -> %s for %s", from, to, id)
	}
	return nil
}

// fail records a stage failure and returns the original error. A run
// timeout or cancellation is recorded like any stage error.
func (o *Orchestrator) fail(ctx context.Context, id, stage string, cause error) error {
	if resilience.IsExhausted(cause) {
		zap.L().Error("stage retries exhausted, manual action required",
			zap.String("business_id", id),
			zap.String("stage", stage),
			zap.Error(cause),
		)
	}

	// Use a fresh context so the error still lands when the run context is
	// already done.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.SetError(recordCtx, id, stage, cause.Error()); err != nil {
		zap.L().Error("failed to record stage error",
			zap.String("business_id", id),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}
	return eris.Wrapf(cause, "orchestrator: %s stage failed for %s", stage, id)
}
