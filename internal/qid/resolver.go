// Package qid resolves free-text names (cities, countries, legal forms,
// industries) to knowledge-graph item identifiers through a four-tier cache:
// an in-process map, the persistent store, a compiled-in static table, and
// finally the Wikibase search API. Hits at lower tiers backfill the tiers
// above them, so any text is resolved remotely at most once.
package qid

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/visiq/visibility-cli/internal/metrics"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

// Kind classifies what a text is expected to name. It namespaces cache keys
// so "Berlin" the city never collides with a business called Berlin.
type Kind string

const (
	KindCity      Kind = "city"
	KindRegion    Kind = "region"
	KindCountry   Kind = "country"
	KindLegalForm Kind = "legal_form"
	KindIndustry  Kind = "industry"
)

var folder = cases.Fold()

// cacheKey normalizes text into a namespaced cache key. Case folding rather
// than plain lowercasing so "STRASSE"/"straße" agree.
func cacheKey(kind Kind, text string) string {
	return string(kind) + ":" + folder.String(strings.TrimSpace(text))
}

// PersistentCache is the durable tier backing the resolver, implemented by
// the store.
type PersistentCache interface {
	GetQID(ctx context.Context, key string) (string, error)
	PutQID(ctx context.Context, key, qid string) error
}

// Resolver resolves texts to QIDs. Safe for concurrent use.
type Resolver struct {
	mu  sync.RWMutex
	mem map[string]string

	cache  PersistentCache
	static map[string]string

	// remote is nil when remote lookup is disabled.
	remote        wikibase.Client
	remoteTimeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithRemote enables the Wikibase search fallback tier.
func WithRemote(client wikibase.Client, timeout time.Duration) Option {
	return func(r *Resolver) {
		r.remote = client
		if timeout > 0 {
			r.remoteTimeout = timeout
		}
	}
}

// NewResolver builds a resolver over the given persistent cache.
func NewResolver(cache PersistentCache, opts ...Option) (*Resolver, error) {
	static, err := loadStaticTable()
	if err != nil {
		return nil, err
	}

	r := &Resolver{
		mem:           make(map[string]string),
		cache:         cache,
		static:        static,
		remoteTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the QID for the given text, or ok=false when no tier can
// resolve it. Resolution failures (store or network) degrade to a miss: QID
// enrichment must never fail a pipeline run.
func (r *Resolver) Resolve(ctx context.Context, kind Kind, text string) (string, bool) {
	if strings.TrimSpace(text) == "" {
		return "", false
	}
	key := cacheKey(kind, text)

	// Tier 1: in-process map.
	r.mu.RLock()
	q, ok := r.mem[key]
	r.mu.RUnlock()
	if ok {
		metrics.ObserveQIDLookup("memory")
		return q, true
	}

	// Tier 2: persistent store.
	if r.cache != nil {
		q, err := r.cache.GetQID(ctx, key)
		if err != nil {
			zap.L().Warn("qid store lookup failed", zap.String("key", key), zap.Error(err))
		} else if q != "" {
			r.remember(key, q, false)
			metrics.ObserveQIDLookup("store")
			return q, true
		}
	}

	// Tier 3: static table.
	if q, ok := r.static[key]; ok {
		r.remember(key, q, true)
		metrics.ObserveQIDLookup("static")
		return q, true
	}

	// Tier 4: remote search, when enabled.
	if r.remote != nil {
		if q, ok := r.lookupRemote(ctx, key, text); ok {
			metrics.ObserveQIDLookup("remote")
			return q, true
		}
	}

	metrics.ObserveQIDLookup("miss")
	return "", false
}

func (r *Resolver) lookupRemote(ctx context.Context, key, text string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.remoteTimeout)
	defer cancel()

	hits, err := r.remote.SearchEntities(ctx, text, "en")
	if err != nil {
		zap.L().Warn("qid remote lookup failed", zap.String("text", text), zap.Error(err))
		return "", false
	}
	if len(hits) == 0 {
		return "", false
	}

	q := hits[0].ID
	r.remember(key, q, true)
	return q, true
}

// remember backfills the in-process map and, when persist is set, the
// durable store.
func (r *Resolver) remember(key, q string, persist bool) {
	r.mu.Lock()
	r.mem[key] = q
	r.mu.Unlock()

	if persist && r.cache != nil {
		// Best effort: a failed write just means a future process resolves
		// the key again.
		if err := r.cache.PutQID(context.Background(), key, q); err != nil {
			zap.L().Warn("qid store write failed", zap.String("key", key), zap.Error(err))
		}
	}
}
