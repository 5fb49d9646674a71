// Package store defines persistence for the CFP pipeline and its two
// database backends (SQLite for single-node use, Postgres for shared
// deployments).
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/visiq/visibility-cli/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = eris.New("store: not found")

// ErrStatusConflict is returned when a compare-and-set status update finds a
// different current status than expected. A stale pipeline stage must treat
// this as "someone newer got here first" and back off.
var ErrStatusConflict = eris.New("store: status conflict")

// BusinessFilter specifies criteria for listing businesses.
type BusinessFilter struct {
	Status model.Status `json:"status,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// Store is the persistence interface for the CFP pipeline.
type Store interface {
	// Businesses
	CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error)
	GetBusiness(ctx context.Context, id string) (*model.Business, error)
	ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error)

	// UpdateStatus performs a compare-and-set transition. A successful
	// transition clears any recorded error. Returns ErrStatusConflict when
	// the stored status differs from `from`.
	UpdateStatus(ctx context.Context, id string, from, to model.Status) error

	// SetError moves a business into the error state, recording the failing
	// stage and a human-readable message.
	SetError(ctx context.Context, id, stage, message string) error

	// SetEntityID records the canonical knowledge-graph identifier after a
	// successful publish.
	SetEntityID(ctx context.Context, id, entityID string) error

	// Crawled data (one record per business, upserted)
	SaveCrawl(ctx context.Context, data model.CrawledData) error
	GetCrawl(ctx context.Context, businessID string) (*model.CrawledData, error)

	// Fingerprint analyses (append-only history; saving the same analysis ID
	// twice upserts, so stage retries are idempotent)
	SaveFingerprint(ctx context.Context, analysis model.FingerprintAnalysis) error
	LatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error)
	ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error)

	// Notability verdicts (append-only, latest wins)
	SaveVerdict(ctx context.Context, v model.NotabilityVerdict) error
	LatestVerdict(ctx context.Context, businessID string) (*model.NotabilityVerdict, error)

	// QID cache (persistent tier of the resolution hierarchy; entries never
	// expire)
	GetQID(ctx context.Context, key string) (string, error)
	PutQID(ctx context.Context, key, qid string) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
