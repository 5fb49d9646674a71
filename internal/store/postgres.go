package store

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/visiq/visibility-cli/internal/model"
)

// PgxIface is the subset of pgxpool.Pool the store uses. pgxmock implements
// it for tests.
type PgxIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool PgxIface
}

// NewPostgres connects to the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (or mock).
func NewPostgresWithPool(pool PgxIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	url           TEXT NOT NULL,
	location      JSONB NOT NULL,
	tier          TEXT NOT NULL DEFAULT 'free',
	status        TEXT NOT NULL DEFAULT 'pending',
	entity_id     TEXT NOT NULL DEFAULT '',
	error_stage   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS crawls (
	business_id  TEXT PRIMARY KEY REFERENCES businesses(id),
	data         JSONB NOT NULL,
	retrieved_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprints (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	analysis    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS verdicts (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	verdict     JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS qid_cache (
	key        TEXT PRIMARY KEY,
	qid        TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_fingerprints_business ON fingerprints(business_id, created_at);
CREATE INDEX IF NOT EXISTS idx_verdicts_business ON verdicts(business_id, created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	if b.Tier == "" {
		b.Tier = model.TierFree
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	locJSON, err := json.Marshal(b.Location)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal location")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO businesses (id, name, url, location, tier, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		b.ID, b.Name, b.URL, locJSON, string(b.Tier), string(b.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert business")
	}

	return &b, nil
}

func (s *PostgresStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, url, location, tier, status, entity_id, error_stage, error_message, created_at, updated_at
		 FROM businesses WHERE id = $1`, id)
	return scanBusinessPg(row)
}

func (s *PostgresStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, url, location, tier, status, entity_id, error_stage, error_message, created_at, updated_at
	          FROM businesses`
	var args []any

	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusinessPg(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list businesses iterate")
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to model.Status) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses
		 SET status = $1, error_stage = '', error_message = '', updated_at = $2
		 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update status %s", id)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetBusiness(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *PostgresStore) SetError(ctx context.Context, id, stage, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses
		 SET status = $1, error_stage = $2, error_message = $3, updated_at = $4
		 WHERE id = $5`,
		string(model.StatusError), stage, message, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set error %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "business %s", id)
	}
	return nil
}

func (s *PostgresStore) SetEntityID(ctx context.Context, id, entityID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE businesses SET entity_id = $1, updated_at = $2 WHERE id = $3`,
		entityID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set entity id %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "business %s", id)
	}
	return nil
}

func (s *PostgresStore) SaveCrawl(ctx context.Context, data model.CrawledData) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal crawled data")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO crawls (business_id, data, retrieved_at) VALUES ($1, $2, $3)
		 ON CONFLICT (business_id) DO UPDATE SET data = EXCLUDED.data, retrieved_at = EXCLUDED.retrieved_at`,
		data.BusinessID, blob, data.RetrievedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save crawl")
}

func (s *PostgresStore) GetCrawl(ctx context.Context, businessID string) (*model.CrawledData, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM crawls WHERE business_id = $1`, businessID,
	).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get crawl")
	}

	var data model.CrawledData
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal crawled data")
	}
	return &data, nil
}

func (s *PostgresStore) SaveFingerprint(ctx context.Context, analysis model.FingerprintAnalysis) error {
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	blob, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal analysis")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO fingerprints (id, business_id, analysis, created_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET analysis = EXCLUDED.analysis`,
		analysis.ID, analysis.BusinessID, blob, analysis.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save fingerprint")
}

func (s *PostgresStore) LatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error) {
	analyses, err := s.ListFingerprints(ctx, businessID, 1)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, ErrNotFound
	}
	return &analyses[0], nil
}

func (s *PostgresStore) ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT analysis FROM fingerprints WHERE business_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		businessID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list fingerprints")
	}
	defer rows.Close()

	var out []model.FingerprintAnalysis
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fingerprint")
		}
		var a model.FingerprintAnalysis
		if err := json.Unmarshal(blob, &a); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal analysis")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list fingerprints iterate")
}

func (s *PostgresStore) SaveVerdict(ctx context.Context, v model.NotabilityVerdict) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal verdict")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO verdicts (id, business_id, verdict, created_at) VALUES ($1, $2, $3, $4)`,
		uuid.New().String(), v.BusinessID, blob, v.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "postgres: save verdict")
}

func (s *PostgresStore) LatestVerdict(ctx context.Context, businessID string) (*model.NotabilityVerdict, error) {
	var blob []byte
	err := s.pool.QueryRow(ctx,
		`SELECT verdict FROM verdicts WHERE business_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		businessID,
	).Scan(&blob)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest verdict")
	}

	var v model.NotabilityVerdict
	if err := json.Unmarshal(blob, &v); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal verdict")
	}
	return &v, nil
}

func (s *PostgresStore) GetQID(ctx context.Context, key string) (string, error) {
	var qid string
	err := s.pool.QueryRow(ctx,
		`SELECT qid FROM qid_cache WHERE key = $1`, key,
	).Scan(&qid)
	if err == pgx.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "postgres: get qid")
	}
	return qid, nil
}

func (s *PostgresStore) PutQID(ctx context.Context, key, qid string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO qid_cache (key, qid) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET qid = EXCLUDED.qid`,
		key, qid,
	)
	return eris.Wrap(err, "postgres: put qid")
}

func scanBusinessPg(row pgx.Row) (*model.Business, error) {
	var b model.Business
	var locJSON []byte

	err := row.Scan(&b.ID, &b.Name, &b.URL, &locJSON, &b.Tier, &b.Status,
		&b.EntityID, &b.ErrorStage, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan business")
	}

	if err := json.Unmarshal(locJSON, &b.Location); err != nil {
		return nil, eris.Wrap(err, "unmarshal location")
	}
	return &b, nil
}
