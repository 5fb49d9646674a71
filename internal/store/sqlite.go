package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/visiq/visibility-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS businesses (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	url           TEXT NOT NULL,
	location      TEXT NOT NULL,
	tier          TEXT NOT NULL DEFAULT 'free',
	status        TEXT NOT NULL DEFAULT 'pending',
	entity_id     TEXT NOT NULL DEFAULT '',
	error_stage   TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at    DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS crawls (
	business_id  TEXT PRIMARY KEY REFERENCES businesses(id),
	data         TEXT NOT NULL,
	retrieved_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS fingerprints (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	analysis    TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS verdicts (
	id          TEXT PRIMARY KEY,
	business_id TEXT NOT NULL REFERENCES businesses(id),
	verdict     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS qid_cache (
	key        TEXT PRIMARY KEY,
	qid        TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_businesses_status ON businesses(status);
CREATE INDEX IF NOT EXISTS idx_fingerprints_business ON fingerprints(business_id, created_at);
CREATE INDEX IF NOT EXISTS idx_verdicts_business ON verdicts(business_id, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateBusiness(ctx context.Context, b model.Business) (*model.Business, error) {
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
		return nil, eris.Wrap(err, "sqlite: marshal location")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO businesses (id, name, url, location, tier, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, b.URL, string(locJSON), string(b.Tier), string(b.Status), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert business")
	}

	return &b, nil
}

func (s *SQLiteStore) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, url, location, tier, status, entity_id, error_stage, error_message, created_at, updated_at
		 FROM businesses WHERE id = ?`, id)
	return scanBusiness(row)
}

func (s *SQLiteStore) ListBusinesses(ctx context.Context, filter BusinessFilter) ([]model.Business, error) {
	query := `SELECT id, name, url, location, tier, status, entity_id, error_stage, error_message, created_at, updated_at
	          FROM businesses WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list businesses")
	}
	defer rows.Close()

	var out []model.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list businesses iterate")
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, from, to model.Status) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses
		 SET status = ?, error_stage = '', error_message = '', updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		// Distinguish a missing row from a stale CAS.
		if _, getErr := s.GetBusiness(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStatusConflict
	}
	return nil
}

func (s *SQLiteStore) SetError(ctx context.Context, id, stage, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses
		 SET status = ?, error_stage = ?, error_message = ?, updated_at = ?
		 WHERE id = ?`,
		string(model.StatusError), stage, message, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set error %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) SetEntityID(ctx context.Context, id, entityID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE businesses SET entity_id = ?, updated_at = ? WHERE id = ?`,
		entityID, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set entity id %s", id)
	}
	return checkRowsAffected(res, "business", id)
}

func (s *SQLiteStore) SaveCrawl(ctx context.Context, data model.CrawledData) error {
	blob, err := json.Marshal(data)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal crawled data")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO crawls (business_id, data, retrieved_at) VALUES (?, ?, ?)
		 ON CONFLICT (business_id) DO UPDATE SET data = excluded.data, retrieved_at = excluded.retrieved_at`,
		data.BusinessID, string(blob), data.RetrievedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save crawl")
}

func (s *SQLiteStore) GetCrawl(ctx context.Context, businessID string) (*model.CrawledData, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM crawls WHERE business_id = ?`, businessID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get crawl")
	}

	var data model.CrawledData
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal crawled data")
	}
	return &data, nil
}

func (s *SQLiteStore) SaveFingerprint(ctx context.Context, analysis model.FingerprintAnalysis) error {
	if analysis.ID == "" {
		analysis.ID = uuid.New().String()
	}
	blob, err := json.Marshal(analysis)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal analysis")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (id, business_id, analysis, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET analysis = excluded.analysis`,
		analysis.ID, analysis.BusinessID, string(blob), analysis.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save fingerprint")
}

func (s *SQLiteStore) LatestFingerprint(ctx context.Context, businessID string) (*model.FingerprintAnalysis, error) {
	analyses, err := s.ListFingerprints(ctx, businessID, 1)
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, ErrNotFound
	}
	return &analyses[0], nil
}

func (s *SQLiteStore) ListFingerprints(ctx context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT analysis FROM fingerprints WHERE business_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		businessID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list fingerprints")
	}
	defer rows.Close()

	var out []model.FingerprintAnalysis
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fingerprint")
		}
		var a model.FingerprintAnalysis
		if err := json.Unmarshal([]byte(blob), &a); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal analysis")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list fingerprints iterate")
}

func (s *SQLiteStore) SaveVerdict(ctx context.Context, v model.NotabilityVerdict) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal verdict")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO verdicts (id, business_id, verdict, created_at) VALUES (?, ?, ?, ?)`,
		uuid.New().String(), v.BusinessID, string(blob), v.CreatedAt.UTC(),
	)
	return eris.Wrap(err, "sqlite: save verdict")
}

func (s *SQLiteStore) LatestVerdict(ctx context.Context, businessID string) (*model.NotabilityVerdict, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT verdict FROM verdicts WHERE business_id = ?
		 ORDER BY created_at DESC LIMIT 1`,
		businessID,
	).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest verdict")
	}

	var v model.NotabilityVerdict
	if err := json.Unmarshal([]byte(blob), &v); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal verdict")
	}
	return &v, nil
}

func (s *SQLiteStore) GetQID(ctx context.Context, key string) (string, error) {
	var qid string
	err := s.db.QueryRowContext(ctx,
		`SELECT qid FROM qid_cache WHERE key = ?`, key,
	).Scan(&qid)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrap(err, "sqlite: get qid")
	}
	return qid, nil
}

func (s *SQLiteStore) PutQID(ctx context.Context, key, qid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO qid_cache (key, qid) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET qid = excluded.qid`,
		key, qid,
	)
	return eris.Wrap(err, "sqlite: put qid")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanBusiness(row scannable) (*model.Business, error) {
	var b model.Business
	var locJSON string

	err := row.Scan(&b.ID, &b.Name, &b.URL, &locJSON, &b.Tier, &b.Status,
		&b.EntityID, &b.ErrorStage, &b.ErrorMessage, &b.CreatedAt, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan business")
	}

	if err := json.Unmarshal([]byte(locJSON), &b.Location); err != nil {
		return nil, eris.Wrap(err, "unmarshal location")
	}
	return &b, nil
}
