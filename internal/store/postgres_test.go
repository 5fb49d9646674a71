package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiq/visibility-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPostgresWithPool(mock), mock
}

func TestPostgresCreateBusiness(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO businesses`).
		WithArgs(pgxmock.AnyArg(), "Acme Bakery", "https://acme-bakery.example",
			pgxmock.AnyArg(), "free", "pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	b, err := s.CreateBusiness(context.Background(), model.Business{
		Name: "Acme Bakery",
		URL:  "https://acme-bakery.example",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, model.StatusPending, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetBusiness(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	loc, _ := json.Marshal(model.Location{City: "Berlin", Country: "Germany"})
	mock.ExpectQuery(`SELECT .+ FROM businesses WHERE id`).
		WithArgs("b-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "url", "location", "tier", "status",
			"entity_id", "error_stage", "error_message", "created_at", "updated_at",
		}).AddRow("b-1", "Acme Bakery", "https://acme-bakery.example", loc,
			model.TierPro, model.StatusCrawled, "", "", "", now, now))

	b, err := s.GetBusiness(context.Background(), "b-1")
	require.NoError(t, err)
	assert.Equal(t, "Berlin", b.Location.City)
	assert.Equal(t, model.StatusCrawled, b.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatus_Conflict(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectExec(`UPDATE businesses`).
		WithArgs("crawling", pgxmock.AnyArg(), "b-1", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	loc, _ := json.Marshal(model.Location{})
	mock.ExpectQuery(`SELECT .+ FROM businesses WHERE id`).
		WithArgs("b-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "url", "location", "tier", "status",
			"entity_id", "error_stage", "error_message", "created_at", "updated_at",
		}).AddRow("b-1", "Acme", "https://acme.example", loc,
			model.TierFree, model.StatusCrawling, "", "", "", now, now))

	err := s.UpdateStatus(context.Background(), "b-1", model.StatusPending, model.StatusCrawling)
	assert.ErrorIs(t, err, ErrStatusConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpdateStatus_OK(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE businesses`).
		WithArgs("crawled", pgxmock.AnyArg(), "b-1", "crawling").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.UpdateStatus(context.Background(), "b-1", model.StatusCrawling, model.StatusCrawled)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSetError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE businesses`).
		WithArgs("error", "fingerprint", "all model calls failed", pgxmock.AnyArg(), "b-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetError(context.Background(), "b-1", "fingerprint", "all model calls failed")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSaveFingerprint(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO fingerprints`).
		WithArgs("a-1", "b-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SaveFingerprint(context.Background(), model.FingerprintAnalysis{
		ID:         "a-1",
		BusinessID: "b-1",
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresQIDCache(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT qid FROM qid_cache`).
		WithArgs("country:germany").
		WillReturnRows(pgxmock.NewRows([]string{"qid"}).AddRow("Q183"))

	qid, err := s.GetQID(context.Background(), "country:germany")
	require.NoError(t, err)
	assert.Equal(t, "Q183", qid)

	mock.ExpectExec(`INSERT INTO qid_cache`).
		WithArgs("city:hamburg", "Q1055").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.PutQID(context.Background(), "city:hamburg", "Q1055"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
