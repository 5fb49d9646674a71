package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/visiq/visibility-cli/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func seedBusiness(t *testing.T, s *SQLiteStore) *model.Business {
	t.Helper()

	b, err := s.CreateBusiness(context.Background(), model.Business{
		Name:     "Acme Bakery",
		URL:      "https://acme-bakery.example",
		Location: model.Location{City: "Berlin", Country: "Germany"},
		Tier:     model.TierPro,
	})
	require.NoError(t, err)
	return b
}

func TestCreateAndGetBusiness(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := seedBusiness(t, s)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, model.StatusPending, created.Status)

	got, err := s.GetBusiness(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Bakery", got.Name)
	assert.Equal(t, "Berlin", got.Location.City)
	assert.Equal(t, model.TierPro, got.Tier)
}

func TestGetBusiness_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetBusiness(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListBusinesses_FilterByStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	b1 := seedBusiness(t, s)
	seedBusiness(t, s)
	require.NoError(t, s.UpdateStatus(ctx, b1.ID, model.StatusPending, model.StatusCrawling))

	pending, err := s.ListBusinesses(ctx, BusinessFilter{Status: model.StatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	all, err := s.ListBusinesses(ctx, BusinessFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateStatus_CAS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	require.NoError(t, s.UpdateStatus(ctx, b.ID, model.StatusPending, model.StatusCrawling))

	// A second transition from the old status must fail: someone already
	// moved the record forward.
	err := s.UpdateStatus(ctx, b.ID, model.StatusPending, model.StatusCrawling)
	assert.ErrorIs(t, err, ErrStatusConflict)

	err = s.UpdateStatus(ctx, "missing", model.StatusPending, model.StatusCrawling)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatus_ClearsError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	require.NoError(t, s.SetError(ctx, b.ID, "crawl", "timeout talking to crawler"))

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusError, got.Status)
	assert.Equal(t, "crawl", got.ErrorStage)

	require.NoError(t, s.UpdateStatus(ctx, b.ID, model.StatusError, model.StatusPending))

	got, err = s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Empty(t, got.ErrorStage)
	assert.Empty(t, got.ErrorMessage)
}

func TestSetEntityID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	require.NoError(t, s.SetEntityID(ctx, b.ID, "Q987654"))

	got, err := s.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Q987654", got.EntityID)
}

func TestSaveCrawl_Upserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	first := model.CrawledData{
		BusinessID:  b.ID,
		Name:        "Acme Bakery",
		Email:       "old@acme-bakery.example",
		SourceURL:   b.URL,
		RetrievedAt: time.Now().UTC(),
	}
	require.NoError(t, s.SaveCrawl(ctx, first))

	first.Email = "hello@acme-bakery.example"
	require.NoError(t, s.SaveCrawl(ctx, first))

	got, err := s.GetCrawl(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "hello@acme-bakery.example", got.Email)

	_, err = s.GetCrawl(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprintHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	older := model.FingerprintAnalysis{
		ID:              "a1",
		BusinessID:      b.ID,
		VisibilityScore: 40,
		CreatedAt:       time.Now().UTC().Add(-time.Hour),
	}
	newer := model.FingerprintAnalysis{
		ID:              "a2",
		BusinessID:      b.ID,
		VisibilityScore: 55,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, s.SaveFingerprint(ctx, older))
	require.NoError(t, s.SaveFingerprint(ctx, newer))

	// Saving the same analysis ID again must not grow the history.
	newer.VisibilityScore = 56
	require.NoError(t, s.SaveFingerprint(ctx, newer))

	latest, err := s.LatestFingerprint(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "a2", latest.ID)
	assert.Equal(t, 56.0, latest.VisibilityScore)

	history, err := s.ListFingerprints(ctx, b.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "a2", history[0].ID)
	assert.Equal(t, "a1", history[1].ID)
}

func TestLatestFingerprint_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.LatestFingerprint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerdicts_LatestWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b := seedBusiness(t, s)

	require.NoError(t, s.SaveVerdict(ctx, model.NotabilityVerdict{
		BusinessID: b.ID,
		Passed:     false,
		CreatedAt:  time.Now().UTC().Add(-time.Hour),
	}))
	require.NoError(t, s.SaveVerdict(ctx, model.NotabilityVerdict{
		BusinessID: b.ID,
		Passed:     true,
		Confidence: 0.85,
		CreatedAt:  time.Now().UTC(),
	}))

	latest, err := s.LatestVerdict(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, latest.Passed)
	assert.Equal(t, 0.85, latest.Confidence)
}

func TestQIDCache(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	qid, err := s.GetQID(ctx, "city:berlin")
	require.NoError(t, err)
	assert.Empty(t, qid)

	require.NoError(t, s.PutQID(ctx, "city:berlin", "Q64"))
	require.NoError(t, s.PutQID(ctx, "city:berlin", "Q64")) // idempotent

	qid, err = s.GetQID(ctx, "city:berlin")
	require.NoError(t, err)
	assert.Equal(t, "Q64", qid)
}
