package orchestrator

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/visiq/visibility-cli/internal/model"
	"github.com/visiq/visibility-cli/internal/store"
	"github.com/visiq/visibility-cli/pkg/wikibase"
)

// memStore is an in-memory Store with the same CAS semantics as the real
// backends.
type memStore struct {
	mu           sync.Mutex
	businesses   map[string]model.Business
	crawls       map[string]model.CrawledData
	fingerprints map[string][]model.FingerprintAnalysis
	verdicts     map[string][]model.NotabilityVerdict
	qids         map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		businesses:   make(map[string]model.Business),
		crawls:       make(map[string]model.CrawledData),
		fingerprints: make(map[string][]model.FingerprintAnalysis),
		verdicts:     make(map[string][]model.NotabilityVerdict),
		qids:         make(map[string]string),
	}
}

func (s *memStore) CreateBusiness(_ context.Context, b model.Business) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.Status == "" {
		b.Status = model.StatusPending
	}
	s.businesses[b.ID] = b
	return &b, nil
}

func (s *memStore) GetBusiness(_ context.Context, id string) (*model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &b, nil
}

func (s *memStore) ListBusinesses(_ context.Context, filter store.BusinessFilter) ([]model.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Business
	for _, b := range s.businesses {
		if filter.Status == "" || b.Status == filter.Status {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memStore) UpdateStatus(_ context.Context, id string, from, to model.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return store.ErrNotFound
	}
	if b.Status != from {
		return store.ErrStatusConflict
	}
	b.Status = to
	b.ErrorStage = ""
	b.ErrorMessage = ""
	s.businesses[id] = b
	return nil
}

func (s *memStore) SetError(_ context.Context, id, stage, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = model.StatusError
	b.ErrorStage = stage
	b.ErrorMessage = message
	s.businesses[id] = b
	return nil
}

func (s *memStore) SetEntityID(_ context.Context, id, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return store.ErrNotFound
	}
	b.EntityID = entityID
	s.businesses[id] = b
	return nil
}

func (s *memStore) SaveCrawl(_ context.Context, data model.CrawledData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawls[data.BusinessID] = data
	return nil
}

func (s *memStore) GetCrawl(_ context.Context, businessID string) (*model.CrawledData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.crawls[businessID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &data, nil
}

func (s *memStore) SaveFingerprint(_ context.Context, analysis model.FingerprintAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing := s.fingerprints[analysis.BusinessID]
	for i, a := range existing {
		if a.ID == analysis.ID {
			existing[i] = analysis
			return nil
		}
	}
	s.fingerprints[analysis.BusinessID] = append(existing, analysis)
	return nil
}

func (s *memStore) LatestFingerprint(_ context.Context, businessID string) (*model.FingerprintAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.fingerprints[businessID]
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return &all[len(all)-1], nil
}

func (s *memStore) ListFingerprints(_ context.Context, businessID string, limit int) ([]model.FingerprintAnalysis, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.fingerprints[businessID]
	// Newest first, like the real backends.
	out := make([]model.FingerprintAnalysis, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		out = append(out, all[i])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) SaveVerdict(_ context.Context, v model.NotabilityVerdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts[v.BusinessID] = append(s.verdicts[v.BusinessID], v)
	return nil
}

func (s *memStore) LatestVerdict(_ context.Context, businessID string) (*model.NotabilityVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.verdicts[businessID]
	if len(all) == 0 {
		return nil, store.ErrNotFound
	}
	return &all[len(all)-1], nil
}

func (s *memStore) GetQID(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.qids[key], nil
}

func (s *memStore) PutQID(_ context.Context, key, qid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.qids[key] = qid
	return nil
}

func (s *memStore) Migrate(context.Context) error { return nil }
func (s *memStore) Close() error                  { return nil }

// fakeCrawler returns canned crawl data.
type fakeCrawler struct {
	data  *model.CrawledData
	err   error
	calls int
}

func (c *fakeCrawler) Run(_ context.Context, b model.Business) (*model.CrawledData, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	if b.URL == "" {
		return nil, eris.New("crawl: business has no url")
	}
	if c.data != nil {
		return c.data, nil
	}
	return &model.CrawledData{BusinessID: b.ID, Name: b.Name, SourceURL: b.URL}, nil
}

// fakeEngine returns a canned analysis.
type fakeEngine struct {
	analysis *model.FingerprintAnalysis
	err      error
	calls    int
}

func (e *fakeEngine) Run(_ context.Context, b model.Business, _ *model.CrawledData) (*model.FingerprintAnalysis, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if e.analysis != nil {
		return e.analysis, nil
	}
	return &model.FingerprintAnalysis{
		ID:              "analysis-" + b.ID,
		BusinessID:      b.ID,
		VisibilityScore: 72,
		Attempted:       9,
		Succeeded:       9,
	}, nil
}

// fakeGate returns a canned verdict.
type fakeGate struct {
	verdict *model.NotabilityVerdict
	err     error
	calls   int
}

func (g *fakeGate) Assess(_ context.Context, b model.Business) (*model.NotabilityVerdict, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	v := *g.verdict
	v.BusinessID = b.ID
	return &v, nil
}

// fakeGraph implements wikibase.Client in memory. failuresLeft makes the
// first N creates fail with failErr before nextID is handed out.
type fakeGraph struct {
	nextID       string
	err          error
	failErr      error
	failuresLeft int
	creates      int
}

func (g *fakeGraph) SearchEntities(context.Context, string, string) ([]wikibase.SearchHit, error) {
	return nil, nil
}

func (g *fakeGraph) CreateEntity(context.Context, wikibase.EntityPayload) (string, error) {
	g.creates++
	if g.failuresLeft > 0 {
		g.failuresLeft--
		return "", g.failErr
	}
	if g.err != nil {
		return "", g.err
	}
	if g.nextID == "" {
		return "", eris.New("no id configured")
	}
	return g.nextID, nil
}

func passingVerdict() *model.NotabilityVerdict {
	return &model.NotabilityVerdict{
		Passed:     true,
		Confidence: 0.9,
		References: []model.NotabilityReference{
			{Title: "Feature", URL: "https://news.example/a", Serious: true, Independent: true},
			{Title: "Directory", URL: "https://dir.example/b", Serious: true, Independent: true},
			{Title: "Review", URL: "https://mag.example/c", Serious: true, Independent: true},
		},
	}
}

func failingVerdict() *model.NotabilityVerdict {
	return &model.NotabilityVerdict{
		Passed:     false,
		Confidence: 0.9,
		References: []model.NotabilityReference{
			{Title: "Feature", URL: "https://news.example/a", Serious: true, Independent: true},
			{Title: "Directory", URL: "https://dir.example/b", Serious: true, Independent: true},
		},
		Reasons: []string{"insufficient serious references: 2 of 3 required"},
	}
}
