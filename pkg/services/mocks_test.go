package services

import (
	"bytes"
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// mockRawRepo implements repositories.RawResponseRepository for testing.
type mockRawRepo struct {
	records   []*models.RawRecord
	insertErr error

	// short makes InsertBatch report this many fewer rows than it was given.
	short int64
}

func (m *mockRawRepo) InsertBatch(_ context.Context, records []*models.RawRecord) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.records = append(m.records, records...)
	return int64(len(records)) - m.short, nil
}

// mockResponseRepo implements repositories.ResponseRepository. Candidates
// are served in id order and filtered against enrichments when set.
type mockResponseRepo struct {
	mu          sync.Mutex
	inserted    []*models.NormalizedResponse
	candidates  []*models.UnenrichedResponse
	enrichments *mockEnrichmentRepo
	insertErr   error
	listErr     error
	listFails   int // when set, listErr is returned only for the first listFails calls
	listCalls   int
	total       int64
	withComment int64
}

func (m *mockResponseRepo) InsertBatch(_ context.Context, responses []*models.NormalizedResponse) (int64, error) {
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.inserted = append(m.inserted, responses...)
	return int64(len(responses)), nil
}

func (m *mockResponseRepo) ListUnenriched(_ context.Context, model string, after *uuid.UUID, limit int, force bool) ([]*models.UnenrichedResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil && (m.listFails == 0 || m.listCalls <= m.listFails) {
		return nil, m.listErr
	}

	sorted := append([]*models.UnenrichedResponse(nil), m.candidates...)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0 })

	var page []*models.UnenrichedResponse
	for _, c := range sorted {
		if after != nil && bytes.Compare(c.ID[:], after[:]) <= 0 {
			continue
		}
		if !force && m.enrichments != nil && m.enrichments.has(c.ID, model) {
			continue
		}
		page = append(page, c)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (m *mockResponseRepo) CountResponses(_ context.Context) (int64, int64, error) {
	return m.total, m.withComment, nil
}

func (m *mockResponseRepo) GetByID(_ context.Context, id uuid.UUID) (*models.NormalizedResponse, error) {
	for _, r := range m.inserted {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, nil
}

type enrichmentKey struct {
	responseID uuid.UUID
	model      string
}

// mockEnrichmentRepo implements repositories.EnrichmentRepository for testing.
type mockEnrichmentRepo struct {
	mu          sync.Mutex
	rows        map[enrichmentKey]*models.EnrichmentResult
	upserts     int
	upsertErr   error
	failUpserts int
	lastRun     *time.Time
}

func newMockEnrichmentRepo() *mockEnrichmentRepo {
	return &mockEnrichmentRepo{rows: make(map[enrichmentKey]*models.EnrichmentResult)}
}

func (m *mockEnrichmentRepo) has(id uuid.UUID, model string) bool {
	_, ok := m.rows[enrichmentKey{id, model}]
	return ok
}

func (m *mockEnrichmentRepo) Upsert(_ context.Context, result *models.EnrichmentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	if m.failUpserts > 0 {
		m.failUpserts--
		return errors.New("write tcp: connection reset by peer")
	}
	m.upserts++
	copied := *result
	m.rows[enrichmentKey{result.ResponseID, result.Model}] = &copied
	return nil
}

func (m *mockEnrichmentRepo) ExistingFor(_ context.Context, ids []uuid.UUID, model string) (map[uuid.UUID]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make(map[uuid.UUID]bool)
	for _, id := range ids {
		if m.has(id, model) {
			found[id] = true
		}
	}
	return found, nil
}

func (m *mockEnrichmentRepo) Get(_ context.Context, responseID uuid.UUID, model string) (*models.EnrichmentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[enrichmentKey{responseID, model}], nil
}

func (m *mockEnrichmentRepo) Summary(_ context.Context, model string) (int64, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.rows {
		if k.model == model {
			n++
		}
	}
	return n, m.lastRun, nil
}

// mockThemeRepo implements repositories.ThemeRepository for testing.
type mockThemeRepo struct {
	mu       sync.Mutex
	themes   []*models.Theme
	err      error
	inserts  int
	getCalls int

	// raceWinner, when set, is inserted by "another writer" just before our insert.
	raceWinner *models.Theme
}

func newMockThemeRepo(names ...string) *mockThemeRepo {
	repo := &mockThemeRepo{}
	for _, name := range names {
		repo.add(name, Slugify(name))
	}
	return repo
}

func (m *mockThemeRepo) add(name, slug string) *models.Theme {
	t := &models.Theme{ID: int64(len(m.themes) + 1), Name: name, Slug: slug, CreatedAt: time.Now()}
	m.themes = append(m.themes, t)
	return t
}

func (m *mockThemeRepo) List(_ context.Context) ([]*models.Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return append([]*models.Theme(nil), m.themes...), nil
}

func (m *mockThemeRepo) GetBySlug(_ context.Context, slug string) (*models.Theme, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.themes {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockThemeRepo) Insert(_ context.Context, name, slug string) (*models.Theme, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if m.raceWinner != nil {
		w := m.raceWinner
		m.raceWinner = nil
		m.add(w.Name, w.Slug)
	}
	for _, t := range m.themes {
		if t.Slug == slug {
			return nil, false, nil
		}
	}
	m.inserts++
	return m.add(name, slug), true, nil
}

func (m *mockThemeRepo) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.themes))
	for i, t := range m.themes {
		out[i] = t.Name
	}
	return out
}
