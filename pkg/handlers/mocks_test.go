package handlers

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
	"github.com/ekaya-inc/nps-engine/pkg/models"
	"github.com/ekaya-inc/nps-engine/pkg/services"
)

// mockIngestionService records the last upload it was given.
type mockIngestionService struct {
	result   *models.IngestResult
	err      error
	filename string
	data     []byte
}

func (m *mockIngestionService) Ingest(_ context.Context, filename string, data []byte) (*models.IngestResult, error) {
	m.filename = filename
	m.data = data
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

// mockUploadJobService keeps submitted jobs in a map and never runs them.
type mockUploadJobService struct {
	mu        sync.Mutex
	jobs      map[uuid.UUID]*models.UploadJob
	submitErr error
	getErr    error
}

func newMockUploadJobService() *mockUploadJobService {
	return &mockUploadJobService{jobs: make(map[uuid.UUID]*models.UploadJob)}
}

func (m *mockUploadJobService) Submit(_ context.Context, filename string, _ []byte) (*models.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return nil, m.submitErr
	}
	job := &models.UploadJob{ID: uuid.New(), Filename: filename, Status: models.JobStatusPending}
	m.jobs[job.ID] = job
	return job, nil
}

func (m *mockUploadJobService) Get(_ context.Context, id uuid.UUID) (*models.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return job, nil
}

func (m *mockUploadJobService) Wait() {}

// mockEnrichmentService returns canned results and records the options it saw.
type mockEnrichmentService struct {
	result   *models.EnrichmentRunResult
	stats    *models.EnrichmentStats
	err      error
	statsErr error
	opts     services.EnrichmentOptions
}

func (m *mockEnrichmentService) Run(_ context.Context, opts services.EnrichmentOptions) (*models.EnrichmentRunResult, error) {
	m.opts = opts
	return m.result, m.err
}

func (m *mockEnrichmentService) Stats(context.Context) (*models.EnrichmentStats, error) {
	if m.statsErr != nil {
		return nil, m.statsErr
	}
	return m.stats, nil
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

var errDatabaseDown = errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")

var (
	_ services.IngestionService  = (*mockIngestionService)(nil)
	_ services.UploadJobService  = (*mockUploadJobService)(nil)
	_ services.EnrichmentService = (*mockEnrichmentService)(nil)
)
