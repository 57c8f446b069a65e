package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/apperrors"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

const uploadJobKeyPrefix = "nps:upload-job:"

// JobStore persists upload job records so a caller can poll an asynchronous upload.
type JobStore interface {
	Save(ctx context.Context, job *models.UploadJob) error
	// Get returns apperrors.ErrNotFound for unknown or expired ids.
	Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error)
}

// RedisJobStore keeps jobs as JSON values that expire after ttl.
type RedisJobStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisJobStore creates a JobStore on client. A non-positive ttl means 24h.
func NewRedisJobStore(client *redis.Client, ttl time.Duration) *RedisJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisJobStore{client: client, ttl: ttl}
}

var _ JobStore = (*RedisJobStore)(nil)

func (s *RedisJobStore) Save(ctx context.Context, job *models.UploadJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode upload job: %w", err)
	}
	if err := s.client.Set(ctx, uploadJobKeyPrefix+job.ID.String(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save upload job: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error) {
	data, err := s.client.Get(ctx, uploadJobKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load upload job: %w", err)
	}

	var job models.UploadJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to decode upload job: %w", err)
	}
	return &job, nil
}

// MemoryJobStore keeps jobs in process memory; used when Redis is not configured.
// Like the Redis store, a job expires ttl after its last save.
type MemoryJobStore struct {
	mu   sync.Mutex
	ttl  time.Duration
	jobs map[uuid.UUID]memoryJob
	now  func() time.Time
}

type memoryJob struct {
	job       models.UploadJob
	expiresAt time.Time
}

// NewMemoryJobStore creates an in-process JobStore. A non-positive ttl means 24h.
func NewMemoryJobStore(ttl time.Duration) *MemoryJobStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryJobStore{
		ttl:  ttl,
		jobs: make(map[uuid.UUID]memoryJob),
		now:  time.Now,
	}
}

var _ JobStore = (*MemoryJobStore)(nil)

func (s *MemoryJobStore) Save(_ context.Context, job *models.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, entry := range s.jobs {
		if !now.Before(entry.expiresAt) {
			delete(s.jobs, id)
		}
	}
	s.jobs[job.ID] = memoryJob{job: *job, expiresAt: now.Add(s.ttl)}
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id uuid.UUID) (*models.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.jobs, id)
		return nil, apperrors.ErrNotFound
	}
	job := entry.job
	return &job, nil
}

// UploadJobService runs uploads in the background and records their progress.
type UploadJobService interface {
	// Submit records a pending job, starts ingestion and returns immediately.
	Submit(ctx context.Context, filename string, data []byte) (*models.UploadJob, error)
	Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error)
	// Wait blocks until every submitted job has finished.
	Wait()
}

type uploadJobService struct {
	ingestion IngestionService
	store     JobStore
	logger    *zap.Logger
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewUploadJobService creates a new UploadJobService.
func NewUploadJobService(ingestion IngestionService, store JobStore, logger *zap.Logger) UploadJobService {
	return &uploadJobService{
		ingestion: ingestion,
		store:     store,
		logger:    logger.Named("upload-jobs"),
		now:       time.Now,
	}
}

var _ UploadJobService = (*uploadJobService)(nil)

func (s *uploadJobService) Submit(ctx context.Context, filename string, data []byte) (*models.UploadJob, error) {
	now := s.now().UTC()
	job := &models.UploadJob{
		ID:        newTimeOrderedID(),
		Filename:  filename,
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Save(ctx, job); err != nil {
		return nil, err
	}

	// The job outlives the request that submitted it.
	runCtx := context.WithoutCancel(ctx)
	snapshot := *job

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(runCtx, snapshot, data)
	}()

	return job, nil
}

func (s *uploadJobService) run(ctx context.Context, job models.UploadJob, data []byte) {
	job.Status = models.JobStatusRunning
	s.save(ctx, &job)

	result, err := s.ingestion.Ingest(ctx, job.Filename, data)
	if err != nil {
		job.Status = models.JobStatusFailed
		job.Error = logging.SanitizeError(err)
	} else {
		job.Status = models.JobStatusCompleted
		job.Result = result
	}
	s.save(ctx, &job)

	s.logger.Info("Upload job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)))
}

func (s *uploadJobService) save(ctx context.Context, job *models.UploadJob) {
	job.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, job); err != nil {
		s.logger.Error("Failed to record upload job state",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)),
			zap.String("error", logging.SanitizeError(err)))
	}
}

func (s *uploadJobService) Get(ctx context.Context, id uuid.UUID) (*models.UploadJob, error) {
	return s.store.Get(ctx, id)
}

func (s *uploadJobService) Wait() {
	s.wg.Wait()
}
