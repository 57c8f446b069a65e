package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/nps-engine/pkg/config"
	"github.com/ekaya-inc/nps-engine/pkg/ingest"
	"github.com/ekaya-inc/nps-engine/pkg/logging"
	"github.com/ekaya-inc/nps-engine/pkg/models"
	"github.com/ekaya-inc/nps-engine/pkg/repositories"
)

const (
	defaultIngestBatchSize = 500
	defaultMaxErrorDetails = 100
)

// IngestionService turns an uploaded survey file into stored raw and normalized rows.
type IngestionService interface {
	// Ingest reads, validates and stores one upload. The only error returned
	// is for input that cannot be read as a table (apperrors.ErrUnreadableFile);
	// row and datastore failures are reported in the result.
	Ingest(ctx context.Context, filename string, data []byte) (*models.IngestResult, error)
}

type ingestionService struct {
	rawRepo         repositories.RawResponseRepository
	responseRepo    repositories.ResponseRepository
	batchSize       int
	maxErrorDetails int
	logger          *zap.Logger
	now             func() time.Time
}

// NewIngestionService creates a new IngestionService.
func NewIngestionService(
	rawRepo repositories.RawResponseRepository,
	responseRepo repositories.ResponseRepository,
	cfg config.IngestConfig,
	logger *zap.Logger,
) IngestionService {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultIngestBatchSize
	}
	maxErrors := cfg.MaxErrorDetails
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrorDetails
	}
	return &ingestionService{
		rawRepo:         rawRepo,
		responseRepo:    responseRepo,
		batchSize:       batchSize,
		maxErrorDetails: maxErrors,
		logger:          logger.Named("ingestion-service"),
		now:             time.Now,
	}
}

var _ IngestionService = (*ingestionService)(nil)

func (s *ingestionService) Ingest(ctx context.Context, filename string, data []byte) (*models.IngestResult, error) {
	normalized, err := ingest.Normalize(filename, data)
	if err != nil {
		s.logger.Warn("Rejected unreadable upload",
			zap.String("filename", filename),
			zap.Int("bytes", len(data)),
			zap.Error(err))
		return nil, err
	}

	table := normalized.Table
	s.logger.Info("Parsed upload",
		zap.String("filename", filename),
		zap.String("file_type", string(table.FileType)),
		zap.String("encoding", table.Encoding),
		zap.String("delimiter", table.Delimiter),
		zap.Int("rows", len(table.Rows)),
		zap.Int("accepted", len(normalized.Records)),
		zap.Int("rejected", len(normalized.RowErrors)))

	for field, headers := range normalized.Collisions {
		s.logger.Warn("Multiple columns map to one field; the last column wins",
			zap.String("field", field),
			zap.Strings("headers", headers))
	}

	result := &models.IngestResult{
		Filename:  filename,
		FileType:  table.FileType,
		Encoding:  table.Encoding,
		Delimiter: table.Delimiter,
		Skipped:   len(normalized.RowErrors),
		Errors:    []string{},
	}
	for _, rowErr := range normalized.RowErrors {
		s.addError(result, rowErr.Error())
	}
	result.ErrorCount = len(normalized.RowErrors)

	s.assignIdentifiers(normalized.Records)

	for start, batchNo := 0, 1; start < len(normalized.Records); start, batchNo = start+s.batchSize, batchNo+1 {
		end := min(start+s.batchSize, len(normalized.Records))
		chunk := normalized.Records[start:end]

		if err := ctx.Err(); err != nil {
			remaining := len(normalized.Records) - start
			s.addError(result, fmt.Sprintf("Upload cancelled before batch %d; %d rows not stored", batchNo, remaining))
			result.ErrorCount += remaining
			break
		}

		s.writeChunk(ctx, result, batchNo, chunk)
	}

	s.logger.Info("Ingestion complete",
		zap.String("filename", filename),
		zap.Int("inserted", result.Inserted),
		zap.Int("skipped", result.Skipped),
		zap.Int("raw_saved", result.RawSaved),
		zap.Int("error_count", result.ErrorCount))

	return result, nil
}

// assignIdentifiers gives every pair time-ordered ids and links the response to its raw row.
func (s *ingestionService) assignIdentifiers(records []ingest.Record) {
	now := s.now().UTC()
	for i := range records {
		rec := &records[i]
		rec.Raw.ID = newTimeOrderedID()
		rec.Raw.CreatedAt = now
		rec.Response.ID = newTimeOrderedID()
		rec.Response.RawID = rec.Raw.ID
		rec.Response.CreatedAt = now
	}
}

// writeChunk stores one chunk: raw rows first, then the normalized rows that reference them.
func (s *ingestionService) writeChunk(ctx context.Context, result *models.IngestResult, batchNo int, chunk []ingest.Record) {
	raws := make([]*models.RawRecord, len(chunk))
	responses := make([]*models.NormalizedResponse, len(chunk))
	for i := range chunk {
		raws[i] = &chunk[i].Raw
		responses[i] = &chunk[i].Response
	}
	label := fmt.Sprintf("Batch %d (rows %d-%d)", batchNo, chunk[0].Raw.RowNumber, chunk[len(chunk)-1].Raw.RowNumber)

	rawSaved, err := s.rawRepo.InsertBatch(ctx, raws)
	if err != nil {
		msg := logging.SanitizeError(err)
		s.logger.Error("Raw insert failed", zap.Int("batch", batchNo), zap.Int("size", len(chunk)), zap.String("error", msg))
		s.addError(result, fmt.Sprintf("%s: raw insert failed: %s", label, msg))
		result.ErrorCount += len(chunk)
		return
	}
	result.RawSaved += int(rawSaved)

	inserted, err := s.responseRepo.InsertBatch(ctx, responses)
	if err != nil {
		msg := logging.SanitizeError(err)
		s.logger.Error("Response insert failed", zap.Int("batch", batchNo), zap.Int("size", len(chunk)), zap.String("error", msg))
		s.addError(result, fmt.Sprintf("%s: %d raw rows saved but response insert failed: %s", label, rawSaved, msg))
		result.ErrorCount += len(chunk)
		return
	}
	result.Inserted += int(inserted)

	if int(rawSaved) != len(chunk) || int(inserted) != len(chunk) {
		s.logger.Warn("Partial batch write",
			zap.Int("batch", batchNo),
			zap.Int("size", len(chunk)),
			zap.Int64("raw_saved", rawSaved),
			zap.Int64("inserted", inserted))
		s.addError(result, fmt.Sprintf("%s: partial write, %d of %d raw rows and %d of %d responses stored",
			label, rawSaved, len(chunk), inserted, len(chunk)))
		result.ErrorCount += len(chunk) - int(min(rawSaved, inserted))
	}
}

// addError appends msg unless the list is full, in which case it is only counted as omitted.
func (s *ingestionService) addError(result *models.IngestResult, msg string) {
	if len(result.Errors) >= s.maxErrorDetails {
		result.ErrorsOmitted++
		return
	}
	result.Errors = append(result.Errors, msg)
}

// newTimeOrderedID returns a UUIDv7 so keyset pagination follows insertion order.
func newTimeOrderedID() uuid.UUID {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New()
	}
	return id
}
