package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/nps-engine/pkg/database"
	"github.com/ekaya-inc/nps-engine/pkg/models"
)

// RawResponseRepository stores source rows verbatim for audit and replay.
type RawResponseRepository interface {
	// InsertBatch writes all records in one COPY and returns the rows written.
	InsertBatch(ctx context.Context, records []*models.RawRecord) (int64, error)
}

type rawResponseRepository struct {
	db database.Querier
}

// NewRawResponseRepository creates a new RawResponseRepository.
func NewRawResponseRepository(db database.Querier) RawResponseRepository {
	return &rawResponseRepository{db: db}
}

var _ RawResponseRepository = (*rawResponseRepository)(nil)

func (r *rawResponseRepository) InsertBatch(ctx context.Context, records []*models.RawRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	columns := []string{
		"id", "source_filename", "row_number", "file_type",
		"encoding", "delimiter", "payload", "created_at",
	}

	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{
			rec.ID, rec.SourceFilename, rec.RowNumber, string(rec.FileType),
			rec.Encoding, nullString(rec.Delimiter), rec.Payload, rec.CreatedAt,
		}
	}

	n, err := r.db.CopyFrom(ctx, pgx.Identifier{"nps_raw"}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw responses: %w", err)
	}
	return n, nil
}
