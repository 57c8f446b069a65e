package models

import (
	"time"

	"github.com/google/uuid"
)

// NPSCategory is the promoter/passive/detractor bucket derived from a score.
type NPSCategory string

const (
	NPSCategoryPromoter  NPSCategory = "promoter"
	NPSCategoryPassive   NPSCategory = "passive"
	NPSCategoryDetractor NPSCategory = "detractor"
)

// CategoryForScore buckets a 0-10 score: 9-10 promoter, 7-8 passive, 0-6 detractor.
func CategoryForScore(score int) NPSCategory {
	switch {
	case score >= 9:
		return NPSCategoryPromoter
	case score >= 7:
		return NPSCategoryPassive
	default:
		return NPSCategoryDetractor
	}
}

// FileType identifies how an uploaded blob was read.
type FileType string

const (
	FileTypeDelimited         FileType = "csv"
	FileTypeSpreadsheet       FileType = "xlsx"
	FileTypeLegacySpreadsheet FileType = "xls"
)

// RawRecord is one source row exactly as it appeared in the upload, keyed by
// original header. Persisted verbatim to nps_raw.
type RawRecord struct {
	ID             uuid.UUID         `json:"id"`
	SourceFilename string            `json:"source_filename"`
	RowNumber      int               `json:"row_number"` // 1-based over data rows
	FileType       FileType          `json:"file_type"`
	Encoding       string            `json:"encoding"`
	Delimiter      string            `json:"delimiter,omitempty"`
	Payload        map[string]string `json:"payload"`
	CreatedAt      time.Time         `json:"created_at"`
}

// NormalizedResponse is the canonical survey response stored in nps_response.
// Rows are append-only.
type NormalizedResponse struct {
	ID               uuid.UUID   `json:"id"`
	RawID            uuid.UUID   `json:"raw_id"`
	SurveyName       string      `json:"survey_name"`
	NPSScore         int         `json:"nps_score"`
	NPSCategory      NPSCategory `json:"nps_category"`
	NPSExplanation   *string     `json:"nps_explanation,omitempty"`
	WordCount        int         `json:"word_count"`
	HasExplanation   bool        `json:"has_explanation"`
	Gender           *string     `json:"gender,omitempty"`
	AgeRange         *string     `json:"age_range,omitempty"`
	Tenure           *string     `json:"tenure,omitempty"`
	CreationDate     time.Time   `json:"creation_date"` // calendar date, UTC midnight
	Title            *string     `json:"title,omitempty"`
	SubscriptionKey  *string     `json:"subscription_key,omitempty"`
	SubscriptionType *string     `json:"subscription_type,omitempty"`
	HadTrial         *bool       `json:"had_trial,omitempty"`
	ExitReason       *string     `json:"exit_reason,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// IngestResult summarizes one upload.
type IngestResult struct {
	Filename      string   `json:"filename"`
	FileType      FileType `json:"file_type,omitempty"`
	Encoding      string   `json:"encoding,omitempty"`
	Delimiter     string   `json:"delimiter,omitempty"`
	Inserted      int      `json:"inserted"`
	Skipped       int      `json:"skipped"`
	RawSaved      int      `json:"raw_saved"`
	ErrorCount    int      `json:"error_count"`
	Errors        []string `json:"errors"`
	ErrorsOmitted int      `json:"errors_omitted,omitempty"`
}

// JobStatus is the lifecycle state of an asynchronous upload.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// UploadJob tracks an asynchronous upload so callers can poll for its result.
type UploadJob struct {
	ID        uuid.UUID     `json:"id"`
	Filename  string        `json:"filename"`
	Status    JobStatus     `json:"status"`
	Result    *IngestResult `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
