package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
)

// ExtractJob is one ledger row: the outcome of processing one batch entry.
type ExtractJob struct {
	ID             uuid.UUID             `json:"id"`
	RunID          uuid.UUID             `json:"run_id"`
	SourceName     string                `json:"source_name"`
	MimeType       string                `json:"mime_type"`
	Status         constants.JobStatus   `json:"status"`
	FormVariant    constants.FormVariant `json:"form_variant,omitempty"`
	PagesProcessed int                   `json:"pages_processed"`
	FieldsMatched  int                   `json:"fields_matched"`
	ExtractedJSON  json.RawMessage       `json:"extracted_json,omitempty"`
	ErrorMessage   *string               `json:"error_message,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	FinishedAt     *time.Time            `json:"finished_at,omitempty"`
}
