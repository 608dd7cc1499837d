package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/entity"
)

// JobOutcome is what a successfully reconciled entry records.
type JobOutcome struct {
	Variant   constants.FormVariant
	Pages     int
	Extracted map[string]any
}

type ExtractJobRepository interface {
	Start(ctx context.Context, runID uuid.UUID, sourceName, mimeType string) (*entity.ExtractJob, error)
	FinishSuccess(ctx context.Context, jobID uuid.UUID, outcome JobOutcome) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
	Skip(ctx context.Context, runID uuid.UUID, sourceName, reason string) error
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*entity.ExtractJob, error)
}

type extractJobRepo struct {
	db  *DB
	log *slog.Logger
}

func NewExtractJobRepository(db *DB, log *slog.Logger) ExtractJobRepository {
	if log == nil {
		log = slog.Default()
	}
	return &extractJobRepo{db: db, log: log}
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (r *extractJobRepo) Start(ctx context.Context, runID uuid.UUID, sourceName, mimeType string) (*entity.ExtractJob, error) {
	job := &entity.ExtractJob{
		ID:         uuid.New(),
		RunID:      runID,
		SourceName: sourceName,
		MimeType:   mimeType,
		Status:     constants.JobStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO extract_job (id, run_id, source_name, mime_type, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`),
		job.ID.String(), runID.String(), sourceName, mimeType, string(job.Status), job.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		r.log.Error("extract_job start failed", "file", sourceName, "err", err)
		return nil, dbError(err)
	}
	r.log.Debug("extract_job started", "job_id", job.ID, "file", sourceName)
	return job, nil
}

func (r *extractJobRepo) FinishSuccess(ctx context.Context, jobID uuid.UUID, outcome JobOutcome) error {
	var extracted []byte
	if outcome.Extracted != nil {
		b, err := json.Marshal(outcome.Extracted)
		if err != nil {
			return fmt.Errorf("marshal extracted fields: %w", err)
		}
		extracted = b
	}
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`UPDATE extract_job SET status = ?, form_variant = ?, pages_processed = ?, fields_matched = ?, extracted_json = ?, finished_at = ? WHERE id = ?`),
		string(constants.JobStatusDone), string(outcome.Variant), outcome.Pages, len(outcome.Extracted), nullString(string(extracted)), now(), jobID.String(),
	)
	if err := checkUpdated(res, err); err != nil {
		r.log.Error("extract_job finish(DONE) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Debug("extract_job finished (DONE)", "job_id", jobID, "variant", outcome.Variant.String())
	return nil
}

func (r *extractJobRepo) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	res, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`UPDATE extract_job SET status = ?, error_message = ?, finished_at = ? WHERE id = ?`),
		string(constants.JobStatusFailed), message, now(), jobID.String(),
	)
	if err := checkUpdated(res, err); err != nil {
		r.log.Error("extract_job finish(FAILED) failed", "job_id", jobID, "err", err)
		return err
	}
	r.log.Debug("extract_job finished (FAILED)", "job_id", jobID, "error", message)
	return nil
}

func (r *extractJobRepo) Skip(ctx context.Context, runID uuid.UUID, sourceName, reason string) error {
	ts := now()
	_, err := r.db.SQL.ExecContext(ctx, r.db.rebind(
		`INSERT INTO extract_job (id, run_id, source_name, status, error_message, started_at, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
		uuid.NewString(), runID.String(), sourceName, string(constants.JobStatusSkipped), reason, ts, ts,
	)
	if err != nil {
		r.log.Error("extract_job skip failed", "file", sourceName, "err", err)
		return dbError(err)
	}
	return nil
}

func (r *extractJobRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]*entity.ExtractJob, error) {
	rows, err := r.db.SQL.QueryContext(ctx, r.db.rebind(
		`SELECT id, run_id, source_name, mime_type, status, form_variant, pages_processed, fields_matched, extracted_json, error_message, started_at, finished_at
		 FROM extract_job WHERE run_id = ? ORDER BY started_at, source_name`),
		runID.String(),
	)
	if err != nil {
		return nil, dbError(err)
	}
	defer rows.Close()

	var out []*entity.ExtractJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError(err)
	}
	return out, nil
}

func scanJob(rows *sql.Rows) (*entity.ExtractJob, error) {
	var (
		id, runID, status, variant, startedAt string
		job                                   entity.ExtractJob
		extracted, errMsg, finishedAt         sql.NullString
	)
	if err := rows.Scan(&id, &runID, &job.SourceName, &job.MimeType, &status, &variant,
		&job.PagesProcessed, &job.FieldsMatched, &extracted, &errMsg, &startedAt, &finishedAt); err != nil {
		return nil, dbError(err)
	}

	var err error
	if job.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse job id: %w", err)
	}
	if job.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	if job.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		job.FinishedAt = &t
	}
	job.Status = constants.JobStatus(status)
	job.FormVariant = constants.FormVariant(variant)
	if extracted.Valid {
		job.ExtractedJSON = json.RawMessage(extracted.String)
	}
	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	return &job, nil
}

func checkUpdated(res sql.Result, err error) error {
	if err != nil {
		return dbError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbError(err)
	}
	if n == 0 {
		return common.NewAppError("NOT_FOUND", "extract job not found", common.ErrInvalidInput)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func dbError(err error) error {
	return fmt.Errorf("%w: %w", common.ErrDatabase, err)
}
