// Package core runs batches of declaration forms through reconciliation.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/taxforms-extractor/constants"
	"github.com/joseph-ayodele/taxforms-extractor/internal/common"
	"github.com/joseph-ayodele/taxforms-extractor/internal/core/reconcile"
	"github.com/joseph-ayodele/taxforms-extractor/internal/export"
	"github.com/joseph-ayodele/taxforms-extractor/internal/ingest"
	"github.com/joseph-ayodele/taxforms-extractor/internal/repository"
)

// DocumentReconciler turns one document into its canonical field mapping.
type DocumentReconciler interface {
	Reconcile(ctx context.Context, content []byte, mimeType string) (*reconcile.Result, error)
}

// Stats summarizes a batch run.
type Stats struct {
	Scanned   uint32
	Processed uint32
	Failed    uint32
	Skipped   uint32
}

// Processor walks a batch source one entry at a time: reconcile, append to the
// sink, record the outcome. Per-document failures never stop the batch.
type Processor struct {
	logger     *slog.Logger
	reconciler DocumentReconciler
	sink       export.Sink
	jobsRepo   repository.ExtractJobRepository
}

// NewProcessor builds a Processor. jobsRepo may be nil to run without a ledger.
func NewProcessor(
	logger *slog.Logger,
	reconciler DocumentReconciler,
	sink export.Sink,
	jobsRepo repository.ExtractJobRepository,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		logger:     logger,
		reconciler: reconciler,
		sink:       sink,
		jobsRepo:   jobsRepo,
	}
}

// ProcessSource runs every entry of src under a fresh run id. It only returns
// an error when the source itself cannot be read.
func (p *Processor) ProcessSource(ctx context.Context, src ingest.Source) (uuid.UUID, Stats, error) {
	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID)
	start := time.Now()

	var stats Stats
	err := src.Walk(ctx, func(e ingest.Entry) error {
		stats.Scanned++
		status, err := p.ProcessEntry(ctx, e)
		switch status {
		case constants.JobStatusDone:
			stats.Processed++
		case constants.JobStatusSkipped:
			stats.Skipped++
		default:
			stats.Failed++
			p.logger.Error("document failed", "run_id", runID, "file", e.Name, "code", common.ErrorCode(err), "err", err)
		}
		return nil
	})

	p.logger.Info("batch finished",
		"run_id", runID,
		"scanned", stats.Scanned,
		"processed", stats.Processed,
		"failed", stats.Failed,
		"skipped", stats.Skipped,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	if err != nil {
		return runID, stats, common.WrapError(err, "read batch input")
	}
	return runID, stats, nil
}

// ProcessEntry handles one batch entry and reports its final status. The
// returned error explains a FAILED status.
func (p *Processor) ProcessEntry(ctx context.Context, e ingest.Entry) (constants.JobStatus, error) {
	ctx = common.WithSourceName(ctx, e.Name)
	runID := common.RunIDFromContext(ctx)

	mimeType, ok := constants.MimeTypeFor(e.Name)
	if !ok {
		p.logger.Warn("unsupported file skipped", "file", e.Name, "err", common.ErrUnsupportedMimeType)
		if p.jobsRepo != nil {
			if err := p.jobsRepo.Skip(ctx, runID, e.Name, common.ErrUnsupportedMimeType.Error()); err != nil {
				p.logger.Error("ledger write failed", "file", e.Name, "err", err)
			}
		}
		return constants.JobStatusSkipped, nil
	}

	jobID := p.startJob(ctx, runID, e.Name, mimeType)

	if e.Err != nil {
		err := common.NewAppError("READ_ERROR", "document could not be read from input", e.Err)
		p.finishFailure(ctx, jobID, err)
		return constants.JobStatusFailed, err
	}

	res, err := p.reconciler.Reconcile(ctx, e.Content, mimeType)
	if err == nil {
		if appendErr := p.sink.Append(ctx, res); appendErr != nil {
			err = fmt.Errorf("append to sheet: %w", appendErr)
		}
	}
	if err != nil {
		p.finishFailure(ctx, jobID, err)
		return constants.JobStatusFailed, err
	}

	if jobID != uuid.Nil {
		if err := p.jobsRepo.FinishSuccess(ctx, jobID, repository.JobOutcome{
			Variant:   res.Variant,
			Pages:     res.Pages,
			Extracted: res.AsMap(),
		}); err != nil {
			p.logger.Error("ledger write failed", "file", e.Name, "job_id", jobID, "err", err)
		}
	}
	return constants.JobStatusDone, nil
}

func (p *Processor) startJob(ctx context.Context, runID uuid.UUID, name, mimeType string) uuid.UUID {
	if p.jobsRepo == nil {
		return uuid.Nil
	}
	job, err := p.jobsRepo.Start(ctx, runID, name, mimeType)
	if err != nil {
		p.logger.Error("ledger write failed", "file", name, "err", err)
		return uuid.Nil
	}
	return job.ID
}

func (p *Processor) finishFailure(ctx context.Context, jobID uuid.UUID, cause error) {
	if jobID == uuid.Nil {
		return
	}
	if err := p.jobsRepo.FinishFailure(ctx, jobID, cause.Error()); err != nil {
		p.logger.Error("ledger write failed", "job_id", jobID, "err", err)
	}
}
