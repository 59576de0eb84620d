package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/entity"
	"github.com/liqtrade/offer-extractor/internal/jobstore"
	"github.com/liqtrade/offer-extractor/internal/orchestrate"
	"github.com/liqtrade/offer-extractor/internal/plan"
	"github.com/liqtrade/offer-extractor/internal/reader"
	"github.com/liqtrade/offer-extractor/internal/webhook"
)

// ProcessingVersion stamps every record with the schema/pipeline revision
// that produced it.
const ProcessingVersion = "1.0.0"

// Payload is the ingestion request carried from the boundary to the worker.
// Exactly one of FilePath and TextBody supplies the document content.
type Payload struct {
	SupplierName    string `json:"supplier_name,omitempty"`
	SupplierEmail   string `json:"supplier_email,omitempty"`
	SourceChannel   string `json:"source_channel,omitempty"`
	SourceMessageID string `json:"source_message_id,omitempty"`
	SourceFilename  string `json:"source_filename,omitempty"`
	TextBody        string `json:"text_body,omitempty"`
	FilePath        string `json:"file_path,omitempty"`
}

// Archiver persists a finished job's records durably. Archival is best
// effort; the job outcome is decided before it runs.
type Archiver interface {
	ArchiveProducts(ctx context.Context, jobID string, records []entity.ProductRecord) error
}

// Processor runs one extraction job end to end: resolve the document, scan
// the document context, orchestrate extraction, write the terminal status,
// archive, and notify the consumer.
type Processor struct {
	logger  *slog.Logger
	store   jobstore.Store
	reader  *reader.FileReader
	orch    *orchestrate.Orchestrator
	archive Archiver        // optional
	hooks   *webhook.Client // optional
}

func NewProcessor(logger *slog.Logger, store jobstore.Store, rd *reader.FileReader, orch *orchestrate.Orchestrator, archive Archiver, hooks *webhook.Client) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, store: store, reader: rd, orch: orch, archive: archive, hooks: hooks}
}

// Process drives jobID to a terminal status. It returns an error for
// infrastructure failures and for job failures, after the failed status is
// written, so the queue's retry accounting sees them; a document that
// yields nothing still completes with an empty product list and its unit
// errors. Re-running a terminal job is a no-op.
func (p *Processor) Process(ctx context.Context, jobID string, payload Payload) error {
	if err := p.store.MarkProcessing(ctx, jobID); err != nil {
		if errors.Is(err, jobstore.ErrTerminal) {
			p.logger.Warn("pipeline.already_terminal", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("mark processing %s: %w", jobID, err)
	}
	p.logger.Info("pipeline.start", "job_id", jobID, "source_channel", payload.SourceChannel)

	doc, err := p.resolveDocument(ctx, payload)
	if err != nil {
		return p.fail(ctx, jobID, err)
	}

	var docCtx plan.DocumentContext
	if doc.Tabular() {
		docCtx = plan.ScanRows(doc.Rows)
	} else {
		docCtx = plan.ScanText(doc.Text)
	}

	records, unitErrs := p.orch.Run(ctx, doc, docCtx)
	p.stamp(records, payload)

	result := &entity.JobResult{Products: records, UnitErrors: unitErrs}
	if err := p.store.Complete(ctx, jobID, result); err != nil {
		if errors.Is(err, jobstore.ErrTerminal) {
			p.logger.Warn("pipeline.already_terminal", "job_id", jobID)
			return nil
		}
		return fmt.Errorf("complete %s: %w", jobID, err)
	}
	p.logger.Info("pipeline.done", "job_id", jobID, "products", len(records), "unit_errors", len(unitErrs))

	if p.archive != nil && len(records) > 0 {
		if err := p.archive.ArchiveProducts(ctx, jobID, records); err != nil {
			p.logger.Error("pipeline.archive_failed", "job_id", jobID, "error", err)
		}
	}
	if p.hooks != nil {
		p.hooks.Notify(ctx, jobID, "job_summary", map[string]any{
			"status":          string(constants.JobStatusDone),
			"total_extracted": len(records),
		})
	}
	return nil
}

func (p *Processor) resolveDocument(ctx context.Context, payload Payload) (reader.Document, error) {
	switch {
	case payload.FilePath != "":
		return p.reader.Read(ctx, payload.FilePath)
	case payload.TextBody != "":
		return reader.Document{Format: constants.FormatText, Text: payload.TextBody}, nil
	default:
		return reader.Document{}, fmt.Errorf("payload carries neither a file nor a text body")
	}
}

// fail writes the failed status, notifies, and hands the cause back so the
// caller of Process sees the job fail. The terminal write comes first, so a
// retry of a job that failed for good finds it already terminal.
func (p *Processor) fail(ctx context.Context, jobID string, cause error) error {
	p.logger.Error("pipeline.failed", "job_id", jobID, "error", cause)
	if err := p.store.Fail(ctx, jobID, cause.Error()); err != nil && !errors.Is(err, jobstore.ErrTerminal) {
		p.logger.Error("pipeline.fail_write_failed", "job_id", jobID, "error", err)
	}
	if p.hooks != nil {
		p.hooks.Notify(ctx, jobID, "job_summary", map[string]any{
			"status": string(constants.JobStatusFailed),
			"error":  cause.Error(),
		})
	}
	return cause
}

// stamp fills the backend-owned fields the interpretation service never
// sets: record identity, pipeline revision, receipt time and provenance.
// Provenance from the payload wins only where the document itself said
// nothing.
func (p *Processor) stamp(records []entity.ProductRecord, payload Payload) {
	now := time.Now().UTC().Format("2006-01-02")
	for i := range records {
		rec := &records[i]
		rec.UID = uuid.NewString()
		rec.ProcessingVersion = ProcessingVersion
		if rec.DateReceived == "" {
			rec.DateReceived = now
		}
		if rec.SupplierName == "" {
			rec.SupplierName = payload.SupplierName
		}
		if rec.SourceChannel == "" {
			rec.SourceChannel = payload.SourceChannel
		}
		if rec.SourceMessageID == "" {
			rec.SourceMessageID = payload.SourceMessageID
		}
		if rec.SourceFilename == "" {
			rec.SourceFilename = payload.SourceFilename
		}
	}
}
