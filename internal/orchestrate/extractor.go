package orchestrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/liqtrade/offer-extractor/internal/entity"
	"github.com/liqtrade/offer-extractor/internal/fx"
	"github.com/liqtrade/offer-extractor/internal/llm"
	"github.com/liqtrade/offer-extractor/internal/normalize"
	"github.com/liqtrade/offer-extractor/internal/plan"
	"github.com/liqtrade/offer-extractor/internal/reader"
)

// Config holds sizing knobs for the extraction run.
type Config struct {
	WindowSize   int // characters per text-mode unit
	RowsPerUnit  int // rows per tabular unit
	FallbackRows int // rows serialized into the text-mode fallback sample
}

// Orchestrator drives one document through planning, per-unit interpretation,
// parsing, normalization and the EUR pass. Units run sequentially: ordering
// carries the document context forward and the interpretation service's
// latency budget does not reward intra-job fan-out.
type Orchestrator struct {
	interp llm.Interpreter
	conv   *fx.Converter
	logger *slog.Logger
	cfg    Config
}

func New(interp llm.Interpreter, conv *fx.Converter, logger *slog.Logger, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = plan.DefaultWindowSize
	}
	if cfg.RowsPerUnit <= 0 {
		cfg.RowsPerUnit = plan.DefaultRowsPerUnit
	}
	if cfg.FallbackRows <= 0 {
		cfg.FallbackRows = 10
	}
	return &Orchestrator{interp: interp, conv: conv, logger: logger, cfg: cfg}
}

// Run extracts all product records from one document. Per-unit failures are
// isolated into UnitErrors and never abort the run: a single malformed batch
// must not discard products already extracted from other batches. When every
// tabular unit fails, a small text-mode sample of the document is retried
// once before giving up.
func (o *Orchestrator) Run(ctx context.Context, doc reader.Document, docCtx plan.DocumentContext) ([]entity.ProductRecord, []entity.UnitError) {
	var units []plan.Unit
	if doc.Tabular() {
		units = plan.BatchRows(doc.Rows, o.cfg.RowsPerUnit)
	} else {
		units = plan.ChunkText(doc.Text, o.cfg.WindowSize)
	}
	o.logger.Info("extract.start", "tabular", doc.Tabular(), "units", len(units))

	records, unitErrs := o.runUnits(ctx, units, docCtx)

	if doc.Tabular() && len(units) > 0 && len(unitErrs) == len(units) {
		o.logger.Warn("extract.all_units_failed", "units", len(units))
		sample := plan.ChunkText(sampleText(doc.Rows, o.cfg.FallbackRows), o.cfg.WindowSize)
		fbRecords, fbErrs := o.runUnits(ctx, sample, docCtx)
		records = fbRecords
		for _, e := range fbErrs {
			unitErrs = append(unitErrs, entity.UnitError{UnitIndex: e.UnitIndex, Cause: "fallback: " + e.Cause})
		}
	}

	applyContext(records, docCtx)

	// separate pass after full aggregation, so a unit's records are never
	// partially converted
	o.conv.ApplyEUR(ctx, records)

	o.logger.Info("extract.done", "products", len(records), "unit_errors", len(unitErrs))
	return records, unitErrs
}

func (o *Orchestrator) runUnits(ctx context.Context, units []plan.Unit, docCtx plan.DocumentContext) ([]entity.ProductRecord, []entity.UnitError) {
	var records []entity.ProductRecord
	var unitErrs []entity.UnitError

	for _, unit := range units {
		req := llm.ExtractRequest{
			Text:      unit.Text,
			Rows:      unit.Rows,
			UnitIndex: unit.Index,
			UnitTotal: unit.Total,
		}
		if len(unit.Rows) > 0 {
			req.Context = docCtx.Map()
		}

		raw, err := o.interp.Interpret(ctx, req)
		if err != nil {
			o.logger.Error("extract.unit.failed", "unit", unit.Index, "error", err)
			unitErrs = append(unitErrs, entity.UnitError{UnitIndex: unit.Index, Cause: err.Error()})
			continue
		}

		candidates, err := llm.ParseProducts(raw)
		if err != nil {
			o.logger.Error("extract.unit.unparsable", "unit", unit.Index, "error", err, "bytes", len(raw))
			unitErrs = append(unitErrs, entity.UnitError{UnitIndex: unit.Index, Cause: err.Error()})
			continue
		}

		kept := 0
		for _, candidate := range candidates {
			rec := normalize.Clean(candidate)
			if rec.IsEmpty() {
				// section labels, footers and blank rows the service failed
				// to skip
				continue
			}
			records = append(records, rec)
			kept++
		}
		o.logger.Info("extract.unit.ok", "unit", unit.Index, "candidates", len(candidates), "kept", kept)
	}
	return records, unitErrs
}

// applyContext fills document-level defaults into fields the unit's own
// content left blank. A value the service extracted always wins.
func applyContext(records []entity.ProductRecord, docCtx plan.DocumentContext) {
	for i := range records {
		rec := &records[i]
		if rec.Incoterm == "" {
			rec.Incoterm = docCtx.Incoterm
		}
		if rec.Location == "" {
			rec.Location = docCtx.Location
		}
		if rec.CustomStatus == "" {
			rec.CustomStatus = docCtx.CustomStatusDefault
		}
		if rec.OfferDate == "" {
			rec.OfferDate = docCtx.OfferDate
		}
	}
}

// sampleText serializes the first n rows so a stubborn spreadsheet can take
// the text-mode path.
func sampleText(rows [][]string, n int) string {
	if n > len(rows) {
		n = len(rows)
	}
	b, _ := json.MarshalIndent(rows[:n], "", "  ")
	return fmt.Sprintf("Spreadsheet with %d rows. Sample:\n%s", len(rows), b)
}
