package orchestrate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/fx"
	"github.com/liqtrade/offer-extractor/internal/llm"
	"github.com/liqtrade/offer-extractor/internal/plan"
	"github.com/liqtrade/offer-extractor/internal/reader"
)

type fakeInterpreter struct {
	fn    func(req llm.ExtractRequest) (string, error)
	calls int
}

func (f *fakeInterpreter) Interpret(_ context.Context, req llm.ExtractRequest) (string, error) {
	f.calls++
	return f.fn(req)
}

type fixedRates struct {
	rate  float64
	calls int
}

func (r *fixedRates) RateToEUR(context.Context, string) (float64, error) {
	r.calls++
	return r.rate, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(interp llm.Interpreter, rates fx.RateSource) *Orchestrator {
	return New(interp, fx.NewConverter(rates, discard()), discard(), Config{RowsPerUnit: 2})
}

func sheet(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{fmt.Sprintf("Product %d", i), "12x700ml", "EUR 10"}
	}
	return rows
}

func TestRunIsolatesFailedUnits(t *testing.T) {
	// 6 rows at 2 per unit: units 0, 1, 2; unit 1 fails
	interp := &fakeInterpreter{fn: func(req llm.ExtractRequest) (string, error) {
		if req.UnitIndex == 1 {
			return "", fmt.Errorf("service timeout")
		}
		return fmt.Sprintf(`{"products": [{"product_name": "Unit %d Gin"}]}`, req.UnitIndex), nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, unitErrs := orch.Run(context.Background(), reader.Document{
		Format: constants.FormatExcel,
		Rows:   sheet(6),
	}, plan.DocumentContext{})

	if len(records) != 2 {
		t.Fatalf("records = %d, want 2 from surviving units", len(records))
	}
	if records[0].ProductName != "Unit 0 Gin" || records[1].ProductName != "Unit 2 Gin" {
		t.Fatalf("wrong records: %q, %q", records[0].ProductName, records[1].ProductName)
	}
	if len(unitErrs) != 1 || unitErrs[0].UnitIndex != 1 {
		t.Fatalf("unit errors = %+v, want exactly one for unit 1", unitErrs)
	}
	if unitErrs[0].Cause != "service timeout" {
		t.Fatalf("cause = %q", unitErrs[0].Cause)
	}
}

func TestRunUnparsableUnitBecomesUnitError(t *testing.T) {
	interp := &fakeInterpreter{fn: func(req llm.ExtractRequest) (string, error) {
		if req.UnitIndex == 0 {
			return "total garbage with no json at all", nil
		}
		return `{"products": [{"product_name": "Rioja"}]}`, nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, unitErrs := orch.Run(context.Background(), reader.Document{
		Rows: sheet(4),
	}, plan.DocumentContext{})

	if len(records) != 1 || records[0].ProductName != "Rioja" {
		t.Fatalf("records = %+v", records)
	}
	if len(unitErrs) != 1 || unitErrs[0].UnitIndex != 0 {
		t.Fatalf("unit errors = %+v", unitErrs)
	}
}

func TestRunDropsEmptyCandidates(t *testing.T) {
	interp := &fakeInterpreter{fn: func(llm.ExtractRequest) (string, error) {
		return `{"products": [
			{"product_name": "SPIRITS SECTION", "product_key": ""},
			{"product_name": "", "product_key": ""},
			{"product_name": "Jameson 12x700ml"}
		]}`, nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, unitErrs := orch.Run(context.Background(), reader.Document{
		Rows: sheet(2),
	}, plan.DocumentContext{})

	if len(unitErrs) != 0 {
		t.Fatalf("unit errors = %+v", unitErrs)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want blank candidate dropped", len(records))
	}
	for _, rec := range records {
		if rec.ProductName == "" {
			t.Fatalf("empty record survived: %+v", rec)
		}
	}
}

func TestRunTabularFallbackToText(t *testing.T) {
	// every rows-mode unit fails; the text-mode retry over the row sample
	// succeeds
	interp := &fakeInterpreter{fn: func(req llm.ExtractRequest) (string, error) {
		if len(req.Rows) > 0 {
			return "", fmt.Errorf("rows mode rejected")
		}
		if !strings.Contains(req.Text, "Spreadsheet with 4 rows") {
			return "", fmt.Errorf("unexpected fallback text: %q", req.Text)
		}
		return `{"products": [{"product_name": "Fallback Stout"}]}`, nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, unitErrs := orch.Run(context.Background(), reader.Document{
		Rows: sheet(4),
	}, plan.DocumentContext{})

	if len(records) != 1 || records[0].ProductName != "Fallback Stout" {
		t.Fatalf("records = %+v, want one from text fallback", records)
	}
	// the original unit failures stay on the record
	if len(unitErrs) != 2 {
		t.Fatalf("unit errors = %d, want the 2 rows-mode failures", len(unitErrs))
	}
}

func TestRunNoFallbackForTextDocuments(t *testing.T) {
	interp := &fakeInterpreter{fn: func(llm.ExtractRequest) (string, error) {
		return "", fmt.Errorf("down")
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, unitErrs := orch.Run(context.Background(), reader.Document{
		Format: constants.FormatText,
		Text:   "FOB Rotterdam. Glenfiddich 15yo 6x700ml 43% EUR 210",
	}, plan.DocumentContext{})

	if len(records) != 0 || len(unitErrs) != 1 {
		t.Fatalf("records=%d errs=%d, want 0 and 1", len(records), len(unitErrs))
	}
	if interp.calls != 1 {
		t.Fatalf("interpreter called %d times, want 1", interp.calls)
	}
}

func TestRunConvertsAfterAggregation(t *testing.T) {
	interp := &fakeInterpreter{fn: func(req llm.ExtractRequest) (string, error) {
		return fmt.Sprintf(`{"products": [{"product_name": "Unit %d Rum", "currency": "USD", "price_per_case": 100}]}`, req.UnitIndex), nil
	}}
	rates := &fixedRates{rate: 0.9}
	orch := newTestOrchestrator(interp, rates)

	records, _ := orch.Run(context.Background(), reader.Document{
		Rows: sheet(6),
	}, plan.DocumentContext{})

	if len(records) != 3 {
		t.Fatalf("records = %d", len(records))
	}
	for _, rec := range records {
		if rec.PricePerCaseEUR == nil || *rec.PricePerCaseEUR != 90 {
			t.Fatalf("price_per_case_eur = %v", rec.PricePerCaseEUR)
		}
	}
	if rates.calls != 1 {
		t.Fatalf("rate lookups = %d, want one per distinct currency", rates.calls)
	}
}

func TestRunContextFillsBlanksOnly(t *testing.T) {
	interp := &fakeInterpreter{fn: func(llm.ExtractRequest) (string, error) {
		return `{"products": [
			{"product_name": "Tullamore Dew", "incoterm": "FOB", "location": "Cork"},
			{"product_name": "Teeling Small Batch"}
		]}`, nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	records, _ := orch.Run(context.Background(), reader.Document{Rows: sheet(2)}, plan.DocumentContext{
		Incoterm:            "EXW",
		Location:            "Dublin",
		CustomStatusDefault: "T1",
	})

	if records[0].Incoterm != "FOB" || records[0].Location != "Cork" {
		t.Fatalf("extracted values overridden: %+v", records[0])
	}
	if records[1].Incoterm != "EXW" || records[1].Location != "Dublin" || records[1].CustomStatus != "T1" {
		t.Fatalf("defaults not applied to blanks: %+v", records[1])
	}
}

func TestRunPassesContextToRowUnits(t *testing.T) {
	var seen map[string]string
	interp := &fakeInterpreter{fn: func(req llm.ExtractRequest) (string, error) {
		seen = req.Context
		return `{"products": []}`, nil
	}}
	orch := newTestOrchestrator(interp, &fixedRates{rate: 1})

	orch.Run(context.Background(), reader.Document{Rows: sheet(2)}, plan.DocumentContext{
		Incoterm: "EXW",
		Location: "Dublin",
	})

	if seen["incoterm"] != "EXW" || seen["location"] != "Dublin" {
		t.Fatalf("context = %v", seen)
	}
}
