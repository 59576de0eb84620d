package fx

import (
	"context"
	"errors"
	"testing"

	"github.com/liqtrade/offer-extractor/internal/entity"
)

type stubRates struct {
	rate  float64
	err   error
	calls int
}

func (s *stubRates) RateToEUR(_ context.Context, _ string) (float64, error) {
	s.calls++
	return s.rate, s.err
}

func fptr(v float64) *float64 { return &v }

func TestApplyEURConvertsDistinctCurrencyOnce(t *testing.T) {
	src := &stubRates{rate: 0.9}
	conv := NewConverter(src, nil)

	records := []entity.ProductRecord{
		{Currency: "USD", PricePerUnit: fptr(10), PricePerCase: fptr(100)},
		{Currency: "USD", PricePerUnit: fptr(5.5)},
	}
	conv.ApplyEUR(context.Background(), records)

	if src.calls != 1 {
		t.Errorf("rate lookups = %d, want 1 per distinct currency", src.calls)
	}
	if *records[0].PricePerUnitEUR != 9 || *records[0].PricePerCaseEUR != 90 {
		t.Errorf("record 0 EUR prices = %v %v", *records[0].PricePerUnitEUR, *records[0].PricePerCaseEUR)
	}
	if *records[1].PricePerUnitEUR != 4.95 {
		t.Errorf("record 1 EUR unit price = %v", *records[1].PricePerUnitEUR)
	}
	if records[1].PricePerCaseEUR != nil {
		t.Error("nil source price should stay nil")
	}
}

func TestApplyEURBlankAndEuroCurrencyCopyThrough(t *testing.T) {
	src := &stubRates{rate: 0.5}
	conv := NewConverter(src, nil)

	records := []entity.ProductRecord{
		{Currency: "", PricePerUnit: fptr(3.2)},
		{Currency: "EUR", PricePerCase: fptr(19.6)},
	}
	conv.ApplyEUR(context.Background(), records)

	if src.calls != 0 {
		t.Errorf("rate lookups = %d, want 0", src.calls)
	}
	if *records[0].PricePerUnitEUR != 3.2 || *records[1].PricePerCaseEUR != 19.6 {
		t.Error("prices not copied verbatim")
	}
}

func TestApplyEURLookupFailureDegrades(t *testing.T) {
	src := &stubRates{err: errors.New("rate service down")}
	conv := NewConverter(src, nil)

	records := []entity.ProductRecord{
		{Currency: "GBP", PricePerUnit: fptr(11.4), ErrorFlags: []string{}},
	}
	conv.ApplyEUR(context.Background(), records)

	if *records[0].PricePerUnitEUR != 11.4 {
		t.Errorf("identity rate expected, got %v", *records[0].PricePerUnitEUR)
	}
	if !records[0].NeedsManualReview {
		t.Error("failed lookup must raise needs_manual_review")
	}
	if len(records[0].ErrorFlags) != 1 || records[0].ErrorFlags[0] != "fx_rate_unavailable" {
		t.Errorf("error_flags = %v", records[0].ErrorFlags)
	}
}
