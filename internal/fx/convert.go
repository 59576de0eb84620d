package fx

import (
	"context"
	"log/slog"
	"math"

	"github.com/liqtrade/offer-extractor/constants"
	"github.com/liqtrade/offer-extractor/internal/entity"
)

// TargetCurrency is the common currency all prices normalize to.
const TargetCurrency = "EUR"

// RateSource looks up the exchange rate from a currency to EUR. Implemented
// by an external collaborator; failures degrade to the identity rate rather
// than failing the job.
type RateSource interface {
	RateToEUR(ctx context.Context, currency string) (float64, error)
}

// Converter fills the EUR-suffixed price fields of aggregated records.
type Converter struct {
	source RateSource
	logger *slog.Logger
}

func NewConverter(source RateSource, logger *slog.Logger) *Converter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Converter{source: source, logger: logger}
}

// ApplyEUR converts unit/case prices to EUR in place. Records whose currency
// is blank or already EUR copy their prices verbatim. One rate is fetched
// per distinct currency seen in the aggregate, not per record. A failed
// lookup uses rate 1.0 and marks the affected records for manual review.
func (c *Converter) ApplyEUR(ctx context.Context, records []entity.ProductRecord) {
	rates := make(map[string]float64)
	failed := make(map[string]bool)

	for i := range records {
		rec := &records[i]
		if rec.Currency == "" || rec.Currency == TargetCurrency {
			rec.PricePerUnitEUR = copyPrice(rec.PricePerUnit)
			rec.PricePerCaseEUR = copyPrice(rec.PricePerCase)
			continue
		}

		rate, ok := rates[rec.Currency]
		if !ok {
			var err error
			rate, err = c.source.RateToEUR(ctx, rec.Currency)
			if err != nil || rate <= 0 {
				c.logger.Warn("fx.rate_lookup_failed", "currency", rec.Currency, "error", err)
				rate = 1.0
				failed[rec.Currency] = true
			} else {
				c.logger.Info("fx.rate", "currency", rec.Currency, "rate", rate)
			}
			rates[rec.Currency] = rate
		}

		rec.PricePerUnitEUR = convert(rec.PricePerUnit, rate)
		rec.PricePerCaseEUR = convert(rec.PricePerCase, rate)
		if failed[rec.Currency] {
			rec.NeedsManualReview = true
			rec.AddFlag(constants.FlagFXRateUnavailable)
		}
	}
}

// convert yields round(price*rate, 2), or nil when the source price is
// unknown or the sentinel zero.
func convert(price *float64, rate float64) *float64 {
	if price == nil || *price == 0 {
		return nil
	}
	v := math.Round(*price*rate*100) / 100
	return &v
}

func copyPrice(price *float64) *float64 {
	if price == nil {
		return nil
	}
	v := *price
	return &v
}
