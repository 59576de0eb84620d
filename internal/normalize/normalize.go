package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/liqtrade/offer-extractor/internal/entity"
)

// Clean is the schema safety net. The interpretation service is instructed to
// apply every unit/currency/percentage rule itself; this pass only guarantees
// that whatever comes back can never violate the blank/zero/whitelist
// invariants of the output schema. It is total: any candidate map, however
// malformed, yields a structurally valid record.
func Clean(candidate map[string]any) entity.ProductRecord {
	rec := entity.ProductRecord{
		UID:               cleanString(candidate["uid"]),
		ProductKey:        cleanString(candidate["product_key"]),
		ProcessingVersion: cleanString(candidate["processing_version"]),
		Brand:             cleanString(candidate["brand"]),
		ProductName:       cleanString(candidate["product_name"]),
		ProductReference:  cleanString(candidate["product_reference"]),
		Category:          cleanString(candidate["category"]),
		SubCategory:       cleanString(candidate["sub_category"]),
		OriginCountry:     cleanString(candidate["origin_country"]),
		Vintage:           cleanString(candidate["vintage"]),
		AlcoholPercent:    cleanAlcoholPercent(candidate["alcohol_percent"]),
		Packaging:         cleanString(candidate["packaging"]),

		UnitVolumeML:   cleanNumber(candidate["unit_volume_ml"], true),
		UnitsPerCase:   cleanNumber(candidate["units_per_case"], true),
		CasesPerPallet: cleanNumber(candidate["cases_per_pallet"], true),
		QuantityCase:   cleanNumber(candidate["quantity_case"], true),

		BottleOrCanType: cleanString(candidate["bottle_or_can_type"]),

		PricePerUnit:    cleanNumber(candidate["price_per_unit"], false),
		PricePerCase:    cleanNumber(candidate["price_per_case"], false),
		Currency:        cleanCurrency(candidate["currency"]),
		PricePerUnitEUR: cleanNumber(candidate["price_per_unit_eur"], false),
		PricePerCaseEUR: cleanNumber(candidate["price_per_case_eur"], false),

		Incoterm:             cleanString(candidate["incoterm"]),
		Location:             cleanString(candidate["location"]),
		MinOrderQuantityCase: cleanNumber(candidate["min_order_quantity_case"], true),
		Port:                 cleanString(candidate["port"]),
		LeadTime:             cleanString(candidate["lead_time"]),

		SupplierName:      cleanString(candidate["supplier_name"]),
		SupplierReference: cleanString(candidate["supplier_reference"]),
		SupplierCountry:   cleanString(candidate["supplier_country"]),

		OfferDate:    cleanString(candidate["offer_date"]),
		ValidUntil:   cleanString(candidate["valid_until"]),
		DateReceived: cleanString(candidate["date_received"]),

		SourceChannel:   cleanString(candidate["source_channel"]),
		SourceFilename:  cleanString(candidate["source_filename"]),
		SourceMessageID: cleanString(candidate["source_message_id"]),

		ConfidenceScore:   cleanConfidence(candidate["confidence_score"]),
		ErrorFlags:        cleanFlags(candidate["error_flags"]),
		NeedsManualReview: cleanBool(candidate["needs_manual_review"]),

		BestBeforeDate:   cleanString(candidate["best_before_date"]),
		LabelLanguage:    cleanString(candidate["label_language"]),
		EANCode:          cleanString(candidate["ean_code"]),
		GiftBox:          cleanString(candidate["gift_box"]),
		RefillableStatus: cleanRefillable(candidate["refillable_status"]),
		CustomStatus:     cleanString(candidate["custom_status"]),
		MOQCases:         cleanNumber(candidate["moq_cases"], true),
	}

	if rec.ProductKey == "" && rec.ProductName != "" {
		rec.ProductKey = DeriveProductKey(rec.ProductName)
	}
	return rec
}

// DeriveProductKey builds an UPPERCASE_WITH_UNDERSCORES key from a product
// name. Spaces, slashes and ampersands become underscores; dots and
// apostrophes are dropped.
func DeriveProductKey(name string) string {
	return strings.ToUpper(keyReplacer.Replace(name))
}

var keyReplacer = strings.NewReplacer(
	" ", "_",
	"/", "_",
	"&", "_",
	".", "",
	"'", "",
)

// isSentinel reports whether a raw value means "unknown". Matching is
// case-insensitive on the trimmed string form.
func isSentinel(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "not found", "n/a", "na", "null", "none":
		return true
	}
	return false
}

func cleanString(raw any) string {
	if isSentinel(raw) {
		return ""
	}
	switch t := raw.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// cleanNumber coerces a raw value into *float64, nil meaning unknown.
// The literal zero (numeric 0 or the string "0") is a sentinel for every
// numeric field; neverZero fields additionally collapse a parsed 0.0,
// since zero cases, zero millilitres or a zero MOQ are not meaningful.
func cleanNumber(raw any, neverZero bool) *float64 {
	if isSentinel(raw) {
		return nil
	}
	switch t := raw.(type) {
	case float64:
		if t == 0 {
			return nil
		}
		f := t
		return &f
	case int:
		if t == 0 {
			return nil
		}
		f := float64(t)
		return &f
	case string:
		s := strings.TrimSpace(t)
		if s == "0" {
			return nil
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return nil
		}
		if neverZero && f == 0 {
			return nil
		}
		return &f
	default:
		return nil
	}
}

// cleanAlcoholPercent enforces the decimal-fraction law:
// values already carrying a "%" sign pass verbatim; 0 means "no alcohol"
// and yields blank (never "0%"); values in (0,1) are fractions and are
// multiplied by 100; values >= 1 are already percentages. Integral
// percentages render without a decimal point.
func cleanAlcoholPercent(raw any) string {
	if isSentinel(raw) {
		return ""
	}
	switch t := raw.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "0" || s == "0%" {
			return ""
		}
		if strings.HasSuffix(s, "%") {
			return s
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
		if err != nil {
			return ""
		}
		return formatAlcohol(f)
	case float64:
		return formatAlcohol(t)
	case int:
		return formatAlcohol(float64(t))
	default:
		return ""
	}
}

func formatAlcohol(f float64) string {
	if f == 0 {
		return ""
	}
	if f > 0 && f < 1.0 {
		f = math.Round(f*100*100) / 100
	}
	if f == math.Trunc(f) {
		return strconv.FormatFloat(f, 'f', 0, 64) + "%"
	}
	return strconv.FormatFloat(f, 'f', -1, 64) + "%"
}

// cleanRefillable applies the strict whitelist. Packaging words like CAN or
// BOTTLE that leak into this column normalize to blank; absence never
// defaults to NRF.
func cleanRefillable(raw any) string {
	if isSentinel(raw) {
		return ""
	}
	switch strings.ToUpper(strings.TrimSpace(cleanString(raw))) {
	case "REF", "RF", "REFILLABLE":
		return "REF"
	case "NRF", "NON-REFILLABLE", "NON REFILLABLE":
		return "NRF"
	}
	return ""
}

func cleanCurrency(raw any) string {
	if isSentinel(raw) {
		return ""
	}
	v := strings.ToUpper(strings.TrimSpace(cleanString(raw)))
	switch v {
	case "EURO", "EUROS", "€":
		return "EUR"
	}
	return v
}

func cleanFlags(raw any) []string {
	flags := []string{}
	list, ok := raw.([]any)
	if !ok {
		if typed, ok := raw.([]string); ok {
			return append(flags, typed...)
		}
		return flags
	}
	for _, v := range list {
		if s, ok := v.(string); ok && s != "" {
			flags = append(flags, s)
		}
	}
	return flags
}

func cleanBool(raw any) bool {
	if isSentinel(raw) {
		return false
	}
	switch t := raw.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	return false
}

// cleanConfidence coerces to a float and clamps it into [0, 1]; scores
// outside the scale carry no meaning the schema defines.
func cleanConfidence(raw any) float64 {
	var f float64
	switch t := raw.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
