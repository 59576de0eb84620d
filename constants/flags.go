package constants

// FlagFXRateUnavailable is the one error-flag code the backend appends on
// its own. All other codes carried on ProductRecord.ErrorFlags
// (multiple_incoterms_detected, missing_currency, ambiguous_volume,
// supplier_unclear, sub_category_inferred, abv_converted_from_decimal,
// fcl_quantity_not_extracted) are emitted by the interpretation service and
// pass through unchanged.
const FlagFXRateUnavailable = "fx_rate_unavailable"
