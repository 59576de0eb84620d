package entity

// ProductRecord is the canonical, schema-valid output unit of the extraction
// pipeline. Every field is present in every record; "unknown" is the
// type-appropriate blank ("" for strings, null for numerics, [] for flags),
// never a placeholder word and never a numeric zero standing in for unknown.
//
// Records are immutable once aggregated, except PricePerUnitEUR and
// PricePerCaseEUR which the currency pass fills in after aggregation.
type ProductRecord struct {
	UID               string `json:"uid"`
	ProductKey        string `json:"product_key"`
	ProcessingVersion string `json:"processing_version"`
	Brand             string `json:"brand"`
	ProductName       string `json:"product_name"`
	ProductReference  string `json:"product_reference"`
	Category          string `json:"category"`
	SubCategory       string `json:"sub_category"`
	OriginCountry     string `json:"origin_country"`
	Vintage           string `json:"vintage"`
	AlcoholPercent    string `json:"alcohol_percent"`
	Packaging         string `json:"packaging"`

	UnitVolumeML   *float64 `json:"unit_volume_ml"`
	UnitsPerCase   *float64 `json:"units_per_case"`
	CasesPerPallet *float64 `json:"cases_per_pallet"`
	QuantityCase   *float64 `json:"quantity_case"`

	BottleOrCanType string `json:"bottle_or_can_type"`

	PricePerUnit    *float64 `json:"price_per_unit"`
	PricePerCase    *float64 `json:"price_per_case"`
	Currency        string   `json:"currency"`
	PricePerUnitEUR *float64 `json:"price_per_unit_eur"`
	PricePerCaseEUR *float64 `json:"price_per_case_eur"`

	Incoterm             string   `json:"incoterm"`
	Location             string   `json:"location"`
	MinOrderQuantityCase *float64 `json:"min_order_quantity_case"`
	Port                 string   `json:"port"`
	LeadTime             string   `json:"lead_time"`

	SupplierName      string `json:"supplier_name"`
	SupplierReference string `json:"supplier_reference"`
	SupplierCountry   string `json:"supplier_country"`

	OfferDate    string `json:"offer_date"`
	ValidUntil   string `json:"valid_until"`
	DateReceived string `json:"date_received"`

	SourceChannel   string `json:"source_channel"`
	SourceFilename  string `json:"source_filename"`
	SourceMessageID string `json:"source_message_id"`

	ConfidenceScore   float64  `json:"confidence_score"`
	ErrorFlags        []string `json:"error_flags"`
	NeedsManualReview bool     `json:"needs_manual_review"`

	BestBeforeDate   string   `json:"best_before_date"`
	LabelLanguage    string   `json:"label_language"`
	EANCode          string   `json:"ean_code"`
	GiftBox          string   `json:"gift_box"`
	RefillableStatus string   `json:"refillable_status"`
	CustomStatus     string   `json:"custom_status"`
	MOQCases         *float64 `json:"moq_cases"`
}

// IsEmpty reports whether the record carries no identifiable product at all.
// Such rows (section labels, footers, blank lines the interpretation service
// failed to skip) are dropped from the aggregate.
func (r ProductRecord) IsEmpty() bool {
	return r.ProductName == "" && r.ProductKey == ""
}

// AddFlag appends a flag code if not already present.
func (r *ProductRecord) AddFlag(flag string) {
	for _, f := range r.ErrorFlags {
		if f == flag {
			return
		}
	}
	r.ErrorFlags = append(r.ErrorFlags, flag)
}

// UnitError records a single unit of work that yielded no usable data.
// Unit errors never fail the job; they travel alongside the aggregate.
type UnitError struct {
	UnitIndex int    `json:"unit_index"`
	Cause     string `json:"cause"`
}

// JobResult is the terminal payload of a successful job.
type JobResult struct {
	Products   []ProductRecord `json:"products"`
	UnitErrors []UnitError     `json:"unit_errors,omitempty"`
}
