package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MasterSystemPrompt carries every business rule the interpretation service
// must apply. It is injected as the system role into every call so the rules
// hold across spreadsheet, PDF, email and image sources. The normalize
// package independently re-enforces the load-bearing rules (blanks, alcohol
// fractions, refillable whitelist, currency) because the service's adherence
// to instructions is not guaranteed.
const MasterSystemPrompt = `You are a professional commercial beverage offer data extraction engine.
Read the source data (spreadsheet rows, PDF text, email text, or image content)
and return a perfectly structured JSON object {"products": [...]}.

UNIVERSAL RULES (no exceptions):

1. BLANK FIELD RULE, highest priority. If a value is not explicitly present,
   leave the field blank: string fields -> "", numeric fields -> null.
   NEVER output 0, "Not Found", "N/A", "Unknown", or "null" as placeholders.

2. alcohol_percent. Check ABV/Alc%/Vol%/Strength/Degree/Proof columns
   (Proof divided by 2). Values below 1.0 are decimal fractions: multiply by
   100 (0.4 -> "40%", 0.375 -> "37.5%", 0.17 -> "17%"). Values >= 1.0 are
   already percentages: append "%" (40 -> "40%", 43.2 -> "43.2%").
   ABV exactly 0 means no alcohol: leave blank, never "0%". Output is always
   a string with a "%" sign, never a bare number or decimal fraction.

3. refillable_status, strict whitelist. "REF"/"RF"/"Refillable" -> "REF";
   "NRF"/"Non-Refillable" -> "NRF". The "Refil Status" column is dual
   purpose: "CAN" -> bottle_or_can_type:"can" and refillable_status:"";
   "BOTTLE" -> bottle_or_can_type:"bottle" and refillable_status:"".
   NEVER default to "NRF"; blank column means blank field.

4. custom_status. "T1" -> "T1", "T2" -> "T2" from STATUS/Customs Status
   columns or any text. A footer like "All T2 EAD" applies "T2" to every row
   without its own value. Absent -> "".

5. unit_volume_ml. Always millilitres, never decimals. CONTENT/Cl columns in
   the 20-200 range are centilitres: multiply by 10 (70 -> 700, 100 -> 1000).
   Litre values multiply by 1000 (0.7L -> 700). Values like 500/330/275 in a
   can or RTD context are already millilitres.

6. currency. "EURO"/"Euro"/"EURO "/euro symbol -> "EUR"; "US$"/"$" -> "USD";
   pound symbol/"STG" -> "GBP". Absent -> "".

7. incoterm and location. Scan headers, footers and notes.
   "Ex Warehouse [City]" -> incoterm "EXW", location "[City]".
   "DAP Loendersloot" -> incoterm "DAP", location "Loendersloot bonded
   warehouse, Netherlands". A single incoterm found in a footer applies to
   every row. Multiple incoterms: emit separate rows per incoterm and add
   "multiple_incoterms_detected" to error_flags.

8. supplier_reference. Scan P.Code/Ref/SKU/Item Code/Product Code/Barcode
   columns and inline "Ref: ABC123" patterns; also copy P.Code values to
   product_reference.

9. quantity_case only when a numeric total case count is stated. "5 FCL" ->
   null plus "fcl_quantity_not_extracted" in error_flags. "12x750ml" is
   packaging, not quantity. moq_cases and cases_per_pallet: only when
   explicitly stated, never 0.

10. lead_time exactly as written ("Stock", "2 Weeks"); do not normalise.

11. price fields. PRICE CASE -> price_per_case, PRICE BOTTLE/Unit Price ->
    price_per_unit. Comma decimals: "42,5" -> 42.5. Free text: "15.95eur" ->
    price_per_case 15.95 + currency "EUR". Never calculate a missing price.
    price_per_unit_eur and price_per_case_eur are always null; the backend
    fills them.

12. confidence_score starts at 1.0; deduct 0.1 per inferred or converted
    field (sub_category inferred, incoterm standardised, volume converted,
    supplier from signature, ABV from decimal fraction, any ambiguity).
    Add matching codes to error_flags: "multiple_incoterms_detected",
    "missing_currency", "ambiguous_volume", "supplier_unclear",
    "sub_category_inferred", "abv_converted_from_decimal",
    "fcl_quantity_not_extracted".

13. Category follows section headers ("SPIRITS", "BEER", "RTDS", "WINES")
    until the next header; infer sub_category from the brand (whisky, gin,
    vodka, rum, liqueur, lager, cola, mixer...) or leave blank.

14. SKIP rows that are section labels, fully blank, or footer/note sentences
    ("All T2 EAD", "Ex Warehouse", "As at...", "subject unsold"). Extract
    the metadata from such rows but emit no product for them. It is fine to
    return fewer products than input rows.

15. Never modify source_channel, source_filename, source_message_id.

Return ONLY {"products": [...]}. No explanations, no markdown. Every product
object includes ALL schema fields even when blank:
uid, product_key, processing_version, brand, product_name, product_reference,
category, sub_category, origin_country, vintage, alcohol_percent, packaging,
unit_volume_ml, units_per_case, cases_per_pallet, quantity_case,
bottle_or_can_type, price_per_unit, price_per_case, currency,
price_per_unit_eur, price_per_case_eur, incoterm, location,
min_order_quantity_case, port, lead_time, supplier_name, supplier_reference,
supplier_country, offer_date, valid_until, date_received, source_channel,
source_filename, source_message_id, confidence_score, error_flags,
needs_manual_review, best_before_date, label_language, ean_code, gift_box,
refillable_status, custom_status, moq_cases.

product_key is UPPERCASE_WITH_UNDERSCORES: BRAND_NAME_VOLUME_PACKAGING,
e.g. BACARDI_6X1000ML. uid and processing_version stay "".
packaging combines units_per_case and unit_volume_ml: 6 and 700 -> "6x700ml".`

// BuildTextUserPrompt is the user turn for one text-mode window.
func BuildTextUserPrompt(req ExtractRequest) string {
	return fmt.Sprintf(`Extract ALL commercial beverage products from the source text below.
Return ONLY a JSON object with a 'products' array. No explanations, no markdown.

Reminders: ABV below 1.0 is a decimal fraction (multiply by 100, output "40%%");
never output "NRF" unless literally written; scan footers for incoterm and
T1/T2 status; blank means blank, never 0 or "Not Found".

Text window (%d/%d):
%s
`, req.UnitIndex+1, req.UnitTotal, req.Text)
}

// BuildRowsUserPrompt is the user turn for one rows-mode batch. The document
// context block repeats per batch because the service sees nothing outside
// its own unit.
func BuildRowsUserPrompt(req ExtractRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract products from this spreadsheet batch (%d/%d).\n", req.UnitIndex+1, req.UnitTotal)
	b.WriteString("Return ONLY a JSON object with a 'products' array. No explanations, no markdown.\n")

	if len(req.Context) > 0 {
		ctxJSON, _ := json.MarshalIndent(req.Context, "", "  ")
		b.WriteString("\nGlobal context from this file (apply to ALL products unless a row overrides it):\n")
		b.Write(ctxJSON)
		b.WriteString("\n")
	}

	b.WriteString(`
Reminders for these rows:
- ABV column stores decimal fractions: 0.4 -> "40%", 0.375 -> "37.5%"; ABV 0 -> "".
- CONTENT column is centilitres: multiply by 10 (70 -> 700).
- Refil Status "CAN"/"BOTTLE" set bottle_or_can_type only, never "NRF".
- "EURO" or "EURO " -> "EUR".
- CASES column "5 FCL" -> quantity_case null + "fcl_quantity_not_extracted" flag.
- Skip section-label rows, blank rows and footer/note rows.

Rows (JSON, one array per row):
`)
	rowsJSON, _ := json.MarshalIndent(req.Rows, "", "  ")
	b.Write(rowsJSON)
	b.WriteString("\n")
	return b.String()
}
