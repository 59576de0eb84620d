package plan

import (
	"regexp"
	"strings"
)

const (
	// DefaultWindowSize bounds one text-mode unit of work. Windows above
	// this size push the interpretation service past its output budget and
	// raise the truncation rate.
	DefaultWindowSize = 25000

	// DefaultRowsPerUnit bounds one rows-mode unit of work.
	DefaultRowsPerUnit = 6
)

// DocumentContext is metadata inferred once per document and applied to
// every unit of work unless a unit's own content overrides it. Read-only
// after the scan.
type DocumentContext struct {
	Incoterm            string
	Location            string
	CustomStatusDefault string
	OfferDate           string
}

// Map renders the context for prompt embedding; blank fields are omitted.
func (c DocumentContext) Map() map[string]string {
	m := make(map[string]string, 4)
	if c.Incoterm != "" {
		m["incoterm"] = c.Incoterm
	}
	if c.Location != "" {
		m["location"] = c.Location
	}
	if c.CustomStatusDefault != "" {
		m["custom_status_default"] = c.CustomStatusDefault
	}
	if c.OfferDate != "" {
		m["offer_date"] = c.OfferDate
	}
	return m
}

// Unit is one bounded slice of a document: either a text window or a batch
// of tabular rows, with its position among the document's units.
type Unit struct {
	Index int
	Total int
	Text  string
	Rows  [][]string
}

// ChunkText splits raw text into fixed-size character windows covering the
// whole document with no gaps and no overlaps. Windows are measured in
// code points so a cut never lands inside a multi-byte rune. A document
// shorter than one window yields a single unit.
func ChunkText(text string, windowSize int) []Unit {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	runes := []rune(text)
	var units []Unit
	for start := 0; start < len(runes); start += windowSize {
		end := start + windowSize
		if end > len(runes) {
			end = len(runes)
		}
		units = append(units, Unit{Text: string(runes[start:end])})
	}
	if len(units) == 0 {
		units = []Unit{{Text: text}}
	}
	number(units)
	return units
}

// BatchRows splits tabular rows into fixed-size groups in document order.
// Groups whose every cell is blank are dropped: nothing in them can become
// a product and the context scan has already seen the whole document.
func BatchRows(rows [][]string, rowsPerUnit int) []Unit {
	if rowsPerUnit <= 0 {
		rowsPerUnit = DefaultRowsPerUnit
	}
	var units []Unit
	for start := 0; start < len(rows); start += rowsPerUnit {
		end := start + rowsPerUnit
		if end > len(rows) {
			end = len(rows)
		}
		batch := rows[start:end]
		if allBlank(batch) {
			continue
		}
		units = append(units, Unit{Rows: batch})
	}
	number(units)
	return units
}

func number(units []Unit) {
	for i := range units {
		units[i].Index = i
		units[i].Total = len(units)
	}
}

func allBlank(rows [][]string) bool {
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				return false
			}
		}
	}
	return true
}

var (
	reExWarehouse        = regexp.MustCompile(`(?i)ex\s+warehouse\s+([\w\s,]+?)(?:\.|,\s*Ireland|\s*$)`)
	reExWarehouseIreland = regexp.MustCompile(`(?i)ex\s+warehouse\s+([\w\s,]+?Ireland)`)
	reIncoterm           = regexp.MustCompile(`(?i)\b(EXW|FOB|CIF|DAP|DDP|FCA|CPT|CFR)\s+([\w\s,]+?)(?:\.|,|$)`)
	reAllT2              = regexp.MustCompile(`(?i)\bAll\s+T2\b`)
	reAllT1              = regexp.MustCompile(`(?i)\bAll\s+T1\b`)
	reOfferDate          = regexp.MustCompile(`(?i)Offer\s+(\d{1,2}[./]\d{1,2}[./]\d{4})`)
)

// ScanRows flattens a tabular document's cells and scans the whole of it,
// independent of batching, for footer/header metadata.
func ScanRows(rows [][]string) DocumentContext {
	var cells []string
	for _, row := range rows {
		for _, cell := range row {
			s := strings.TrimSpace(cell)
			if s == "" {
				continue
			}
			if l := strings.ToLower(s); l == "nan" || l == "none" {
				continue
			}
			cells = append(cells, s)
		}
	}
	return ScanText(strings.Join(cells, " "))
}

// ScanText extracts the Document Context from free text: an incoterm plus
// location phrase ("Ex Warehouse <place>" takes priority over the generic
// incoterm pattern), a global customs-status declaration ("All T1"/"All T2"),
// and an offer-date phrase.
func ScanText(text string) DocumentContext {
	var ctx DocumentContext

	if m := reExWarehouse.FindStringSubmatch(text); m != nil {
		loc := strings.TrimRight(strings.TrimSpace(m[1]), ",.")
		if im := reExWarehouseIreland.FindStringSubmatch(text); im != nil {
			loc = strings.TrimRight(strings.TrimSpace(im[1]), ",.")
		}
		ctx.Incoterm = "EXW"
		ctx.Location = loc
	} else if m := reIncoterm.FindStringSubmatch(text); m != nil {
		ctx.Incoterm = strings.ToUpper(m[1])
		ctx.Location = strings.TrimRight(strings.TrimSpace(m[2]), ",.")
	}

	switch {
	case reAllT2.MatchString(text):
		ctx.CustomStatusDefault = "T2"
	case reAllT1.MatchString(text):
		ctx.CustomStatusDefault = "T1"
	}

	if m := reOfferDate.FindStringSubmatch(text); m != nil {
		ctx.OfferDate = m[1]
	}
	return ctx
}
