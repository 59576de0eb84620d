package llm

import "context"

// ExtractRequest is one unit of work sent to the interpretation service.
// Exactly one of Text or Rows is set. UnitIndex/UnitTotal are embedded in the
// prompt so the service can report its position in diagnostics.
type ExtractRequest struct {
	// Text is a text-mode character window.
	Text string
	// Rows is a rows-mode batch of tabular cells.
	Rows [][]string

	UnitIndex int
	UnitTotal int

	// Context carries document-wide metadata (incoterm, location, default
	// customs status, offer date) that applies to every row unless the row
	// overrides it. Rows mode only.
	Context map[string]string
}

// Interpreter is the external interpretation service. The response is
// free-form text that usually (but not reliably) contains a JSON object
// with a "products" list; ParseProducts owns turning it into candidates.
type Interpreter interface {
	Interpret(ctx context.Context, req ExtractRequest) (string, error)
}
