package model

// Claim fields understood by the fact verifier. Row fields use the form
// rows.<index>.<column>.
const (
	ClaimFieldValue       = "value"
	ClaimFieldGroup       = "group"
	ClaimFieldMatchedRows = "matched_rows"
	ClaimFieldTotalCount  = "total_count"
	ClaimFieldTotalPages  = "total_pages"
	ClaimFieldRowCount    = "rows"
	ClaimFieldCustomers   = "customers"
	ClaimFieldOrders      = "orders"
)

// Claim is a factual statement made by the response generator together with
// the structured query that is supposed to support it.
type Claim struct {
	Statement string `json:"statement" yaml:"statement"`
	Query     Query  `json:"query" yaml:"query"`
	Field     string `json:"field,omitempty" yaml:"field,omitempty"`
	Group     string `json:"group,omitempty" yaml:"group,omitempty"`
	Value     any    `json:"value" yaml:"value"`
}

// Verdict is the verifier's answer for one claim. Fuzzy is set when the
// supporting rows came from the fuzzy fallback, so the wording should hedge.
type Verdict struct {
	Statement  string `json:"statement"`
	Verified   bool   `json:"verified"`
	Expected   any    `json:"expected"`
	Observed   any    `json:"observed"`
	Generation uint64 `json:"generation"`
	Fuzzy      bool   `json:"fuzzy"`
	Error      string `json:"error,omitempty"`
}

// VerifyRequest is the response-boundary payload
type VerifyRequest struct {
	Claims []Claim `json:"claims" validate:"required,min=1,max=200"`
}
