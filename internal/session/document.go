package session

// Document is the per-transaction session blob stored as a JSON string in the
// key-value store. Only form_data and formSubmissions are interpreted here;
// every other top-level field written by upstream services round-trips
// opaquely.
type Document map[string]any

const (
	fieldFormData    = "form_data"
	fieldSubmissions = "formSubmissions"
	fieldDomain      = "domain"
	fieldVersion     = "version"
)

// Receipt records that a form was submitted for a transaction.
type Receipt struct {
	Submitted    bool   `json:"submitted"`
	SubmissionID string `json:"submission_id"`
	Timestamp    string `json:"timestamp"`
	FormURL      string `json:"formUrl"`
}

// FormData returns the accumulated per-form submissions, or nil if none exist.
func (d Document) FormData() map[string]any {
	m, _ := d[fieldFormData].(map[string]any)
	return m
}

// Submissions returns the receipt map, or nil if none exist.
func (d Document) Submissions() map[string]any {
	m, _ := d[fieldSubmissions].(map[string]any)
	return m
}

// Domain returns the upstream-populated domain, or "".
func (d Document) Domain() string {
	s, _ := d[fieldDomain].(string)
	return s
}

// Version returns the upstream-populated version, or "".
func (d Document) Version() string {
	s, _ := d[fieldVersion].(string)
	return s
}

// CompositeKey disambiguates receipts when multiple forms share a transaction.
// Receipts recorded without a form URL keep the bare transaction id so the two
// shapes never collide.
func CompositeKey(transactionID, formURL string) string {
	if formURL == "" {
		return transactionID
	}
	return transactionID + "_" + formURL
}
