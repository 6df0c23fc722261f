// Package batch describes per-record outcomes of a bulk ingestion run.
package batch

// ItemStatus is the processing outcome of a single record.
type ItemStatus string

// Record status values.
const (
	StatusOK      ItemStatus = "ok"
	StatusSkipped ItemStatus = "skipped"
	StatusError   ItemStatus = "error"
)

// Result is the outcome of processing one input record.
type Result struct {
	id     string
	line   int
	status ItemStatus
	err    error
}

// NewOK creates a result for a stored record.
func NewOK(id string, line int) Result { return Result{id: id, line: line, status: StatusOK} }

// NewSkipped creates a result for a record rejected before embedding.
func NewSkipped(id string, line int, err error) Result {
	return Result{id: id, line: line, status: StatusSkipped, err: err}
}

// NewError creates a result for a record that failed to embed or store.
func NewError(id string, line int, err error) Result {
	return Result{id: id, line: line, status: StatusError, err: err}
}

// ID returns the chunk identifier (may be empty for unparseable lines).
func (r Result) ID() string { return r.id }

// Line returns the 1-based input line number.
func (r Result) Line() int { return r.line }

// Status returns the processing outcome.
func (r Result) Status() ItemStatus { return r.status }

// Err returns the error, if any.
func (r Result) Err() error { return r.err }

// Summary aggregates results of an ingestion run.
type Summary struct {
	Stored  int
	Skipped int
	Failed  int
	// Tokens is the embedding token usage reported by the model server.
	Tokens int
}

// Add counts r into the summary.
func (s *Summary) Add(r Result) {
	switch r.status {
	case StatusOK:
		s.Stored++
	case StatusSkipped:
		s.Skipped++
	case StatusError:
		s.Failed++
	}
}

// Total returns the number of records seen.
func (s Summary) Total() int { return s.Stored + s.Skipped + s.Failed }
