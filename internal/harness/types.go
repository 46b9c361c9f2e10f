package harness

import "github.com/roach88/xmlpersist/internal/ir"

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Document is the committed file content after the last step.
	Document string `json:"document"`

	// Notifications are the listener lines in the order events were applied.
	Notifications []string `json:"notifications"`

	// Journal holds the committed transactions in commit order.
	Journal []ir.Entry `json:"journal"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Notifications: []string{},
		Journal:       []ir.Entry{},
		Errors:        []string{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
