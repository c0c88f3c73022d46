package harness

import "github.com/roach88/strata/internal/hydrate"

// Error kinds reported by StepResult.Error and matched by ExpectClause.Error.
const (
	ErrorNotFound    = "not_found"
	ErrorUnknownType = "unknown_type"
	ErrorIntegrity   = "integrity"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Step    int              `json:"step"`
	Get     string           `json:"get"`
	ID      string           `json:"id,omitempty"`
	Records []map[string]any `json:"records"`
	Error   string           `json:"error,omitempty"`

	// Stats are the entity cache counters of the step's request.
	Stats hydrate.CacheStats `json:"-"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expectation and assertion held.
	Pass bool `json:"pass"`

	// Steps holds one result per scenario step, in order.
	Steps []StepResult `json:"steps"`

	// Errors contains expectation and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Steps:  []StepResult{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
