package harness

import "time"

// State is the lifecycle position of a scenario.
type State string

const (
	StateNotRun   State = "not_run"
	StateInvoked  State = "invoked"
	StateAsserted State = "asserted"
	StatePass     State = "pass"
	StateFail     State = "fail"
)

// StepResult is what one step invoked and observed.
type StepResult struct {
	Args     []string `json:"args"`
	ExitCode int      `json:"exit_code"`
	Output   string   `json:"output"`
	Errors   []string `json:"errors,omitempty"`
}

// Result is the outcome of running one scenario.
type Result struct {
	Scenario string `json:"scenario"`

	// Pass is true once every step ran and every assertion held.
	Pass bool `json:"pass"`

	State State `json:"state"`

	// ExecutionFailed marks a tool failure (crash, unexpected non-zero
	// exit, binary missing) as opposed to an assertion mismatch.
	ExecutionFailed bool `json:"execution_failed,omitempty"`

	Steps []StepResult `json:"steps"`

	// Errors lists the assertion and execution failures, each prefixed
	// with its step index. Empty when Pass is true.
	Errors []string `json:"errors,omitempty"`

	Duration time.Duration `json:"-"`
}

// NewResult creates a result for a scenario that has not run yet.
func NewResult(scenario string) *Result {
	return &Result{
		Scenario: scenario,
		State:    StateNotRun,
		Steps:    []StepResult{},
		Errors:   []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
	r.State = StateFail
}

// finish settles the final state once no more steps will run.
func (r *Result) finish() {
	if len(r.Errors) == 0 && r.State != StateNotRun {
		r.Pass = true
		r.State = StatePass
		return
	}
	r.Pass = false
	r.State = StateFail
}
