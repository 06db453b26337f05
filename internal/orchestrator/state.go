package orchestrator

import (
	"time"

	"readiness/internal/score"
)

// State is an orchestrator state
type State string

const (
	Idle      State = "idle"
	Computing State = "computing"
	Succeeded State = "succeeded"
	TimedOut  State = "timed_out"
	Failed    State = "failed"
	NoData    State = "no_data" // authorization revoked
)

// Outcome is the result of one Calculate call
type Outcome struct {
	Result    score.Result
	State     State // terminal state of this call
	Retryable bool
	FromCache bool
	Throttled bool // served by the daily throttle
	Err       error
	StartedAt time.Time
}

// OK reports whether the outcome carries a freshly computed or cached
// trustworthy score
func (o Outcome) OK() bool {
	return o.State == Succeeded && o.Result.Trustworthy()
}
