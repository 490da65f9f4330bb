package bringup

// Decision is the result of recording a failure against a RetryBudget.
type Decision int

const (
	// Retry means the stage should reissue its connect command.
	Retry Decision = iota
	// TerminalFailure means the budget is spent.
	TerminalFailure
)

// String returns the decision name.
func (d Decision) String() string {
	if d == TerminalFailure {
		return "terminal_failure"
	}
	return "retry"
}

// RetryBudget counts consecutive failures of one bring-up stage.
//
// Max is the number of retries allowed: with Max = N the first N failures
// return Retry (Attempts 1..N) and failure N+1 is terminal. Max = 0 fails on
// the first failure. Attempts never exceeds Max.
//
// A RetryBudget is owned by the orchestrator's event loop and is not safe
// for concurrent use.
type RetryBudget struct {
	attempts int
	max      int
}

// NewRetryBudget returns an empty budget allowing maxRetries retries.
// Negative values are treated as zero.
func NewRetryBudget(maxRetries int) *RetryBudget {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &RetryBudget{max: maxRetries}
}

// RecordFailure consumes one retry if any are left.
func (b *RetryBudget) RecordFailure() Decision {
	if b.attempts >= b.max {
		return TerminalFailure
	}
	b.attempts++
	return Retry
}

// RecordSuccess resets the budget.
func (b *RetryBudget) RecordSuccess() {
	b.attempts = 0
}

// Attempts returns the retries consumed since the last success.
func (b *RetryBudget) Attempts() int { return b.attempts }

// Max returns the configured retry limit.
func (b *RetryBudget) Max() int { return b.max }
