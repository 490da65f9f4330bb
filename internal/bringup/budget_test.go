package bringup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryBudget_RetriesThenTerminal(t *testing.T) {
	for _, n := range []int{1, 3, 5, 10} {
		b := NewRetryBudget(n)
		for i := 1; i <= n; i++ {
			assert.Equal(t, Retry, b.RecordFailure(), "failure %d of max %d", i, n)
			assert.Equal(t, i, b.Attempts())
		}
		assert.Equal(t, TerminalFailure, b.RecordFailure(), "failure %d of max %d", n+1, n)
		assert.LessOrEqual(t, b.Attempts(), b.Max())
	}
}

func TestRetryBudget_ZeroFailsImmediately(t *testing.T) {
	b := NewRetryBudget(0)
	assert.Equal(t, TerminalFailure, b.RecordFailure())
	assert.Zero(t, b.Attempts())
}

func TestRetryBudget_NegativeIsZero(t *testing.T) {
	b := NewRetryBudget(-4)
	assert.Zero(t, b.Max())
	assert.Equal(t, TerminalFailure, b.RecordFailure())
}

func TestRetryBudget_SuccessResets(t *testing.T) {
	b := NewRetryBudget(2)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	assert.Zero(t, b.Attempts())

	// The full budget is available again.
	assert.Equal(t, Retry, b.RecordFailure())
	assert.Equal(t, Retry, b.RecordFailure())
	assert.Equal(t, TerminalFailure, b.RecordFailure())
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "retry", Retry.String())
	assert.Equal(t, "terminal_failure", TerminalFailure.String())
}

func TestBackoff_Delay(t *testing.T) {
	b := Backoff{Initial: time.Second, Max: 10 * time.Second}
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{50, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.Delay(tt.attempt), "attempt %d", tt.attempt)
	}

	assert.Zero(t, Backoff{}.Delay(3), "zero backoff retries immediately")
	assert.Equal(t, 2*time.Second, Backoff{Initial: 2 * time.Second}.Delay(4), "max below initial clamps to initial")
}
