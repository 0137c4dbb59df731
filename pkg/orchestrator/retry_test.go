package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pressgate/pkg/faults"
)

func TestPhaseRetry_TransientUntilExhausted(t *testing.T) {
	r := newPhaseRetry(DefaultRetryPolicy())

	assert.Equal(t, DecisionRetry, r.Next(faults.Transient))
	assert.Equal(t, 10*time.Second, r.Delay())

	assert.Equal(t, DecisionRetry, r.Next(faults.Transient))
	assert.Equal(t, 30*time.Second, r.Delay())

	// Third failed try burns the budget.
	assert.Equal(t, DecisionFallback, r.Next(faults.Transient))
	assert.Equal(t, 3, r.Attempts())
}

func TestPhaseRetry_PermanentProviderFallsBackImmediately(t *testing.T) {
	r := newPhaseRetry(DefaultRetryPolicy())
	assert.Equal(t, DecisionFallback, r.Next(faults.PermanentProvider))
}

func TestPhaseRetry_PermanentTaskFailsImmediately(t *testing.T) {
	r := newPhaseRetry(DefaultRetryPolicy())
	assert.Equal(t, DecisionFailTask, r.Next(faults.PermanentTask))
}

func TestPhaseRetry_DelayClampsToSchedule(t *testing.T) {
	r := newPhaseRetry(RetryPolicy{
		MaxAttempts: 5,
		Backoff:     []time.Duration{time.Second, 2 * time.Second},
	})

	r.Next(faults.Transient)
	assert.Equal(t, time.Second, r.Delay())
	r.Next(faults.Transient)
	assert.Equal(t, 2*time.Second, r.Delay())
	r.Next(faults.Transient)
	// Past the end of the schedule the last entry repeats.
	assert.Equal(t, 2*time.Second, r.Delay())
}

func TestRetryPolicy_Normalized(t *testing.T) {
	p := RetryPolicy{}.normalized()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second}, p.Backoff)

	custom := RetryPolicy{MaxAttempts: 2, Backoff: []time.Duration{time.Millisecond}}.normalized()
	assert.Equal(t, 2, custom.MaxAttempts)
	assert.Equal(t, []time.Duration{time.Millisecond}, custom.Backoff)
}

func TestDecision_String(t *testing.T) {
	assert.Equal(t, "retry", DecisionRetry.String())
	assert.Equal(t, "fallback", DecisionFallback.String())
	assert.Equal(t, "fail-task", DecisionFailTask.String())
}
