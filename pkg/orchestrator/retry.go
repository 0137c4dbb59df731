package orchestrator

import (
	"time"

	"pressgate/pkg/faults"
)

// RetryPolicy bounds transient-failure retries within one provider.
type RetryPolicy struct {
	// MaxAttempts caps tries per phase per provider, first try
	// included.
	MaxAttempts int
	// Backoff is the delay schedule between tries; the last entry
	// repeats if attempts outnumber entries.
	Backoff []time.Duration
}

// DefaultRetryPolicy is the 10s/30s/90s exponential schedule with
// three attempts per phase per provider.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     []time.Duration{10 * time.Second, 30 * time.Second, 90 * time.Second},
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if len(p.Backoff) == 0 {
		p.Backoff = DefaultRetryPolicy().Backoff
	}
	return p
}

// Decision is what the orchestrator does after a classified phase
// failure.
type Decision int

const (
	// DecisionRetry re-runs the phase on the same provider after
	// backoff.
	DecisionRetry Decision = iota
	// DecisionFallback escalates to the next provider in the chain.
	DecisionFallback
	// DecisionFailTask fails the task immediately, chain or not.
	DecisionFailTask
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionFallback:
		return "fallback"
	case DecisionFailTask:
		return "fail-task"
	default:
		return "unknown"
	}
}

// phaseRetry is the per-phase retry state machine: attempt count in,
// classifier verdict in, decision out. Holds no provider or clock
// state, so retry behavior is testable in isolation.
type phaseRetry struct {
	policy   RetryPolicy
	attempts int
}

func newPhaseRetry(policy RetryPolicy) *phaseRetry {
	return &phaseRetry{policy: policy.normalized()}
}

// Next consumes one failed attempt and decides what happens.
func (r *phaseRetry) Next(class faults.Class) Decision {
	r.attempts++
	switch class {
	case faults.PermanentTask:
		return DecisionFailTask
	case faults.PermanentProvider:
		return DecisionFallback
	default:
		if r.attempts >= r.policy.MaxAttempts {
			return DecisionFallback
		}
		return DecisionRetry
	}
}

// Delay returns the backoff before the next try.
func (r *phaseRetry) Delay() time.Duration {
	idx := r.attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.policy.Backoff) {
		idx = len(r.policy.Backoff) - 1
	}
	return r.policy.Backoff[idx]
}

// Attempts reports how many failed tries this phase has burned.
func (r *phaseRetry) Attempts() int {
	return r.attempts
}
