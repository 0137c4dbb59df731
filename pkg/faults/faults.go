package faults

import (
	"errors"
	"fmt"
)

// Class partitions failures by how the orchestrator should react.
type Class int

const (
	// Transient failures are retried against the same provider.
	Transient Class = iota
	// PermanentProvider failures bypass retry and trigger fallback to
	// the next provider in the chain.
	PermanentProvider
	// PermanentTask failures mean no provider can succeed; the task
	// fails immediately regardless of the remaining chain.
	PermanentTask
)

func (c Class) String() string {
	switch c {
	case Transient:
		return "transient"
	case PermanentProvider:
		return "permanent-provider"
	case PermanentTask:
		return "permanent-task"
	default:
		return "unknown"
	}
}

// Sentinel causes. Providers wrap these so the classifier does not have
// to guess from message text.
var (
	ErrInvalidCredentials      = errors.New("credentials rejected by target")
	ErrAlreadyPublished        = errors.New("content already published on target")
	ErrMissingCapability       = errors.New("required plugin or capability missing on target")
	ErrUnsupportedInstruction  = errors.New("instruction execution unsupported by provider")
	ErrStepBudgetExhausted     = errors.New("agent step budget exhausted")
	ErrVisualDrift             = errors.New("rendered page drifted from visual baseline")
	ErrTargetUnreachable       = errors.New("target unreachable at network level")
	ErrInvalidPayload          = errors.New("content payload invalid")
	ErrElementNotFound         = errors.New("element not found or not yet rendered")
	ErrRateLimited             = errors.New("rate limited by target")
	ErrSessionGateUnavailable  = errors.New("browser session limit reached")
	ErrSessionTransferRejected = errors.New("session state not transferable")
)

// Fault carries an explicit classification alongside the underlying
// cause. Phase execution converts every raw error into a Fault before
// it crosses the phase boundary.
type Fault struct {
	Op    string
	Cause error
	class Class
}

func (f *Fault) Error() string {
	if f.Op == "" {
		return fmt.Sprintf("%s: %v", f.class, f.Cause)
	}
	return fmt.Sprintf("%s: %s: %v", f.class, f.Op, f.Cause)
}

func (f *Fault) Unwrap() error { return f.Cause }

// Class returns the explicit classification.
func (f *Fault) Class() Class { return f.class }

// NewTransient wraps err as a retryable failure.
func NewTransient(op string, err error) *Fault {
	return &Fault{Op: op, Cause: err, class: Transient}
}

// NewPermanentProvider wraps err as a failure of this provider that
// another provider may still recover from.
func NewPermanentProvider(op string, err error) *Fault {
	return &Fault{Op: op, Cause: err, class: PermanentProvider}
}

// NewPermanentTask wraps err as an unrecoverable failure of the task
// itself.
func NewPermanentTask(op string, err error) *Fault {
	return &Fault{Op: op, Cause: err, class: PermanentTask}
}
