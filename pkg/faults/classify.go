package faults

import (
	"context"
	"errors"
	"net"
	"strings"
)

// sentinelClasses maps each known cause to its class. Checked before
// any message-pattern matching.
var sentinelClasses = []struct {
	err   error
	class Class
}{
	{ErrInvalidCredentials, PermanentProvider},
	{ErrAlreadyPublished, PermanentProvider},
	{ErrMissingCapability, PermanentProvider},
	{ErrUnsupportedInstruction, PermanentProvider},
	{ErrStepBudgetExhausted, PermanentProvider},
	{ErrVisualDrift, PermanentProvider},
	{ErrSessionTransferRejected, PermanentProvider},
	{ErrTargetUnreachable, PermanentTask},
	{ErrInvalidPayload, PermanentTask},
	{ErrElementNotFound, Transient},
	{ErrRateLimited, Transient},
	{ErrSessionGateUnavailable, Transient},
}

// transientPatterns match error text from drivers and targets that do
// not surface typed causes.
var transientPatterns = []string{
	"timeout",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"temporarily unavailable",
	"rate limit",
	"too many requests",
	"not visible",
	"could not find node",
	"waiting for selector",
	"net::err",
}

var permanentProviderPatterns = []string{
	"invalid credentials",
	"incorrect password",
	"authentication failed",
	"already published",
	"plugin not installed",
	"missing capability",
	"unknown selector table",
}

var permanentTaskPatterns = []string{
	"no such host",
	"payload invalid",
	"malformed content",
}

// Classify maps a raised error to its class. Classification is a pure
// function of the error's type and message; it never looks at retry
// counts. Unknown errors classify as transient so a single flaky
// failure does not burn a provider, and the retry budget converts a
// persistent one into escalation anyway.
func Classify(err error) Class {
	if err == nil {
		return Transient
	}

	var f *Fault
	if errors.As(err, &f) {
		return f.Class()
	}

	for _, s := range sentinelClasses {
		if errors.Is(err, s.err) {
			return s.class
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}

	msg := strings.ToLower(err.Error())
	for _, p := range permanentTaskPatterns {
		if strings.Contains(msg, p) {
			return PermanentTask
		}
	}
	for _, p := range permanentProviderPatterns {
		if strings.Contains(msg, p) {
			return PermanentProvider
		}
	}
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return Transient
		}
	}

	return Transient
}

// IsTransient reports whether err classifies as retryable.
func IsTransient(err error) bool {
	return Classify(err) == Transient
}
