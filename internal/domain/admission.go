package domain

import "time"

// DenyReason classifies why admission rejected a request.
type DenyReason string

const (
	DenyReasonRateLimited DenyReason = "rate_limited"
	DenyReasonBlocked     DenyReason = "blocked"
	DenyReasonBusy        DenyReason = "busy"
	DenyReasonUnavailable DenyReason = "unavailable"
)

// AdmissionDecision is the transient outcome of an admission check. It is
// never persisted.
type AdmissionDecision struct {
	Allowed    bool
	Reason     DenyReason
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Allow builds a positive decision with the remaining quota.
func Allow(remaining int, resetAt time.Time) AdmissionDecision {
	return AdmissionDecision{Allowed: true, Remaining: remaining, ResetAt: resetAt}
}

// Deny builds a negative decision with a retry hint.
func Deny(reason DenyReason, retryAfter time.Duration) AdmissionDecision {
	return AdmissionDecision{Allowed: false, Reason: reason, RetryAfter: retryAfter, ResetAt: time.Now().Add(retryAfter)}
}
