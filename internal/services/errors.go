package services

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoBackendAvailable is returned when no configured backend has a
// credential, or the requested backend cannot be resolved.
var ErrNoBackendAvailable = errors.New("no generation backend available: configure at least one API key")

// Quota limit identifiers carried by QuotaExceededError.
const (
	LimitDailyRequests   = "daily_request_limit"
	LimitMonthlyRequests = "monthly_request_limit"
	LimitMonthlyCost     = "monthly_cost_limit"
)

// QuotaExceededError is returned before any backend call when a usage limit
// has been reached. Limit names which ceiling was violated.
type QuotaExceededError struct {
	Backend Backend
	Limit   string
	Current float64
	Max     float64
}

func (e *QuotaExceededError) Error() string {
	switch e.Limit {
	case LimitMonthlyCost:
		return fmt.Sprintf("quota exceeded for %s: %s reached ($%.2f of $%.2f)", e.Backend, e.Limit, e.Current, e.Max)
	default:
		return fmt.Sprintf("quota exceeded for %s: %s reached (%.0f of %.0f)", e.Backend, e.Limit, e.Current, e.Max)
	}
}

// BackendError wraps a failed backend call. Timeout distinguishes a
// deadline expiry from a backend-reported error.
type BackendError struct {
	Backend Backend
	Timeout bool
	Err     error
}

func (e *BackendError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("backend %s timed out", e.Backend)
	}
	return fmt.Sprintf("backend %s failed: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// BackendFailure records why one fallback candidate failed.
type BackendFailure struct {
	Backend Backend `json:"backend"`
	Reason  string  `json:"reason"`
}

// AllBackendsFailedError aggregates the per-backend failure reasons after
// every fallback candidate has been exhausted.
type AllBackendsFailedError struct {
	Failures []BackendFailure
}

func (e *AllBackendsFailedError) Error() string {
	reasons := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		reasons = append(reasons, fmt.Sprintf("%s: %s", f.Backend, f.Reason))
	}
	return "all backends failed: " + strings.Join(reasons, "; ")
}
