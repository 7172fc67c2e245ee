// Package retry implements the Executor's recovery policy: exponential
// backoff over transient platform errors (spec.md §4.4 "Recovery"),
// grounded on the teacher's kernel/retry exponential-backoff shape but
// simplified to the fixed policy the spec prescribes: 2^attempt seconds,
// capped at 3 attempts.
package retry

import "time"

// MaxAttempts is the hard cap on platform-call attempts per operation.
const MaxAttempts = 3

// Backoff returns the delay before attempt (0-indexed: the delay before
// retry attempt 1 is Backoff(0), etc.), per spec.md §4.4's "2^attempt
// seconds".
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30 // guard against overflow; unreachable given MaxAttempts
	}
	return (1 << attempt) * time.Second
}
