// Package binding implements the Binding Validator: six ordered checks that
// decide whether a receipt presented to the Executor for a specific
// (run_id, operation_kind) may be acted upon (spec.md §4.3). Signature
// verification is the Authority's job at consume time; this validator
// assumes the receipt it is handed has not been forged in-process, and
// leaves the cryptographic check to authority.VerifyAndConsume.
package binding

import (
	"fmt"
	"time"

	"github.com/opslock/kernel/pkg/contracts"
)

// Code is the controlled vocabulary of binding failures, each naming the
// specific invariant an attacker (or a bug) tried to violate.
type Code string

const (
	CodeCrossRunReplay        Code = "cross_run_replay"
	CodeCrossOperationReplay  Code = "cross_operation_replay"
	CodeAdvisoryRejected      Code = "advisory_rejected"
	CodeAlreadyConsumedReplay Code = "already_consumed_replay"
	CodeExpired               Code = "expired"
	CodeStale                 Code = "stale"
)

// StalenessWindow is the maximum age, from issued_at, a receipt may have
// regardless of expires_at (spec.md §4.3 rule 6, glossary "Staleness").
const StalenessWindow = 24 * time.Hour

// Error reports which of the six checks failed.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Expected is the binding the caller presents: the receipt must match it
// exactly on both axes before anything else is considered.
type Expected struct {
	RunID         string
	OperationKind contracts.OperationKind
}

// Clock lets callers inject a deterministic time source, mirroring
// authority.Clock.
type Clock func() time.Time

// Validator runs the six binding checks in the fixed order spec.md §4.3
// prescribes: first failure wins.
type Validator struct {
	clock Clock
}

// New constructs a Validator using the real wall clock.
func New() *Validator {
	return &Validator{clock: time.Now}
}

// WithClock overrides the Validator's clock, for deterministic tests.
func (v *Validator) WithClock(c Clock) *Validator {
	v.clock = c
	return v
}

// Validate runs all six checks against receipt for the given expected
// binding. Returns nil iff every check passes.
func (v *Validator) Validate(receipt *contracts.Receipt, expected Expected) *Error {
	if receipt.RunID != expected.RunID {
		return &Error{Code: CodeCrossRunReplay, Message: fmt.Sprintf("receipt bound to run_id %q, presented for %q", receipt.RunID, expected.RunID)}
	}
	if receipt.OperationKind != expected.OperationKind {
		return &Error{Code: CodeCrossOperationReplay, Message: fmt.Sprintf("receipt bound to operation_kind %q, presented for %q", receipt.OperationKind, expected.OperationKind)}
	}
	if !receipt.Enforceable {
		return &Error{Code: CodeAdvisoryRejected, Message: "receipt is advisory (enforceable=false)"}
	}
	if receipt.Consumed {
		return &Error{Code: CodeAlreadyConsumedReplay, Message: "receipt has already been consumed"}
	}

	now := v.clock().UTC()
	if !now.Before(receipt.ExpiresAt) {
		return &Error{Code: CodeExpired, Message: fmt.Sprintf("receipt expired at %s", receipt.ExpiresAt.Format(time.RFC3339))}
	}
	if now.Sub(receipt.IssuedAt) > StalenessWindow {
		return &Error{Code: CodeStale, Message: fmt.Sprintf("receipt issued at %s exceeds staleness window of %s", receipt.IssuedAt.Format(time.RFC3339), StalenessWindow)}
	}

	return nil
}
