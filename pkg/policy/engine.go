// Package policy implements the Policy Engine: the single place that
// decides whether an OperationRequest is approved, evaluated against a
// declarative AuthorizationPolicy (spec.md §4.1). It never raises for a
// policy failure — it returns a Violation the Receipt Authority turns into
// an advisory (non-enforceable) receipt.
package policy

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/opslock/kernel/pkg/contracts"
)

// Reason is the controlled vocabulary of policy failure codes, matching
// spec.md §4.1 so audit searches can filter on it.
type Reason string

const (
	ReasonNoPolicyForKind          Reason = "no_policy_for_kind"
	ReasonRepositoryNotAllowed     Reason = "repository_not_allowed"
	ReasonEvidenceRequirementNotMet Reason = "evidence_requirement_not_met"
)

// Violation describes why validate rejected a request. It is a value, not
// an exception: Engine.Validate returns a *Violation on failure and nil on
// success — see Validate's doc comment.
type Violation struct {
	Reason  Reason
	Message string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Reason, v.Message)
}

// Engine evaluates OperationRequests against one AuthorizationPolicy.
type Engine struct {
	policy contracts.AuthorizationPolicy
}

// NewEngine builds an Engine over policy. The policy is treated as
// immutable for the lifetime of the Engine — callers wanting a new ruleset
// construct a new Engine (mirrors the Authority's one-policy-per-instance
// model in spec.md §5).
func NewEngine(policy contracts.AuthorizationPolicy) *Engine {
	return &Engine{policy: policy}
}

// Validate runs the four policy rules in fixed order, first failure wins.
// A nil Violation means the request passed every rule that applies to it.
func (e *Engine) Validate(req *contracts.OperationRequest, evidence *contracts.AuthorizationEvidence) *Violation {
	rule, ok := e.policy.Rules[req.OperationKind]
	if !ok {
		return &Violation{
			Reason:  ReasonNoPolicyForKind,
			Message: fmt.Sprintf("no policy entry for operation_kind %q", req.OperationKind),
		}
	}

	if len(rule.AllowedRepositories) > 0 {
		if !matchesAny(rule.AllowedRepositories, req.Repository) {
			return &Violation{
				Reason:  ReasonRepositoryNotAllowed,
				Message: fmt.Sprintf("repository %q does not match any allowed pattern", req.Repository),
			}
		}
	}

	for _, predicate := range rule.RequireEvidence {
		if err := evaluatePredicate(predicate, evidence); err != nil {
			return &Violation{
				Reason:  ReasonEvidenceRequirementNotMet,
				Message: err.Error(),
			}
		}
	}

	// Rule 4 (rate_limit) is advisory only — the Policy Engine never
	// fails a request on it, and no other component reads it; the
	// Executor's rate manager is configured separately.
	return nil
}

func matchesAny(patterns []string, repository string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, repository); ok {
			return true
		}
	}
	return false
}

// evaluatePredicate parses and evaluates a "key OP value" predicate of the
// form documented in spec.md §4.1, e.g. "approval_count >= 2".
func evaluatePredicate(predicate string, evidence *contracts.AuthorizationEvidence) error {
	key, op, rhs, err := splitPredicate(predicate)
	if err != nil {
		return err
	}

	var lhs int
	switch key {
	case "approval_count":
		lhs = evidence.ApprovalCount()
	default:
		return fmt.Errorf("unsupported evidence predicate key %q", key)
	}

	want, err := strconv.Atoi(rhs)
	if err != nil {
		return fmt.Errorf("predicate %q: non-numeric rhs %q", predicate, rhs)
	}

	var satisfied bool
	switch op {
	case ">=":
		satisfied = lhs >= want
	case "<=":
		satisfied = lhs <= want
	case "==":
		satisfied = lhs == want
	default:
		return fmt.Errorf("predicate %q: unsupported operator %q", predicate, op)
	}

	if !satisfied {
		return fmt.Errorf("predicate %q not satisfied (got %d)", predicate, lhs)
	}
	return nil
}

func splitPredicate(predicate string) (key, op, rhs string, err error) {
	for _, candidate := range []string{">=", "<=", "=="} {
		if idx := strings.Index(predicate, candidate); idx >= 0 {
			key = strings.TrimSpace(predicate[:idx])
			op = candidate
			rhs = strings.TrimSpace(predicate[idx+len(candidate):])
			return key, op, rhs, nil
		}
	}
	return "", "", "", fmt.Errorf("malformed evidence predicate %q", predicate)
}
