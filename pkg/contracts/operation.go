// Package contracts defines the wire and in-memory data model shared by the
// Policy Engine, Receipt Authority, Binding Validator, Executor, and Proof
// Chain Generator. No component outside this package may define its own
// shape for these types — the binding guarantees in binding.Validate depend
// on every component agreeing on field semantics.
package contracts

import "time"

// OperationKind is a closed enumeration of the side-effecting operations the
// kernel can authorize. Adding a variant is a breaking change because
// receipts embed the kind in their signed payload (spec.md §3).
type OperationKind string

const (
	OperationPublishRelease OperationKind = "publish_release"
	OperationTagRepo        OperationKind = "tag_repo"
	OperationOpenPR         OperationKind = "open_pr"
)

// Valid reports whether k is one of the closed set of known operation kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationPublishRelease, OperationTagRepo, OperationOpenPR:
		return true
	default:
		return false
	}
}

// Mode is a closed enumeration gating the Executor. Case-sensitive exact
// match only — "Prod", "PROD", "production" are all invalid.
type Mode string

const (
	ModeProd   Mode = "prod"
	ModeDryRun Mode = "dry_run"
)

// Valid reports whether m is exactly "prod" or "dry_run".
func (m Mode) Valid() bool {
	return m == ModeProd || m == ModeDryRun
}

// OperationRequest is what the planner emits for one proposed operation.
type OperationRequest struct {
	RunID         string                 `json:"run_id"`
	OperationKind OperationKind          `json:"operation_kind"`
	Repository    string                 `json:"repository"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Evidence      *AuthorizationEvidence `json:"evidence,omitempty"`
}

// EvidenceDecision is the outcome the Policy Engine reached, or that the
// caller asserts, about an OperationRequest.
type EvidenceDecision string

const (
	DecisionApproved EvidenceDecision = "approved"
	DecisionDenied   EvidenceDecision = "denied"
	DecisionDeferred EvidenceDecision = "deferred"
)

// AuthorizationEvidence is the caller-supplied attestation accompanying an
// OperationRequest, hashed into the minted Receipt so tampering after mint
// is detectable (the hash, not the evidence body, travels with the receipt).
type AuthorizationEvidence struct {
	CheckedAt time.Time        `json:"checked_at"`
	PolicyID  string           `json:"policy_id"`
	Decision  EvidenceDecision `json:"decision"`
	Reason    string           `json:"reason,omitempty"`
	Approvers []string         `json:"approvers,omitempty"`
	Checks    map[string]bool  `json:"checks,omitempty"`
}

// ApprovalCount returns len(Approvers), the quantity evidence predicates
// such as "approval_count >= 2" are evaluated against.
func (e *AuthorizationEvidence) ApprovalCount() int {
	if e == nil {
		return 0
	}
	return len(e.Approvers)
}
