// Package planner defines the external collaborator that proposes
// operations (spec.md §6): the PublicationPlan producer. It is
// out-of-scope as an implementation (the real planning logic lives outside
// this kernel); this package only fixes the shape the Bridge consumes.
package planner

import (
	"time"

	"github.com/opslock/kernel/pkg/contracts"
)

// OperationSpec is one proposed operation within a PublicationPlan.
type OperationSpec struct {
	OperationID   string                           `json:"operation_id"`
	OperationKind contracts.OperationKind          `json:"operation_kind"`
	Repository    string                           `json:"repository"`
	Payload       map[string]interface{}           `json:"payload,omitempty"`
	Evidence      *contracts.AuthorizationEvidence `json:"evidence,omitempty"`
	// BlockedByMode is set true by the planner itself when Mode is dry_run:
	// those entries are never presented to the Executor (spec.md §6).
	BlockedByMode bool `json:"blocked_by_mode"`
}

// PublicationPlan is what a planner emits for one run: a batch of proposed
// operations under a single run_id and mode.
type PublicationPlan struct {
	RunID      string          `json:"run_id"`
	Mode       contracts.Mode  `json:"mode"`
	CreatedAt  time.Time       `json:"created_at"`
	Operations []OperationSpec `json:"operations"`
}

// New builds a PublicationPlan, marking every operation BlockedByMode when
// mode is dry_run.
func New(runID string, mode contracts.Mode, now time.Time, ops []OperationSpec) PublicationPlan {
	blocked := mode == contracts.ModeDryRun
	out := make([]OperationSpec, len(ops))
	for i, op := range ops {
		op.BlockedByMode = blocked
		out[i] = op
	}
	return PublicationPlan{RunID: runID, Mode: mode, CreatedAt: now, Operations: out}
}
