// Package bridge implements the FC-to-Executor Bridge (spec.md §4.6): the
// only component that knows both the planner's PublicationPlan shape and
// the Authority/Executor's receipt-minting shape. Grounded on the teacher's
// agent/adapter.go KernelBridge, which plays the same "single component
// spanning two subsystems" role, adapted from LLM-tool dispatch to
// plan-to-receipt translation.
package bridge

import (
	"github.com/opslock/kernel/pkg/authority"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/planner"
)

// Result is what MintPlan returns: the minted receipts keyed by
// operation_id, which operations were blocked (by mode, or because their
// minted receipt is advisory), and whether the plan is ready to execute at
// all. A mint error aborts MintPlan instead of blocking the operation.
type Result struct {
	Receipts          map[string]*contracts.Receipt
	BlockedOperations []string
	ExecutionReady    bool
}

// Bridge mints one receipt per operation in a PublicationPlan.
type Bridge struct {
	authority *authority.Authority
}

// New constructs a Bridge over a single Authority.
func New(a *authority.Authority) *Bridge {
	return &Bridge{authority: a}
}

// MintPlan iterates plan.Operations in order, minting a receipt for every
// operation not already blocked_by_mode, and returns the combined result
// (spec.md §4.6).
func (b *Bridge) MintPlan(plan planner.PublicationPlan) (*Result, error) {
	result := &Result{Receipts: make(map[string]*contracts.Receipt)}

	for _, op := range plan.Operations {
		if op.BlockedByMode {
			result.BlockedOperations = append(result.BlockedOperations, op.OperationID)
			continue
		}

		req := &contracts.OperationRequest{
			RunID:         plan.RunID,
			OperationKind: op.OperationKind,
			Repository:    op.Repository,
			Payload:       op.Payload,
			Evidence:      op.Evidence,
		}

		receipt, err := b.authority.Mint(req, op.Evidence)
		if err != nil {
			return nil, err
		}
		if !receipt.Enforceable {
			result.BlockedOperations = append(result.BlockedOperations, op.OperationID)
		}
		result.Receipts[op.OperationID] = receipt
	}

	result.ExecutionReady = len(result.BlockedOperations) == 0
	return result, nil
}
