// Package proofchain implements the Proof Chain Generator (spec.md §4.5):
// an append-only, content-addressed record of the steps one authorization
// flow passed through (plan → mint → execute → ledger). Grounded on the
// teacher's executor/merkle.go domain-separated hashing discipline, adapted
// from a Merkle tree over evidence leaves to a flat hash-chained step log —
// the spec calls for chain_hash over the whole ordered step list, not a
// tree, so no branching/proof-path structure is needed here.
package proofchain

import (
	"fmt"
	"time"

	"github.com/opslock/kernel/pkg/canonicalize"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/crypto"
)

// Clock lets tests freeze "now" for step timestamps.
type Clock func() time.Time

// Generator accumulates ProofSteps in insertion order and seals them into a
// ProofChain on Finalize.
type Generator struct {
	signer *crypto.Signer
	clock  Clock
	steps  []contracts.ProofStep
}

// New constructs a Generator. signer produces each step's independent
// signature — typically the same secret the Receipt Authority signs with,
// since the proof chain attests to the same flow.
func New(signer *crypto.Signer) *Generator {
	return &Generator{signer: signer, clock: time.Now}
}

// WithClock overrides the Generator's clock, for deterministic tests.
func (g *Generator) WithClock(c Clock) *Generator {
	g.clock = c
	return g
}

// AddStep appends a new, independently signed ProofStep. input and output
// are hashed via canonicalize.Hash before being embedded — the step never
// carries the raw payload, only its digest.
func (g *Generator) AddStep(stepID, actor, description string, input, output interface{}) (contracts.ProofStep, error) {
	inputHash, err := canonicalize.Hash(input)
	if err != nil {
		return contracts.ProofStep{}, fmt.Errorf("proofchain: hashing input for step %q: %w", stepID, err)
	}
	outputHash, err := canonicalize.Hash(output)
	if err != nil {
		return contracts.ProofStep{}, fmt.Errorf("proofchain: hashing output for step %q: %w", stepID, err)
	}

	step := contracts.ProofStep{
		StepID:      stepID,
		Timestamp:   g.clock().UTC(),
		Actor:       actor,
		Description: description,
		InputHash:   inputHash,
		OutputHash:  outputHash,
	}
	step.Signature = g.signer.Sign([]byte(step.SigningPayload()))

	g.steps = append(g.steps, step)
	return step, nil
}

// Finalize seals the accumulated steps into a ProofChain. chain_hash covers
// the canonicalized step list: reordering steps, not just mutating one,
// invalidates it (spec.md §4.5).
func (g *Generator) Finalize() (*contracts.ProofChain, error) {
	chainHash, err := canonicalize.Hash(g.steps)
	if err != nil {
		return nil, fmt.Errorf("proofchain: hashing chain: %w", err)
	}

	return &contracts.ProofChain{
		ProofID:     "proof-" + chainHash[:16],
		GeneratedAt: g.clock().UTC(),
		TotalSteps:  len(g.steps),
		ChainHash:   chainHash,
		Steps:       append([]contracts.ProofStep(nil), g.steps...),
	}, nil
}

// VerifyStep reports whether step's own signature still verifies under
// signer — i.e. whether step has been tampered with in isolation.
func VerifyStep(signer *crypto.Signer, step contracts.ProofStep) bool {
	return signer.Verify([]byte(step.SigningPayload()), step.Signature)
}

// VerifyChain recomputes the chain hash over steps and compares it against
// want — detecting reordering even when every individual step signature
// still verifies.
func VerifyChain(steps []contracts.ProofStep, want string) (bool, error) {
	got, err := canonicalize.Hash(steps)
	if err != nil {
		return false, err
	}
	return got == want, nil
}
