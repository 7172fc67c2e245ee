// Package authority implements the Receipt Authority: the single minting
// point for enforceable receipts (spec.md §4.2). It owns the policy engine,
// the signing secret, and the issuance ledger — no other component may
// mint a receipt or mutate one once it has been minted.
package authority

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/opslock/kernel/pkg/canonicalize"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/crypto"
	"github.com/opslock/kernel/pkg/ledger"
	"github.com/opslock/kernel/pkg/policy"
)

const (
	receiptTTL   = 1 * time.Hour
	stalenessTTL = 24 * time.Hour
)

// AuthErrorKind is the controlled vocabulary of verify_and_consume
// failures (spec.md §7).
type AuthErrorKind string

const (
	ErrKindSignatureInvalid AuthErrorKind = "signature_invalid"
	ErrKindNotFound         AuthErrorKind = "receipt_not_found"
	ErrKindAlreadyConsumed  AuthErrorKind = "already_consumed"
)

// AuthError is returned by VerifyAndConsume on any failure.
type AuthError struct {
	Kind    AuthErrorKind
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Clock is injected so tests can advance time without sleeping (spec.md §9
// "Global clock").
type Clock func() time.Time

// Authority is the single minting point for enforceable receipts in one
// deployment. Exactly one Authority instance serializes access to its
// ledger and signing secret (spec.md §5).
type Authority struct {
	authorityID string
	policyID    string
	signer      *crypto.Signer
	engine      *policy.Engine
	audience    string
	store       ledger.Store
	clock       Clock
}

// New constructs an Authority. signingSecret should be at least 32 bytes;
// policy.NewEngine wraps the supplied AuthorizationPolicy.
func New(authorityID string, signingSecret []byte, pol contracts.AuthorizationPolicy, audience string, store ledger.Store) (*Authority, error) {
	signer, err := crypto.NewSigner(signingSecret, authorityID)
	if err != nil {
		return nil, fmt.Errorf("authority: %w", err)
	}
	if store == nil {
		store = ledger.NewMemoryStore()
	}
	return &Authority{
		authorityID: authorityID,
		policyID:    pol.PolicyID,
		signer:      signer,
		engine:      policy.NewEngine(pol),
		audience:    audience,
		store:       store,
		clock:       time.Now,
	}, nil
}

// WithClock overrides the Authority's clock, for deterministic tests.
func (a *Authority) WithClock(c Clock) *Authority {
	a.clock = c
	return a
}

// Mint runs the Policy Engine against req and always returns a signed
// Receipt — enforceable if the policy passed, advisory (enforceable=false)
// otherwise. Denial never raises (spec.md §4.2.1 "Design rationale").
func (a *Authority) Mint(req *contracts.OperationRequest, evidence *contracts.AuthorizationEvidence) (*contracts.Receipt, error) {
	now := a.clock().UTC()

	if evidence == nil {
		evidence = &contracts.AuthorizationEvidence{
			CheckedAt: now,
			Decision:  contracts.DecisionDeferred,
			Reason:    "no evidence supplied at mint time",
		}
	}

	violation := a.engine.Validate(req, evidence)

	enforceable := violation == nil
	if enforceable {
		evidence.Decision = contracts.DecisionApproved
	} else {
		evidence.Decision = contracts.DecisionDenied
		evidence.Reason = violation.Error()
	}

	evidenceHash, err := canonicalize.Hash(evidence)
	if err != nil {
		return nil, fmt.Errorf("authority: hashing evidence: %w", err)
	}

	receipt := &contracts.Receipt{
		ReceiptID:     mintReceiptID(req.RunID, req.OperationKind, now),
		RunID:         req.RunID,
		OperationKind: req.OperationKind,
		Enforceable:   enforceable,
		IssuedAt:      now,
		ExpiresAt:     now.Add(receiptTTL),
		Issuer:        a.authorityID,
		Audience:      a.audience,
		EvidenceHash:  evidenceHash,
	}

	payload, err := canonicalize.JCS(receipt.SigningPayload())
	if err != nil {
		return nil, fmt.Errorf("authority: canonicalizing receipt: %w", err)
	}
	receipt.Signature = a.signer.Sign(payload)

	if err := a.store.Append(contracts.LedgerEntry{
		ReceiptID:     receipt.ReceiptID,
		RunID:         receipt.RunID,
		OperationKind: receipt.OperationKind,
		Enforceable:   receipt.Enforceable,
		IssuedAt:      receipt.IssuedAt,
		PolicyID:      a.policyID,
		TerminalState: contracts.StateOpen,
	}); err != nil {
		return nil, fmt.Errorf("authority: appending to ledger: %w", err)
	}

	return receipt, nil
}

// VerifyAndConsume checks the receipt's signature, confirms it exists in
// the ledger, and atomically transitions it to consumed. On success it also
// mutates the in-memory receipt to reflect consumption (spec.md §4.2.2).
func (a *Authority) VerifyAndConsume(receipt *contracts.Receipt) error {
	payload, err := canonicalize.JCS(receipt.SigningPayload())
	if err != nil {
		return &AuthError{Kind: ErrKindSignatureInvalid, Message: err.Error()}
	}
	if !a.signer.Verify(payload, receipt.Signature) {
		return &AuthError{Kind: ErrKindSignatureInvalid, Message: "signature does not verify under the authority secret"}
	}

	if _, err := a.store.Get(receipt.ReceiptID); err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &AuthError{Kind: ErrKindNotFound, Message: "receipt_id has no ledger entry"}
		}
		return &AuthError{Kind: ErrKindNotFound, Message: err.Error()}
	}

	now := a.clock().UTC()
	if err := a.store.CompareAndConsume(receipt.ReceiptID, now); err != nil {
		if errors.Is(err, ledger.ErrAlreadyConsumed) {
			return &AuthError{Kind: ErrKindAlreadyConsumed, Message: "receipt already consumed"}
		}
		return &AuthError{Kind: ErrKindNotFound, Message: err.Error()}
	}

	receipt.Consumed = true
	receipt.ConsumedAt = &now
	return nil
}

// LedgerEntry exposes one issuance ledger row, so the Executor's audit
// trail can be cross-checked against the Authority (spec.md §8: "the
// multiset of receipt_id values in the audit trail is a subset of
// receipt_id values in the issuance ledger").
func (a *Authority) LedgerEntry(receiptID string) (contracts.LedgerEntry, error) {
	return a.store.Get(receiptID)
}

// mintReceiptID computes "receipt-" + 16 hex chars of
// SHA-256(run_id ":" operation_kind ":" now) per spec.md §4.2.1.
func mintReceiptID(runID string, kind contracts.OperationKind, now time.Time) string {
	seed := runID + ":" + string(kind) + ":" + now.Format(time.RFC3339Nano)
	sum := sha256.Sum256([]byte(seed))
	return "receipt-" + hex.EncodeToString(sum[:])[:16]
}
