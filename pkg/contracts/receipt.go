package contracts

import "time"

// Receipt is the single-use capability that carries authority from the
// Receipt Authority to the Executor. Per spec.md §3, it is immutable after
// minting except for the Consumed/ConsumedAt transition, which only the
// Authority's verify-and-consume entry point may perform.
type Receipt struct {
	ReceiptID     string        `json:"receipt_id"`
	RunID         string        `json:"run_id"`
	OperationKind OperationKind `json:"operation_kind"`
	Enforceable   bool          `json:"enforceable"`
	IssuedAt      time.Time     `json:"issued_at"`
	ExpiresAt     time.Time     `json:"expires_at"`
	Issuer        string        `json:"issuer"`
	Audience      string        `json:"audience"`
	EvidenceHash  string        `json:"evidence_hash"`
	Signature     string        `json:"signature"`
	Consumed      bool          `json:"consumed"`
	ConsumedAt    *time.Time    `json:"consumed_at,omitempty"`
}

// SigningPayload returns the ordered, fixed-field view of the receipt used
// to compute and verify its signature. It deliberately excludes Signature,
// Consumed, and ConsumedAt: those fields are post-mint state, not part of
// what the Authority attests to at mint time.
func (r *Receipt) SigningPayload() map[string]interface{} {
	return map[string]interface{}{
		"receipt_id":     r.ReceiptID,
		"run_id":         r.RunID,
		"operation_kind": string(r.OperationKind),
		"enforceable":    r.Enforceable,
		"issued_at":      r.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at":     r.ExpiresAt.UTC().Format(time.RFC3339),
		"issuer":         r.Issuer,
		"audience":       r.Audience,
		"evidence_hash":  r.EvidenceHash,
	}
}

// TerminalState is the lifecycle state of a ledger entry for a receipt.
type TerminalState string

const (
	StateOpen     TerminalState = "open"
	StateConsumed TerminalState = "consumed"
	StateExpired  TerminalState = "expired"
)

// LedgerEntry is one row of the Issuance Ledger: the authority-side record
// of a minted receipt and its terminal state.
type LedgerEntry struct {
	ReceiptID     string        `json:"receipt_id"`
	RunID         string        `json:"run_id"`
	OperationKind OperationKind `json:"operation_kind"`
	Enforceable   bool          `json:"enforceable"`
	IssuedAt      time.Time     `json:"issued_at"`
	PolicyID      string        `json:"policy_id"`
	TerminalState TerminalState `json:"terminal_state"`
	ConsumedAt    *time.Time    `json:"consumed_at,omitempty"`
}
