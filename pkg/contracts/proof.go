package contracts

import "time"

// ProofStep is one entry in a ProofChain: plan, mint, execute, or ledger.
// Each step is signed independently so tampering with a single step
// invalidates that step's own signature even if an attacker recomputes the
// chain hash around it.
type ProofStep struct {
	StepID      string    `json:"step_id"`
	Timestamp   time.Time `json:"timestamp"`
	Actor       string    `json:"actor"`
	Description string    `json:"description"`
	InputHash   string    `json:"input_hash"`
	OutputHash  string    `json:"output_hash"`
	Signature   string    `json:"signature"`
}

// SigningPayload returns the fixed-order string HMAC-SHA-256 is computed
// over: "step_id:timestamp:actor:input_hash:output_hash" (spec.md §3).
func (s *ProofStep) SigningPayload() string {
	return s.StepID + ":" + s.Timestamp.UTC().Format(time.RFC3339) + ":" +
		s.Actor + ":" + s.InputHash + ":" + s.OutputHash
}

// ProofChain is the sealed, ordered sequence of ProofSteps for one
// end-to-end authorization flow.
type ProofChain struct {
	ProofID     string      `json:"proof_id"`
	GeneratedAt time.Time   `json:"generated_at"`
	TotalSteps  int         `json:"total_steps"`
	ChainHash   string      `json:"chain_hash"`
	Steps       []ProofStep `json:"steps"`
}
