package authority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslock/kernel/pkg/canonicalize"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/crypto"
	"github.com/opslock/kernel/pkg/ledger"
)

func testAuthorityPolicy() contracts.AuthorizationPolicy {
	return contracts.AuthorizationPolicy{
		PolicyID: "pol-1",
		Version:  "v1",
		Rules: map[contracts.OperationKind]contracts.RuleSet{
			contracts.OperationPublishRelease: {
				AllowedRepositories: []string{"omega/*"},
				RequireEvidence:     []string{"approval_count >= 1"},
			},
		},
	}
}

func newTestAuthority(t *testing.T) *Authority {
	t.Helper()
	a, err := New("authority-1", []byte("test-signing-secret-at-least-32b"), testAuthorityPolicy(), "executor-1", nil)
	require.NoError(t, err)
	return a
}

// Scenario 1 from spec.md §8: happy path mint.
func TestMint_HappyPath_Enforceable(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}
	evidence := &contracts.AuthorizationEvidence{Approvers: []string{"alice"}}

	receipt, err := a.Mint(req, evidence)
	require.NoError(t, err)
	assert.True(t, receipt.Enforceable)
	assert.Equal(t, "r-1", receipt.RunID)
	assert.True(t, receipt.ExpiresAt.After(receipt.IssuedAt))
}

// Scenario 3 from spec.md §8: advisory (denied) rejection.
func TestMint_PolicyDenied_Advisory(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "random/x"}

	receipt, err := a.Mint(req, &contracts.AuthorizationEvidence{Approvers: []string{"alice"}})
	require.NoError(t, err)
	assert.False(t, receipt.Enforceable)
}

func TestMint_NoEvidenceSupplied_SynthesizesDeferred(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}

	receipt, err := a.Mint(req, nil)
	require.NoError(t, err)
	assert.False(t, receipt.Enforceable) // no approvers -> evidence requirement fails
}

func TestVerifyAndConsume_RoundTrip(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}
	receipt, err := a.Mint(req, &contracts.AuthorizationEvidence{Approvers: []string{"alice"}})
	require.NoError(t, err)

	err = a.VerifyAndConsume(receipt)
	require.NoError(t, err)
	assert.True(t, receipt.Consumed)

	entry, err := a.LedgerEntry(receipt.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, contracts.StateConsumed, entry.TerminalState)
}

// Scenario 4 from spec.md §8: double consume.
func TestVerifyAndConsume_DoubleConsumeFails(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}
	receipt, err := a.Mint(req, &contracts.AuthorizationEvidence{Approvers: []string{"alice"}})
	require.NoError(t, err)

	require.NoError(t, a.VerifyAndConsume(receipt))

	err = a.VerifyAndConsume(receipt)
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrKindAlreadyConsumed, authErr.Kind)
}

// Scenario 6 from spec.md §8: forged receipt.
func TestVerifyAndConsume_ForgedSignatureFails(t *testing.T) {
	a := newTestAuthority(t)

	forgedSigner, err := crypto.NewSigner([]byte("different-secret-xxxxxxxxxxxxxxx"), "attacker")
	require.NoError(t, err)

	forged := &contracts.Receipt{
		ReceiptID:     "receipt-deadbeefdeadbeef",
		RunID:         "r-1",
		OperationKind: contracts.OperationPublishRelease,
		Enforceable:   true,
		IssuedAt:      time.Now(),
		ExpiresAt:     time.Now().Add(time.Hour),
		Issuer:        "authority-1",
		Audience:      "executor-1",
	}
	payload, err := canonicalize.JCS(forged.SigningPayload())
	require.NoError(t, err)
	forged.Signature = forgedSigner.Sign(payload)

	err = a.VerifyAndConsume(forged)
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrKindSignatureInvalid, authErr.Kind)

	_, lerr := a.LedgerEntry(forged.ReceiptID)
	assert.ErrorIs(t, lerr, ledger.ErrNotFound)
}

func TestVerifyAndConsume_TamperedFieldInvalidatesSignature(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "random/x"}
	receipt, err := a.Mint(req, &contracts.AuthorizationEvidence{Approvers: []string{"alice"}})
	require.NoError(t, err) // advisory (enforceable=false)

	receipt.Enforceable = true // attacker flips the bit in-process

	err = a.VerifyAndConsume(receipt)
	require.Error(t, err)
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, ErrKindSignatureInvalid, authErr.Kind)
}

func TestMint_WrongSecretNeverVerifies(t *testing.T) {
	a := newTestAuthority(t)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}
	receipt, err := a.Mint(req, &contracts.AuthorizationEvidence{Approvers: []string{"alice"}})
	require.NoError(t, err)

	payload, err := canonicalize.JCS(receipt.SigningPayload())
	require.NoError(t, err)
	assert.False(t, crypto.VerifyWithSecret([]byte("totally-wrong-secret-xxxxxxxxxxx"), payload, receipt.Signature))
}
