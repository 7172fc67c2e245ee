// Package crypto implements the symmetric signing discipline the Receipt
// Authority uses to mint and verify receipts and proof steps. Per spec.md
// §1 (Non-goals), this is deliberately HMAC-SHA-256 over a shared secret,
// not public-key cryptography: one authority per deployment needs no
// revocation or multi-party trust model, only tamper-evidence.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Signer computes and verifies HMAC-SHA-256 signatures over canonical byte
// payloads. All comparisons are constant-time (hmac.Equal) so a timing
// side-channel cannot leak the secret one byte at a time.
type Signer struct {
	secret []byte
	keyID  string
}

// NewSigner builds a Signer over secret, identified by keyID in logs and
// error messages (never logs the secret itself).
func NewSigner(secret []byte, keyID string) (*Signer, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("crypto: signing secret must not be empty")
	}
	return &Signer{secret: append([]byte(nil), secret...), keyID: keyID}, nil
}

// KeyID identifies which secret produced a signature, for audit purposes.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign returns the lowercase hex HMAC-SHA-256 of data under the signer's
// secret.
func (s *Signer) Sign(data []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sigHex is a valid HMAC-SHA-256 of data under the
// signer's secret, using a constant-time comparison.
func (s *Signer) Verify(data []byte, sigHex string) bool {
	expected, err := hex.DecodeString(s.Sign(data))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}

// VerifyWithSecret checks sigHex against data using an arbitrary secret,
// independent of the Signer's own key. It exists so tests can assert that a
// receipt signed under one secret fails verification under another (spec.md
// §8: "∀ receipt r ever issued: verify_signature(r, wrong_secret) = false").
func VerifyWithSecret(secret, data []byte, sigHex string) bool {
	mac := hmac.New(sha256.New, secret)
	mac.Write(data)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
