// Package approval verifies signed approver tokens before they are trusted
// as entries in contracts.AuthorizationEvidence.Approvers. A bare string
// approver name is just an assertion; a verified JWT ties that assertion to
// a key the Authority's operator actually trusts, the same way the teacher's
// core/pkg/receipts/policies/enforcer.go treats an unverified claim and a
// verified one as different trust tiers.
package approval

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKeyID is returned when a token's "kid" header does not match any
// key configured on the Verifier.
var ErrUnknownKeyID = errors.New("approval: unknown key id")

// approverClaims is the minimal claim set an approval token must carry: who
// is approving (sub) and until when the token is considered fresh (exp),
// via jwt.RegisteredClaims.
type approverClaims struct {
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed approver tokens against a set of named keys,
// so different approval sources (a human reviewer's token, a CI system's
// token) can be rotated independently by key id.
type Verifier struct {
	keys  map[string][]byte
	clock func() time.Time
}

// NewVerifier builds a Verifier over the given key-id -> secret map.
func NewVerifier(keys map[string][]byte) *Verifier {
	return &Verifier{keys: keys, clock: time.Now}
}

// WithClock overrides the time source used for expiry checks, for tests.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// VerifyApprover parses and verifies a single approval token, returning the
// approver identity (the "sub" claim) on success.
func (v *Verifier) VerifyApprover(token string) (string, error) {
	claims := &approverClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("approval: unexpected signing method %v", t.Header["alg"])
		}
		kid, _ := t.Header["kid"].(string)
		secret, ok := v.keys[kid]
		if !ok {
			return nil, ErrUnknownKeyID
		}
		return secret, nil
	}, jwt.WithTimeFunc(v.clock))
	if err != nil {
		return "", fmt.Errorf("approval: verifying token: %w", err)
	}
	if !parsed.Valid {
		return "", errors.New("approval: token failed validation")
	}
	if claims.Subject == "" {
		return "", errors.New("approval: token missing subject")
	}
	return claims.Subject, nil
}

// VerifyAll verifies every token in tokens, in order, and returns the
// corresponding approver identities. It stops at the first failure: a
// single forged or expired approval token invalidates the whole batch
// rather than silently dropping it, since an Evidence's ApprovalCount is
// used directly in policy rule evaluation.
func (v *Verifier) VerifyAll(tokens []string) ([]string, error) {
	approvers := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		sub, err := v.VerifyApprover(tok)
		if err != nil {
			return nil, fmt.Errorf("approval: token %d: %w", i, err)
		}
		approvers = append(approvers, sub)
	}
	return approvers, nil
}

// IssueForTesting mints a signed approval token for subject, using keyID's
// secret. Exported for use by test fixtures (this package's and the CLI's) and by
// operators bootstrapping a CI approval source; production approval tokens
// are expected to be minted by the external approval system, not this
// package's primary runtime path.
func IssueForTesting(keyID string, secret []byte, subject string, issuedAt, expiresAt time.Time) (string, error) {
	claims := approverClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(secret)
}
