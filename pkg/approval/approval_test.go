package approval_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslock/kernel/pkg/approval"
)

func TestVerifyApprover_HappyPath(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("reviewer-key-secret")

	tok, err := approval.IssueForTesting("reviewers-2026", secret, "alice@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)

	v := approval.NewVerifier(map[string][]byte{"reviewers-2026": secret}).WithClock(func() time.Time { return now.Add(time.Minute) })

	sub, err := v.VerifyApprover(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", sub)
}

func TestVerifyApprover_UnknownKeyIDFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tok, err := approval.IssueForTesting("rotated-out-key", []byte("old-secret"), "bob@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)

	v := approval.NewVerifier(map[string][]byte{"reviewers-2026": []byte("other-secret")}).WithClock(func() time.Time { return now })

	_, err = v.VerifyApprover(tok)
	assert.Error(t, err)
}

func TestVerifyApprover_ExpiredTokenFails(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("reviewer-key-secret")
	tok, err := approval.IssueForTesting("reviewers-2026", secret, "alice@example.com", now.Add(-2*time.Hour), now.Add(-time.Hour))
	require.NoError(t, err)

	v := approval.NewVerifier(map[string][]byte{"reviewers-2026": secret}).WithClock(func() time.Time { return now })

	_, err = v.VerifyApprover(tok)
	assert.Error(t, err)
}

func TestVerifyAll_StopsAtFirstForgedToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("reviewer-key-secret")
	good, err := approval.IssueForTesting("reviewers-2026", secret, "alice@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)
	forged, err := approval.IssueForTesting("reviewers-2026", []byte("wrong-secret"), "mallory@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)

	v := approval.NewVerifier(map[string][]byte{"reviewers-2026": secret}).WithClock(func() time.Time { return now })

	_, err = v.VerifyAll([]string{good, forged})
	assert.Error(t, err)
}

func TestVerifyAll_AllGoodReturnsIdentitiesInOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	secret := []byte("reviewer-key-secret")
	a, err := approval.IssueForTesting("reviewers-2026", secret, "alice@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)
	b, err := approval.IssueForTesting("reviewers-2026", secret, "bob@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)

	v := approval.NewVerifier(map[string][]byte{"reviewers-2026": secret}).WithClock(func() time.Time { return now })

	approvers, err := v.VerifyAll([]string{a, b})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, approvers)
}
