package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslock/kernel/pkg/approval"
)

func TestRun_HelpExitsZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"opskernel", "help"}, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code)
	assert.Contains(t, stdout.String(), "opskernel")
}

func TestRun_UnknownCommandExitsNonZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"opskernel", "bogus"}, &stdout, &stderr)
	assert.Equal(t, ExitAuthorizationError, code)
	assert.Contains(t, stderr.String(), "unknown command")
}

func TestRun_Demo_HappyPath(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"opskernel", "demo"}, &stdout, &stderr)
	require.Equal(t, ExitSuccess, code, stderr.String())
	assert.Contains(t, stdout.String(), "proof_chain")
	assert.Contains(t, stdout.String(), "audit_record")
}

func TestRun_Doctor_MissingSecretFails(t *testing.T) {
	t.Setenv("AUTHORITY_SECRET", "")
	var stdout, stderr bytes.Buffer
	code := Run([]string{"opskernel", "doctor"}, &stdout, &stderr)
	assert.Equal(t, ExitAuthorizationError, code)
}

func TestRun_Doctor_AllPresent(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{"policy_id":"p1","version":"v1","rules":{}}`), 0o600))

	t.Setenv("AUTHORITY_SECRET", "test-signing-secret-at-least-32b")
	t.Setenv("PLATFORM_TOKEN", "tok")
	t.Setenv("POLICY_FILE", policyPath)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"opskernel", "doctor"}, &stdout, &stderr)
	assert.Equal(t, ExitSuccess, code, stderr.String())
}

func TestRun_MintWithoutEvidence_EnforceableWhenPolicyPasses(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{
		"policy_id": "p1",
		"version": "v1",
		"rules": {
			"publish_release": {"allowed_repositories": ["omega/*"]}
		}
	}`), 0o600))

	t.Setenv("AUTHORITY_SECRET", "test-signing-secret-at-least-32b")
	t.Setenv("POLICY_FILE", policyPath)

	var mintOut, mintErr bytes.Buffer
	code := Run([]string{"opskernel", "mint", "-run-id", "r-1", "-kind", "publish_release", "-repository", "omega/app"}, &mintOut, &mintErr)
	require.Equal(t, ExitSuccess, code, "no evidence supplied -> deferred evidence is synthesized; the policy has no evidence predicate, so the receipt is enforceable")
	assert.Contains(t, mintOut.String(), "receipt_id")
}

func TestRun_MintWithApprovalToken_YieldsEnforceableReceipt(t *testing.T) {
	dir := t.TempDir()
	policyPath := filepath.Join(dir, "policy.json")
	require.NoError(t, os.WriteFile(policyPath, []byte(`{
		"policy_id": "p1",
		"version": "v1",
		"rules": {
			"publish_release": {"allowed_repositories": ["omega/*"]}
		}
	}`), 0o600))

	keysPath := filepath.Join(dir, "approver_keys.json")
	require.NoError(t, os.WriteFile(keysPath, []byte(`{"reviewers-2026":"reviewer-secret"}`), 0o600))

	now := time.Now()
	token, err := approval.IssueForTesting("reviewers-2026", []byte("reviewer-secret"), "alice@example.com", now, now.Add(time.Hour))
	require.NoError(t, err)

	t.Setenv("AUTHORITY_SECRET", "test-signing-secret-at-least-32b")
	t.Setenv("POLICY_FILE", policyPath)
	t.Setenv("APPROVER_KEYS_FILE", keysPath)

	var mintOut, mintErr bytes.Buffer
	code := Run([]string{
		"opskernel", "mint",
		"-run-id", "r-1", "-kind", "publish_release", "-repository", "omega/app",
		"-approval-token", token,
	}, &mintOut, &mintErr)
	require.Equal(t, ExitSuccess, code, mintErr.String())
	assert.Contains(t, mintOut.String(), "receipt_id")
}
