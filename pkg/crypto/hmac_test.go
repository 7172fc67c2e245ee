package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_SignThenVerify_RoundTrip(t *testing.T) {
	s, err := NewSigner([]byte("a-very-secret-key-material-32bytes"), "authority-1")
	require.NoError(t, err)

	payload := []byte(`{"run_id":"r-1"}`)
	sig := s.Sign(payload)

	assert.True(t, s.Verify(payload, sig))
}

func TestSigner_Verify_WrongSecretFails(t *testing.T) {
	s, err := NewSigner([]byte("secret-one-xxxxxxxxxxxxxxxxxxxxxx"), "authority-1")
	require.NoError(t, err)

	payload := []byte(`{"run_id":"r-1"}`)
	sig := s.Sign(payload)

	assert.False(t, VerifyWithSecret([]byte("a-different-secret-xxxxxxxxxxxx"), payload, sig))
}

func TestSigner_Verify_TamperedPayloadFails(t *testing.T) {
	s, err := NewSigner([]byte("secret-xxxxxxxxxxxxxxxxxxxxxxxxxx"), "authority-1")
	require.NoError(t, err)

	sig := s.Sign([]byte(`{"enforceable":false}`))

	assert.False(t, s.Verify([]byte(`{"enforceable":true}`), sig))
}

func TestNewSigner_RejectsEmptySecret(t *testing.T) {
	_, err := NewSigner(nil, "authority-1")
	assert.Error(t, err)
}
