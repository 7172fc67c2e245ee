package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslock/kernel/pkg/contracts"
)

func TestSQLStore_AppendGet(t *testing.T) {
	s, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(sampleEntry("rcpt-1")))

	got, err := s.Get("rcpt-1")
	require.NoError(t, err)
	assert.Equal(t, contracts.StateOpen, got.TerminalState)
}

func TestSQLStore_GetMissing(t *testing.T) {
	s, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_ConsumeThenConsumeAgainFails(t *testing.T) {
	s, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(sampleEntry("rcpt-1")))
	require.NoError(t, s.CompareAndConsume("rcpt-1", time.Now()))

	err = s.CompareAndConsume("rcpt-1", time.Now())
	assert.ErrorIs(t, err, ErrAlreadyConsumed)
}

func TestSQLStore_All_PreservesMintOrder(t *testing.T) {
	s, err := NewSQLStore(":memory:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(sampleEntry("rcpt-1")))
	require.NoError(t, s.Append(sampleEntry("rcpt-2")))
	require.NoError(t, s.Append(sampleEntry("rcpt-3")))

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"rcpt-1", "rcpt-2", "rcpt-3"},
		[]string{all[0].ReceiptID, all[1].ReceiptID, all[2].ReceiptID})
}

func TestSQLStore_RoundTripAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := "file:" + dir + "/ledger.db"

	s1, err := NewSQLStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Append(sampleEntry("rcpt-1")))
	require.NoError(t, s1.Close())

	s2, err := NewSQLStore(path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Get("rcpt-1")
	require.NoError(t, err)
	assert.Equal(t, "rcpt-1", got.ReceiptID)
}
