// Package ledger implements the Issuance Ledger: the Receipt Authority's
// append-only record of every receipt minted and its terminal state
// (spec.md §3, §4.2). verify_and_consume's linearization guarantee (spec.md
// §5) lives here: CompareAndConsume is a compare-and-set on the stored entry, so two
// concurrent attempts to consume the same receipt produce exactly one
// success.
package ledger

import (
	"errors"
	"sync"
	"time"

	"github.com/opslock/kernel/pkg/contracts"
)

// ErrNotFound is returned when a receipt_id has no ledger entry.
var ErrNotFound = errors.New("ledger: receipt_id not found")

// ErrAlreadyConsumed is returned by CompareAndConsume when the entry's terminal state
// is already "consumed".
var ErrAlreadyConsumed = errors.New("ledger: receipt already consumed")

// Store is the persistence seam for the Issuance Ledger. Per spec.md §1,
// persistent storage is an external collaborator; MemoryStore below is the
// in-memory reference implementation every Authority uses by default.
type Store interface {
	Append(entry contracts.LedgerEntry) error
	Get(receiptID string) (contracts.LedgerEntry, error)
	CompareAndConsume(receiptID string, consumedAt time.Time) error
	All() ([]contracts.LedgerEntry, error)
}

// MemoryStore is the default in-process Store: a mutex-guarded map, never
// discarding entries, exactly mirroring the ordering and durability
// guarantees spec.md §5 asks of the ledger without taking a dependency on
// any external database.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]contracts.LedgerEntry
	order   []string
}

// NewMemoryStore returns an empty, ready-to-use ledger store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]contracts.LedgerEntry)}
}

// Append inserts a new "open" entry. Mint order is preserved via order,
// satisfying spec.md §5's "issuance ledger reflects mint order" guarantee.
func (m *MemoryStore) Append(entry contracts.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[entry.ReceiptID]; exists {
		return errors.New("ledger: receipt_id already present")
	}
	m.entries[entry.ReceiptID] = entry
	m.order = append(m.order, entry.ReceiptID)
	return nil
}

// Get returns the ledger entry for receiptID.
func (m *MemoryStore) Get(receiptID string) (contracts.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[receiptID]
	if !exists {
		return contracts.LedgerEntry{}, ErrNotFound
	}
	return entry, nil
}

// CompareAndConsume atomically transitions receiptID's entry to "consumed"
// iff it is not already consumed. This is the linearization point spec.md
// §5 requires: under the mutex, exactly one caller observes success.
func (m *MemoryStore) CompareAndConsume(receiptID string, consumedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.entries[receiptID]
	if !exists {
		return ErrNotFound
	}
	if entry.TerminalState == contracts.StateConsumed {
		return ErrAlreadyConsumed
	}

	entry.TerminalState = contracts.StateConsumed
	ts := consumedAt
	entry.ConsumedAt = &ts
	m.entries[receiptID] = entry
	return nil
}

// All returns every entry ever appended, in mint order. The ledger never
// discards entries (spec.md §3).
func (m *MemoryStore) All() ([]contracts.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]contracts.LedgerEntry, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.entries[id])
	}
	return out, nil
}
