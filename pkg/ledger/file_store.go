package ledger

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/opslock/kernel/pkg/contracts"
)

var errAlreadyPresent = errors.New("ledger: receipt_id already present")

// FileStore implements Store over a local JSON file, for operators who want
// the ledger to survive a process restart without standing up a database.
// Grounded on the same injectable-durability pattern as the teacher's
// store/ledger/file_ledger.go: every mutation rewrites the whole file under
// a mutex.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]contracts.LedgerEntry
}

// NewFileStore opens (or creates) the ledger file at path.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{path: path, data: make(map[string]contracts.LedgerEntry)}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	if _, err := os.Stat(f.path); os.IsNotExist(err) {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, &f.data)
}

func (f *FileStore) save() error {
	raw, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, raw, 0o600)
}

func (f *FileStore) Append(entry contracts.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.data[entry.ReceiptID]; exists {
		return errAlreadyPresent
	}
	f.data[entry.ReceiptID] = entry
	return f.save()
}

func (f *FileStore) Get(receiptID string) (contracts.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, exists := f.data[receiptID]
	if !exists {
		return contracts.LedgerEntry{}, ErrNotFound
	}
	return entry, nil
}

func (f *FileStore) CompareAndConsume(receiptID string, consumedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, exists := f.data[receiptID]
	if !exists {
		return ErrNotFound
	}
	if entry.TerminalState == contracts.StateConsumed {
		return ErrAlreadyConsumed
	}

	entry.TerminalState = contracts.StateConsumed
	ts := consumedAt
	entry.ConsumedAt = &ts
	f.data[receiptID] = entry
	return f.save()
}

func (f *FileStore) All() ([]contracts.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]contracts.LedgerEntry, 0, len(f.data))
	for _, entry := range f.data {
		out = append(out, entry)
	}
	return out, nil
}
