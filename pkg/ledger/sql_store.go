package ledger

import (
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, registers "sqlite"

	"github.com/opslock/kernel/pkg/contracts"
)

// SQLStore implements Store over a SQL database via database/sql, for
// deployments that want the issuance ledger in the same database as the
// rest of their operational data rather than a standalone JSON file.
// Grounded on the teacher's pattern of driving persistence through
// database/sql with a registered driver import (the teacher wires
// modernc.org/sqlite and lib/pq the same way for its own stores); we pick
// the pure-Go sqlite driver so the ledger never needs cgo.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore opens dataSourceName (e.g. "file:ledger.db?cache=shared") and
// ensures the ledger table exists.
func NewSQLStore(dataSourceName string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS issuance_ledger (
			receipt_id     TEXT PRIMARY KEY,
			run_id         TEXT NOT NULL,
			operation_kind TEXT NOT NULL,
			enforceable    INTEGER NOT NULL,
			issued_at      TEXT NOT NULL,
			policy_id      TEXT NOT NULL,
			terminal_state TEXT NOT NULL,
			consumed_at    TEXT,
			mint_order     INTEGER NOT NULL
		)
	`)
	return err
}

func (s *SQLStore) Append(entry contracts.LedgerEntry) error {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM issuance_ledger`).Scan(&count); err != nil {
		return err
	}

	_, err := s.db.Exec(
		`INSERT INTO issuance_ledger (receipt_id, run_id, operation_kind, enforceable, issued_at, policy_id, terminal_state, mint_order)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ReceiptID, entry.RunID, string(entry.OperationKind), entry.Enforceable,
		entry.IssuedAt.UTC().Format(time.RFC3339Nano), entry.PolicyID, string(entry.TerminalState), count,
	)
	if err != nil {
		return errors.New("ledger: receipt_id already present")
	}
	return nil
}

func (s *SQLStore) Get(receiptID string) (contracts.LedgerEntry, error) {
	row := s.db.QueryRow(
		`SELECT receipt_id, run_id, operation_kind, enforceable, issued_at, policy_id, terminal_state, consumed_at
		 FROM issuance_ledger WHERE receipt_id = ?`, receiptID,
	)
	entry, _, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return contracts.LedgerEntry{}, ErrNotFound
	}
	return entry, err
}

func (s *SQLStore) CompareAndConsume(receiptID string, consumedAt time.Time) error {
	res, err := s.db.Exec(
		`UPDATE issuance_ledger SET terminal_state = ?, consumed_at = ?
		 WHERE receipt_id = ? AND terminal_state != ?`,
		string(contracts.StateConsumed), consumedAt.UTC().Format(time.RFC3339Nano),
		receiptID, string(contracts.StateConsumed),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, getErr := s.Get(receiptID); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrAlreadyConsumed
	}
	return nil
}

func (s *SQLStore) All() ([]contracts.LedgerEntry, error) {
	rows, err := s.db.Query(
		`SELECT receipt_id, run_id, operation_kind, enforceable, issued_at, policy_id, terminal_state, consumed_at
		 FROM issuance_ledger ORDER BY mint_order ASC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []contracts.LedgerEntry
	for rows.Next() {
		entry, _, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntry(row rowScanner) (contracts.LedgerEntry, bool, error) {
	var entry contracts.LedgerEntry
	var kind, issuedAt, terminalState string
	var consumedAt sql.NullString

	err := row.Scan(&entry.ReceiptID, &entry.RunID, &kind, &entry.Enforceable, &issuedAt, &entry.PolicyID, &terminalState, &consumedAt)
	if err != nil {
		return entry, false, err
	}

	entry.OperationKind = contracts.OperationKind(kind)
	entry.TerminalState = contracts.TerminalState(terminalState)
	if t, err := time.Parse(time.RFC3339Nano, issuedAt); err == nil {
		entry.IssuedAt = t
	}
	if consumedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, consumedAt.String); err == nil {
			entry.ConsumedAt = &t
		}
	}
	return entry, true, nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
