// Package audit implements the Executor's audit trail: one AuditRecord per
// terminal transition (spec.md §3, §4.4). Grounded on the teacher's
// audit/logger.go structured-event-logging shape, adapted from a
// tenant/actor access log to an operation/receipt authorization log.
package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/opslock/kernel/pkg/contracts"
)

// Recorder persists AuditRecords and exposes them for later inspection —
// e.g. to cross-check against the issuance ledger (spec.md §8).
type Recorder interface {
	Record(rec contracts.AuditRecord) error
	All() []contracts.AuditRecord
}

// Log is the default in-process Recorder: every record is appended to an
// in-memory slice (for the §8 cross-checks) and emitted as a structured
// slog event to the configured writer.
type Log struct {
	mu      sync.Mutex
	records []contracts.AuditRecord
	logger  *slog.Logger
}

// NewLog builds a Log that writes structured JSON lines to w via slog.
func NewLog(w io.Writer) *Log {
	handler := slog.NewJSONHandler(w, nil)
	return &Log{logger: slog.New(handler)}
}

func (l *Log) Record(rec contracts.AuditRecord) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	l.logger.Info("audit_record",
		"operation_id", rec.OperationID,
		"run_id", rec.RunID,
		"operation_kind", rec.OperationKind,
		"receipt_id", rec.ReceiptID,
		"status", rec.Status,
		"mode", rec.Mode,
		"error_code", rec.ErrorCode,
		"retry_count", rec.RetryCount,
		"raw", string(raw),
	)
	return nil
}

func (l *Log) All() []contracts.AuditRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]contracts.AuditRecord, len(l.records))
	copy(out, l.records)
	return out
}

// NewOperationID mints a fresh opaque identifier for one AuditRecord.
func NewOperationID() string {
	return "op-" + uuid.NewString()
}
