package contracts

import "time"

// AuditStatus is the terminal classification of one Executor call.
type AuditStatus string

const (
	StatusSuccess        AuditStatus = "success"
	StatusFailed         AuditStatus = "failed"
	StatusRejectedByAuth AuditStatus = "rejected_by_auth"
	StatusRejectedByMode AuditStatus = "rejected_by_mode"
)

// AuditRecord is the executor-side record of one terminal transition. Every
// call to an Executor entry point produces exactly one of these, even on
// rejection — the shape is constant so audit searches never special-case a
// missing receipt (ReceiptID is "NONE" when none was supplied).
type AuditRecord struct {
	OperationID      string                 `json:"operation_id"`
	RunID            string                 `json:"run_id"`
	OperationKind    OperationKind          `json:"operation_kind"`
	ReceiptID        string                 `json:"receipt_id"`
	Repository       string                 `json:"repository"`
	Status           AuditStatus            `json:"status"`
	Mode             Mode                   `json:"mode"`
	StartedAt        time.Time              `json:"started_at"`
	CompletedAt      time.Time              `json:"completed_at"`
	Result           map[string]interface{} `json:"result,omitempty"`
	ErrorCode        string                 `json:"error_code,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	PlatformResponse map[string]interface{} `json:"platform_response,omitempty"`
	RetryCount       int                    `json:"retry_count"`
}

// NoReceipt is used as AuditRecord.ReceiptID when no receipt was supplied to
// an Executor call at all (as opposed to an invalid one).
const NoReceipt = "NONE"
