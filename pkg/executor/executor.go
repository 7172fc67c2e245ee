// Package executor implements the Receipt-Enforcing Executor (spec.md
// §4.4): the only component permitted to invoke the platform client, and
// the component that marks a receipt consumed via the Authority once a
// platform call has succeeded.
// It refuses to act without a valid, enforceable, correctly bound receipt,
// and it always produces an AuditRecord, win or lose.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/opslock/kernel/pkg/audit"
	"github.com/opslock/kernel/pkg/authority"
	"github.com/opslock/kernel/pkg/binding"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/platform"
	"github.com/opslock/kernel/pkg/ratelimit"
	"github.com/opslock/kernel/pkg/retry"
)

// ErrorKind is the executor-side error taxonomy (spec.md §7), each mapping
// to exactly one AuditStatus.
type ErrorKind string

const (
	ErrKindModeViolation       ErrorKind = "mode_violation"
	ErrKindBinding             ErrorKind = "receipt_binding_error"
	ErrKindFatalPlatform       ErrorKind = "fatal_platform_error"
	ErrKindLedgerInconsistency ErrorKind = "ledger_inconsistency"
)

// Error wraps an executor-side failure with its audit-mapped kind.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Code, e.Message)
}

// Clock lets tests freeze the executor's notion of "now".
type Clock func() time.Time

// Config controls Executor construction.
type Config struct {
	Mode           contracts.Mode
	PlatformClient platform.Client
	Authority      *authority.Authority
	AuditLog       audit.Recorder
	// RateLimitPerHour bounds platform calls with a token bucket holding up
	// to RateLimitPerHour tokens and refilling at RateLimitPerHour per hour;
	// zero disables limiting. It is not a sliding window: a full bucket plus
	// the hour's refill can admit up to twice RateLimitPerHour calls within
	// one hour. Ignored if RateLimiter is set explicitly.
	RateLimitPerHour int
	// RateLimiter overrides the default single-process rate manager (built
	// from RateLimitPerHour via ratelimit.NewLocalLimiter) — pass a
	// ratelimit.NewRedisLimiter(...) to share one rate budget across a
	// fleet of Executor processes.
	RateLimiter    ratelimit.Limiter
	EnableRecovery bool
	Clock          Clock
}

// Executor enforces: mode gate → binding check → rate check → platform call
// (with retry) → consume → audit (spec.md §4.4's state machine).
type Executor struct {
	mode           contracts.Mode
	client         platform.Client
	authority      *authority.Authority
	validator      *binding.Validator
	auditLog       audit.Recorder
	limiter        ratelimit.Limiter
	enableRecovery bool
	clock          Clock
}

// New constructs an Executor. Construction fails immediately if cfg.Mode is
// not exactly "prod" or "dry_run" (spec.md §4.4's exact-match mode gate —
// scenario 5 in spec.md §8: mode="Prod" with a capital P must fail here).
func New(cfg Config) (*Executor, error) {
	if !cfg.Mode.Valid() {
		return nil, &Error{Kind: ErrKindModeViolation, Code: "invalid_mode", Message: fmt.Sprintf("mode %q is not one of prod, dry_run", cfg.Mode)}
	}
	if cfg.Authority == nil {
		return nil, fmt.Errorf("executor: authority is required")
	}
	if cfg.PlatformClient == nil {
		return nil, fmt.Errorf("executor: platform client is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = ratelimit.NewLocalLimiter(cfg.RateLimitPerHour)
	}

	return &Executor{
		mode:           cfg.Mode,
		client:         cfg.PlatformClient,
		authority:      cfg.Authority,
		validator:      binding.New().WithClock(func() time.Time { return clock() }),
		auditLog:       cfg.AuditLog,
		limiter:        limiter,
		enableRecovery: cfg.EnableRecovery,
		clock:          clock,
	}, nil
}

// call is the unified shape every OperationKind entry point funnels through:
// mode gate, binding check, rate check, then the retrying platform
// invocation, consumption, and audit emission.
func (e *Executor) call(
	ctx context.Context,
	runID string,
	receipt *contracts.Receipt,
	kind contracts.OperationKind,
	repository string,
	invoke func(ctx context.Context) (map[string]interface{}, error),
) (*contracts.AuditRecord, error) {
	startedAt := e.clock().UTC()
	receiptID := contracts.NoReceipt
	if receipt != nil {
		receiptID = receipt.ReceiptID
	}

	rec := contracts.AuditRecord{
		OperationID:   audit.NewOperationID(),
		RunID:         runID,
		OperationKind: kind,
		ReceiptID:     receiptID,
		Repository:    repository,
		Mode:          e.mode,
		StartedAt:     startedAt,
	}

	finish := func(status contracts.AuditStatus, result map[string]interface{}, errCode, errMsg string, retryCount int) (*contracts.AuditRecord, error) {
		rec.Status = status
		rec.Result = result
		rec.ErrorCode = errCode
		rec.ErrorMessage = errMsg
		rec.RetryCount = retryCount
		rec.CompletedAt = e.clock().UTC()
		if e.auditLog != nil {
			_ = e.auditLog.Record(rec)
		}
		if errMsg != "" {
			kind := statusToKind(status)
			if errCode == "consume_after_success" {
				kind = ErrKindLedgerInconsistency
			}
			return &rec, &Error{Kind: kind, Code: errCode, Message: errMsg}
		}
		return &rec, nil
	}

	// Mode gate.
	if e.mode != contracts.ModeProd {
		return finish(contracts.StatusRejectedByMode, nil, "mode_not_prod", "executor refuses to act outside prod mode", 0)
	}

	// Binding check.
	if receipt == nil {
		return finish(contracts.StatusRejectedByAuth, nil, string(binding.CodeAdvisoryRejected), "no receipt supplied", 0)
	}
	if bindErr := e.validator.Validate(receipt, binding.Expected{RunID: runID, OperationKind: kind}); bindErr != nil {
		return finish(contracts.StatusRejectedByAuth, nil, string(bindErr.Code), bindErr.Message, 0)
	}

	// Rate check — surfaced as fatal, never blocking (spec.md §4.4).
	allowed, err := e.limiter.Allow(ctx, runID)
	if err != nil {
		return finish(contracts.StatusFailed, nil, "rate_limiter_error", err.Error(), 0)
	}
	if !allowed {
		return finish(contracts.StatusFailed, nil, "rate_limited", "platform call rate limit exhausted", 0)
	}

	// Platform call, with recovery over transient errors.
	var result map[string]interface{}
	var lastErr error
	attempts := 1
	if e.enableRecovery {
		attempts = retry.MaxAttempts
	}

	retryCount := 0
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return finish(contracts.StatusFailed, nil, "timeout", ctx.Err().Error(), retryCount)
			case <-time.After(retry.Backoff(attempt - 1)):
			}
		}

		result, lastErr = invoke(ctx)
		if lastErr == nil {
			break
		}

		platErr, ok := lastErr.(*platform.Error)
		if !ok || !platform.Retryable(platErr.Code) {
			code := "fatal_platform_error"
			if ok {
				code = string(platErr.Code)
			}
			return finish(contracts.StatusFailed, nil, code, lastErr.Error(), retryCount)
		}
		retryCount++
		if attempt == attempts-1 {
			return finish(contracts.StatusFailed, nil, string(platErr.Code), lastErr.Error(), retryCount)
		}
	}

	// Consumption happens after platform success, before the audit record
	// (spec.md §4.4 "Consumption"). A failure here is an invariant
	// violation, not an ordinary rejection.
	if err := e.authority.VerifyAndConsume(receipt); err != nil {
		return finish(contracts.StatusFailed, result, "consume_after_success", err.Error(), retryCount)
	}

	return finish(contracts.StatusSuccess, result, "", "", retryCount)
}

func statusToKind(status contracts.AuditStatus) ErrorKind {
	switch status {
	case contracts.StatusRejectedByMode:
		return ErrKindModeViolation
	case contracts.StatusRejectedByAuth:
		return ErrKindBinding
	case contracts.StatusFailed:
		return ErrKindFatalPlatform
	default:
		return ErrKindFatalPlatform
	}
}

// CreateRelease is the publish_release entry point.
func (e *Executor) CreateRelease(ctx context.Context, runID string, receipt *contracts.Receipt, in platform.CreateReleaseInput) (*contracts.AuditRecord, error) {
	return e.call(ctx, runID, receipt, contracts.OperationPublishRelease, in.Owner+"/"+in.Repo, func(ctx context.Context) (map[string]interface{}, error) {
		out, err := e.client.CreateRelease(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":           out.ID,
			"url":          out.URL,
			"html_url":     out.HTMLURL,
			"tag_name":     out.TagName,
			"name":         out.Name,
			"draft":        out.Draft,
			"prerelease":   out.Prerelease,
			"created_at":   out.CreatedAt,
			"published_at": out.PublishedAt,
		}, nil
	})
}

// CreateTag is the tag_repo entry point.
func (e *Executor) CreateTag(ctx context.Context, runID string, receipt *contracts.Receipt, in platform.CreateTagInput) (*contracts.AuditRecord, error) {
	return e.call(ctx, runID, receipt, contracts.OperationTagRepo, in.Owner+"/"+in.Repo, func(ctx context.Context) (map[string]interface{}, error) {
		out, err := e.client.CreateTag(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"node_id": out.NodeID,
			"tag":     out.Tag,
			"sha":     out.SHA,
			"url":     out.URL,
			"message": out.Message,
		}, nil
	})
}

// CreatePullRequest is the open_pr entry point.
func (e *Executor) CreatePullRequest(ctx context.Context, runID string, receipt *contracts.Receipt, in platform.CreatePullRequestInput) (*contracts.AuditRecord, error) {
	return e.call(ctx, runID, receipt, contracts.OperationOpenPR, in.Owner+"/"+in.Repo, func(ctx context.Context) (map[string]interface{}, error) {
		out, err := e.client.CreatePullRequest(ctx, in)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"id":         out.ID,
			"number":     out.Number,
			"state":      out.State,
			"title":      out.Title,
			"url":        out.URL,
			"html_url":   out.HTMLURL,
			"head":       out.Head,
			"base":       out.Base,
			"created_at": out.CreatedAt,
			"updated_at": out.UpdatedAt,
		}, nil
	})
}
