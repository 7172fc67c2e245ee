// Command opskernel is the demo/ops driver that wires the Receipt
// Authority, Binding Validator, Executor, and Proof Chain Generator
// together (spec.md §6). Grounded on the teacher's cmd/helm/main.go
// Run(args, stdout, stderr) int dispatcher shape.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/opslock/kernel/pkg/approval"
	"github.com/opslock/kernel/pkg/audit"
	"github.com/opslock/kernel/pkg/authority"
	"github.com/opslock/kernel/pkg/binding"
	"github.com/opslock/kernel/pkg/bridge"
	"github.com/opslock/kernel/pkg/config"
	"github.com/opslock/kernel/pkg/contracts"
	"github.com/opslock/kernel/pkg/crypto"
	"github.com/opslock/kernel/pkg/executor"
	"github.com/opslock/kernel/pkg/ledger"
	"github.com/opslock/kernel/pkg/planner"
	"github.com/opslock/kernel/pkg/platform"
	"github.com/opslock/kernel/pkg/policy"
	"github.com/opslock/kernel/pkg/proofchain"
	"github.com/opslock/kernel/pkg/ratelimit"
)

// Exit codes (spec.md §6).
const (
	ExitSuccess             = 0
	ExitAuthorizationError  = 2
	ExitModeViolation       = 3
	ExitPlatformFailure     = 4
	ExitLedgerInconsistency = 5
)

const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[37m"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the testable entry point: args[0] is the program name, args[1] the
// subcommand.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return ExitSuccess
	}

	switch args[1] {
	case "mint":
		return runMint(args[2:], stdout, stderr)
	case "consume":
		return runConsume(args[2:], stdout, stderr)
	case "demo":
		return runDemo(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return ExitSuccess
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return ExitAuthorizationError
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sopskernel%s\n", colorBold+colorBlue, colorReset)
	fmt.Fprintf(w, "%sAn authorization kernel for code-hosting side effects.%s\n", colorGray, colorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  opskernel <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sCOMMANDS:%s\n", colorBold, colorReset)
	fmt.Fprintln(w, "  mint      Mint a receipt for one operation request")
	fmt.Fprintln(w, "  consume   Run the Binding Validator against a minted receipt and consume it via the Authority")
	fmt.Fprintln(w, "  demo      Run an end-to-end happy-path scenario against a fake platform")
	fmt.Fprintln(w, "  doctor    Check environment configuration")
	fmt.Fprintln(w, "  help      Show this help")
	fmt.Fprintln(w, "")
}

func loadAuthority(cfg *config.Config) (*authority.Authority, ledger.Store, error) {
	pol, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return nil, nil, err
	}

	var store ledger.Store
	switch {
	case cfg.LedgerDSN != "":
		store, err = ledger.NewSQLStore(cfg.LedgerDSN)
		if err != nil {
			return nil, nil, err
		}
	case cfg.LedgerFile != "":
		store, err = ledger.NewFileStore(cfg.LedgerFile)
		if err != nil {
			return nil, nil, err
		}
	}

	a, err := authority.New("opskernel-authority", cfg.AuthoritySecret, pol, "opskernel-executor", store)
	if err != nil {
		return nil, nil, err
	}
	return a, store, nil
}

// tokenList accumulates repeated -approval-token flags into a slice.
type tokenList []string

func (t *tokenList) String() string { return fmt.Sprint([]string(*t)) }
func (t *tokenList) Set(v string) error {
	*t = append(*t, v)
	return nil
}

func runMint(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("mint", flag.ContinueOnError)
	fs.SetOutput(stderr)
	runID := fs.String("run-id", "", "run identifier")
	kind := fs.String("kind", "", "operation kind (publish_release|tag_repo|open_pr)")
	repo := fs.String("repository", "", "owner/name")
	var approvalTokens tokenList
	fs.Var(&approvalTokens, "approval-token", "signed approval token (repeatable); verified via APPROVER_KEYS_FILE")
	if err := fs.Parse(args); err != nil {
		return ExitAuthorizationError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	a, _, err := loadAuthority(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	req := &contracts.OperationRequest{
		RunID:         *runID,
		OperationKind: contracts.OperationKind(*kind),
		Repository:    *repo,
	}
	if !req.OperationKind.Valid() {
		fmt.Fprintf(stderr, "invalid operation_kind: %s\n", *kind)
		return ExitAuthorizationError
	}

	var evidence *contracts.AuthorizationEvidence
	if len(approvalTokens) > 0 {
		if cfg.ApproverKeysFile == "" {
			fmt.Fprintln(stderr, "approval-token given but APPROVER_KEYS_FILE is not set")
			return ExitAuthorizationError
		}
		keys, err := loadApproverKeys(cfg.ApproverKeysFile)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitAuthorizationError
		}
		approvers, err := approval.NewVerifier(keys).VerifyAll(approvalTokens)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return ExitAuthorizationError
		}
		evidence = &contracts.AuthorizationEvidence{
			CheckedAt: time.Now(),
			PolicyID:  "cli-approval-tokens",
			Decision:  contracts.DecisionApproved,
			Approvers: approvers,
		}
	}

	receipt, err := a.Mint(req, evidence)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(receipt)

	if !receipt.Enforceable {
		return ExitAuthorizationError
	}
	return ExitSuccess
}

// loadApproverKeys reads a JSON object of key-id -> secret pairs used to
// verify signed approval tokens (pkg/approval).
func loadApproverKeys(path string) (map[string][]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading approver keys file: %w", err)
	}
	var asStrings map[string]string
	if err := json.Unmarshal(raw, &asStrings); err != nil {
		return nil, fmt.Errorf("parsing approver keys file: %w", err)
	}
	keys := make(map[string][]byte, len(asStrings))
	for kid, secret := range asStrings {
		keys[kid] = []byte(secret)
	}
	return keys, nil
}

func runConsume(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("consume", flag.ContinueOnError)
	fs.SetOutput(stderr)
	receiptFile := fs.String("receipt", "", "path to a minted receipt JSON file")
	runID := fs.String("run-id", "", "expected run_id")
	if err := fs.Parse(args); err != nil {
		return ExitAuthorizationError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	a, _, err := loadAuthority(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	raw, err := os.ReadFile(*receiptFile)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}
	var receipt contracts.Receipt
	if err := json.Unmarshal(raw, &receipt); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	v := binding.New()
	if bindErr := v.Validate(&receipt, binding.Expected{RunID: *runID, OperationKind: receipt.OperationKind}); bindErr != nil {
		fmt.Fprintln(stderr, bindErr)
		return ExitAuthorizationError
	}

	if err := a.VerifyAndConsume(&receipt); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	fmt.Fprintln(stdout, "consumed:", receipt.ReceiptID)
	return ExitSuccess
}

// newRateLimiter builds the Executor's rate manager from cfg: a
// RedisLimiter if RATE_LIMIT_REDIS_ADDR is set (shared across a fleet of
// Executor processes), otherwise nil so executor.New falls back to its
// default single-process LocalLimiter.
func newRateLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RateLimitRedisAddr == "" {
		return nil
	}
	return ratelimit.NewRedisLimiter(cfg.RateLimitRedisAddr, "", 0, cfg.RateLimitPerHour, "opskernel")
}

func runDemo(_ []string, stdout, stderr io.Writer) int {
	pol := contracts.AuthorizationPolicy{
		PolicyID: "demo-policy",
		Version:  "v1",
		Rules: map[contracts.OperationKind]contracts.RuleSet{
			contracts.OperationPublishRelease: {AllowedRepositories: []string{"opslock/*"}},
		},
	}

	a, err := authority.New("opskernel-authority", []byte("demo-signing-secret-at-least-32bytes"), pol, "opskernel-executor", nil)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	client := platform.NewFakeClient()
	auditLog := audit.NewLog(stderr)
	ex, err := executor.New(executor.Config{
		Mode:           contracts.ModeProd,
		PlatformClient: client,
		Authority:      a,
		AuditLog:       auditLog,
		EnableRecovery: true,
		RateLimiter:    newRateLimiter(&config.Config{RateLimitRedisAddr: os.Getenv("RATE_LIMIT_REDIS_ADDR"), RateLimitPerHour: 5000}),
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitModeViolation
	}

	proofSigner, err := crypto.NewSigner([]byte("demo-signing-secret-at-least-32bytes"), "opskernel-proof-chain")
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}
	proof := proofchain.New(proofSigner)

	plan := planner.New("demo-run-1", contracts.ModeProd, time.Now(), []planner.OperationSpec{
		{
			OperationID:   "op-1",
			OperationKind: contracts.OperationPublishRelease,
			Repository:    "opslock/kernel",
			Evidence:      &contracts.AuthorizationEvidence{Approvers: []string{"demo-approver"}},
		},
	})
	if _, err := proof.AddStep("plan", "planner", "emit publication plan", plan, nil); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	b := bridge.New(a)
	result, err := b.MintPlan(plan)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}
	if !result.ExecutionReady {
		fmt.Fprintln(stderr, "plan blocked:", result.BlockedOperations)
		return ExitAuthorizationError
	}

	receipt := result.Receipts["op-1"]
	if _, err := proof.AddStep("mint", "authority", "mint receipt for op-1", nil, receipt); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitAuthorizationError
	}

	rec, err := ex.CreateRelease(context.Background(), plan.RunID, receipt, platform.CreateReleaseInput{
		Owner: "opslock", Repo: "kernel", TagName: "v0.1.0", ReleaseName: "demo release",
	})
	if err != nil {
		fmt.Fprintln(stderr, err)
		if rec != nil && rec.ErrorCode == "consume_after_success" {
			return ExitLedgerInconsistency
		}
		return ExitPlatformFailure
	}
	if _, err := proof.AddStep("execute", "executor", "create release via platform client", nil, rec); err != nil {
		fmt.Fprintln(stderr, err)
		return ExitPlatformFailure
	}

	chain, err := proof.Finalize()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return ExitPlatformFailure
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(map[string]interface{}{"audit_record": rec, "proof_chain": chain})

	if rec.Status != contracts.StatusSuccess {
		return ExitPlatformFailure
	}
	return ExitSuccess
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func runDoctor(stdout, stderr io.Writer) int {
	ok := true

	check := func(name string, present bool, detail string) {
		status := colorGreen + "ok" + colorReset
		if !present {
			status = colorYellow + "missing" + colorReset
			ok = false
		}
		fmt.Fprintf(stdout, "  %-20s %-8s %s\n", name, status, detail)
	}

	secret := os.Getenv("AUTHORITY_SECRET")
	check("AUTHORITY_SECRET", secret != "", fmt.Sprintf("%d bytes", len(secret)))
	check("PLATFORM_TOKEN", os.Getenv("PLATFORM_TOKEN") != "", "required only in prod mode")

	policyFile := os.Getenv("POLICY_FILE")
	if policyFile != "" {
		if _, err := policy.LoadFile(policyFile); err != nil {
			check("POLICY_FILE", false, err.Error())
		} else {
			check("POLICY_FILE", true, policyFile)
		}
	} else {
		check("POLICY_FILE", false, "not set")
	}

	fmt.Fprintf(stdout, "  %-20s %-8s %s\n", "LEDGER_FILE", colorGray+"info"+colorReset, envOrDefault("LEDGER_FILE", "(in-memory)"))
	fmt.Fprintf(stdout, "  %-20s %-8s %s\n", "LEDGER_DSN", colorGray+"info"+colorReset, envOrDefault("LEDGER_DSN", "(unset)"))
	fmt.Fprintf(stdout, "  %-20s %-8s %s\n", "APPROVER_KEYS_FILE", colorGray+"info"+colorReset, envOrDefault("APPROVER_KEYS_FILE", "(unset)"))

	rateLimiterCfg := &config.Config{
		RateLimitRedisAddr: os.Getenv("RATE_LIMIT_REDIS_ADDR"),
		RateLimitPerHour:   0,
	}
	rateLimiterKind := "in-process (golang.org/x/time/rate)"
	if newRateLimiter(rateLimiterCfg) != nil {
		rateLimiterKind = "shared via Redis at " + rateLimiterCfg.RateLimitRedisAddr
	}
	fmt.Fprintf(stdout, "  %-20s %-8s %s\n", "RATE_LIMIT_REDIS_ADDR", colorGray+"info"+colorReset, rateLimiterKind)

	if !ok {
		fmt.Fprintln(stderr, "one or more required settings are missing")
		return ExitAuthorizationError
	}
	return ExitSuccess
}
