package contracts

// RuleSet is the per-OperationKind policy the Policy Engine evaluates a
// request against (spec.md §3, §4.1).
type RuleSet struct {
	AllowedRepositories []string          `json:"allowed_repositories,omitempty"`
	RequireEvidence     []string          `json:"require_evidence,omitempty"`
	RateLimit           *RateLimitAdvisory `json:"rate_limit,omitempty"`
}

// RateLimitAdvisory is documented policy but not enforced by the Policy
// Engine itself (spec.md §4.1 rule 4). No component reads it: the
// Executor's rate manager takes its budget from executor.Config instead.
type RateLimitAdvisory struct {
	MaxPerHour int `json:"max_per_hour"`
}

// AuthorizationPolicy is the declarative ruleset the Policy Engine
// evaluates every OperationRequest against.
type AuthorizationPolicy struct {
	PolicyID string                    `json:"policy_id"`
	Version  string                    `json:"version"`
	Rules    map[OperationKind]RuleSet `json:"rules"`
}

// OperationSpec and PublicationPlan (spec.md §6's planner output shape) are
// defined in package planner, the external collaborator that owns them —
// the Policy Engine and Authority only ever see an OperationRequest.
