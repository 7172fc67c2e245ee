// Package platform defines the Executor's external collaborator: the
// hosting-platform client (spec.md §6). No concrete GitHub (or similar) SDK
// is vendored here — the interface is the contract, and FakeClient below is
// an in-memory stand-in suitable for demos and tests.
package platform

import "context"

// ErrorCode names the controlled vocabulary a platform client error maps
// to for retryability (spec.md §6 "Errors from the client are mapped by
// name to retryability").
type ErrorCode string

const (
	ErrTimeout            ErrorCode = "timeout"
	ErrConnectionError    ErrorCode = "connection_error"
	ErrRateLimited        ErrorCode = "rate_limited"
	ErrServiceUnavailable ErrorCode = "service_unavailable"
	ErrFatal              ErrorCode = "fatal"
)

// transientCodes is the set of codes the Executor's recovery logic retries
// (spec.md §4.4 "Recovery").
var transientCodes = map[ErrorCode]bool{
	ErrTimeout:            true,
	ErrConnectionError:    true,
	ErrRateLimited:        true,
	ErrServiceUnavailable: true,
}

// Retryable reports whether code is one of the four transient codes.
func Retryable(code ErrorCode) bool {
	return transientCodes[code]
}

// Error is returned by Client methods; Code drives the Executor's retry
// decision.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// CreateReleaseInput / Output mirror spec.md §6's create_release row.
type CreateReleaseInput struct {
	Owner       string
	Repo        string
	TagName     string
	ReleaseName string
	Body        string
	Draft       bool
	Prerelease  bool
}

type CreateReleaseOutput struct {
	ID          int64
	URL         string
	HTMLURL     string
	TagName     string
	Name        string
	Draft       bool
	Prerelease  bool
	CreatedAt   string
	PublishedAt string
}

// CreateTagInput / Output mirror spec.md §6's create_tag row.
type CreateTagInput struct {
	Owner   string
	Repo    string
	TagName string
	SHA     string
	Message string
}

type CreateTagOutput struct {
	NodeID  string
	Tag     string
	SHA     string
	URL     string
	Tagger  string
	Object  string
	Message string
}

// CreatePullRequestInput / Output mirror spec.md §6's create_pull_request row.
type CreatePullRequestInput struct {
	Owner string
	Repo  string
	Title string
	Body  string
	Head  string
	Base  string
}

type CreatePullRequestOutput struct {
	ID        int64
	Number    int
	State     string
	Title     string
	Body      string
	URL       string
	HTMLURL   string
	Head      string
	Base      string
	CreatedAt string
	UpdatedAt string
}

// Client is the external collaborator the Executor invokes to perform the
// actual side effect against the hosting platform.
type Client interface {
	CreateRelease(ctx context.Context, in CreateReleaseInput) (*CreateReleaseOutput, error)
	CreateTag(ctx context.Context, in CreateTagInput) (*CreateTagOutput, error)
	CreatePullRequest(ctx context.Context, in CreatePullRequestInput) (*CreatePullRequestOutput, error)
}
