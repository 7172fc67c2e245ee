package platform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FakeClient is an in-memory Client for demos and tests: it never touches
// the network. ScriptError lets a test force a specific call to fail N
// times with a given code before succeeding, to exercise the Executor's
// retry path deterministically.
type FakeClient struct {
	mu      sync.Mutex
	nextID  int64
	scripts map[string][]ErrorCode // key: method name, consumed front-to-back
}

// NewFakeClient returns a ready-to-use FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{scripts: make(map[string][]ErrorCode)}
}

// ScriptError queues code to be returned on the next N calls to method
// ("create_release", "create_tag", "create_pull_request"), in order.
func (f *FakeClient) ScriptError(method string, codes ...ErrorCode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[method] = append(f.scripts[method], codes...)
}

func (f *FakeClient) nextScripted(method string) (ErrorCode, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queue := f.scripts[method]
	if len(queue) == 0 {
		return "", false
	}
	f.scripts[method] = queue[1:]
	return queue[0], true
}

func (f *FakeClient) nextOutputID() int64 {
	return atomic.AddInt64(&f.nextID, 1)
}

func (f *FakeClient) CreateRelease(_ context.Context, in CreateReleaseInput) (*CreateReleaseOutput, error) {
	if code, scripted := f.nextScripted("create_release"); scripted {
		return nil, &Error{Code: code, Message: fmt.Sprintf("scripted failure creating release for %s/%s", in.Owner, in.Repo)}
	}
	id := f.nextOutputID()
	return &CreateReleaseOutput{
		ID:      id,
		URL:     fmt.Sprintf("https://platform.example/api/repos/%s/%s/releases/%d", in.Owner, in.Repo, id),
		HTMLURL: fmt.Sprintf("https://platform.example/%s/%s/releases/tag/%s", in.Owner, in.Repo, in.TagName),
		TagName:    in.TagName,
		Name:       in.ReleaseName,
		Draft:      in.Draft,
		Prerelease: in.Prerelease,
	}, nil
}

func (f *FakeClient) CreateTag(_ context.Context, in CreateTagInput) (*CreateTagOutput, error) {
	if code, scripted := f.nextScripted("create_tag"); scripted {
		return nil, &Error{Code: code, Message: fmt.Sprintf("scripted failure creating tag for %s/%s", in.Owner, in.Repo)}
	}
	return &CreateTagOutput{
		NodeID:  fmt.Sprintf("tag_%d", f.nextOutputID()),
		Tag:     in.TagName,
		SHA:     in.SHA,
		URL:     fmt.Sprintf("https://platform.example/api/repos/%s/%s/git/tags/%s", in.Owner, in.Repo, in.TagName),
		Message: in.Message,
	}, nil
}

func (f *FakeClient) CreatePullRequest(_ context.Context, in CreatePullRequestInput) (*CreatePullRequestOutput, error) {
	if code, scripted := f.nextScripted("create_pull_request"); scripted {
		return nil, &Error{Code: code, Message: fmt.Sprintf("scripted failure opening PR for %s/%s", in.Owner, in.Repo)}
	}
	num := int(f.nextOutputID())
	return &CreatePullRequestOutput{
		ID:      int64(num),
		Number:  num,
		State:   "open",
		Title:   in.Title,
		Body:    in.Body,
		URL:     fmt.Sprintf("https://platform.example/api/repos/%s/%s/pulls/%d", in.Owner, in.Repo, num),
		HTMLURL: fmt.Sprintf("https://platform.example/%s/%s/pull/%d", in.Owner, in.Repo, num),
		Head:    in.Head,
		Base:    in.Base,
	}, nil
}
