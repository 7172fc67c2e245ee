package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opslock/kernel/pkg/contracts"
)

func testPolicy() contracts.AuthorizationPolicy {
	return contracts.AuthorizationPolicy{
		PolicyID: "pol-1",
		Version:  "v1",
		Rules: map[contracts.OperationKind]contracts.RuleSet{
			contracts.OperationPublishRelease: {
				AllowedRepositories: []string{"omega/*"},
				RequireEvidence:     []string{"approval_count >= 1"},
			},
			contracts.OperationTagRepo: {
				AllowedRepositories: []string{"omega/*"},
			},
		},
	}
}

func TestEngine_Validate_UnknownOperationKind(t *testing.T) {
	e := NewEngine(testPolicy())
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationOpenPR, Repository: "omega/app"}

	v := e.Validate(req, &contracts.AuthorizationEvidence{})
	require.NotNil(t, v)
	assert.Equal(t, ReasonNoPolicyForKind, v.Reason)
}

func TestEngine_Validate_RepositoryNotAllowed(t *testing.T) {
	e := NewEngine(testPolicy())
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "random/x"}

	v := e.Validate(req, &contracts.AuthorizationEvidence{Approvers: []string{"a"}})
	require.NotNil(t, v)
	assert.Equal(t, ReasonRepositoryNotAllowed, v.Reason)
}

func TestEngine_Validate_EvidenceRequirementNotMet(t *testing.T) {
	e := NewEngine(testPolicy())
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}

	v := e.Validate(req, &contracts.AuthorizationEvidence{})
	require.NotNil(t, v)
	assert.Equal(t, ReasonEvidenceRequirementNotMet, v.Reason)
}

func TestEngine_Validate_HappyPath(t *testing.T) {
	e := NewEngine(testPolicy())
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationPublishRelease, Repository: "omega/app"}

	v := e.Validate(req, &contracts.AuthorizationEvidence{Approvers: []string{"a"}})
	assert.Nil(t, v)
}

func TestEngine_Validate_NoRepositoryRestriction(t *testing.T) {
	e := NewEngine(testPolicy())
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationTagRepo, Repository: "omega/app"}

	v := e.Validate(req, &contracts.AuthorizationEvidence{})
	assert.Nil(t, v)
}

func TestEngine_Validate_GlobQuestionMark(t *testing.T) {
	p := contracts.AuthorizationPolicy{
		Rules: map[contracts.OperationKind]contracts.RuleSet{
			contracts.OperationTagRepo: {AllowedRepositories: []string{"omega/ap?"}},
		},
	}
	e := NewEngine(p)
	req := &contracts.OperationRequest{RunID: "r-1", OperationKind: contracts.OperationTagRepo, Repository: "omega/app"}

	assert.Nil(t, e.Validate(req, &contracts.AuthorizationEvidence{}))
}
