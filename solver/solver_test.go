package solver

import (
	"context"
	"testing"

	"github.com/acme-core/acmecore/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectPicksFirstMatchingSolver(t *testing.T) {
	challenges := []protocol.Challenge{
		{Type: "dns-01", URL: "https://a/c1", Token: "t1"},
		{Type: "http-01", URL: "https://a/c2", Token: "t2"},
	}
	httpSolver := NewHTTPSolver(nil, nil)

	s, c, err := Select(challenges, []Solver{httpSolver})
	require.NoError(t, err)
	assert.Equal(t, protocol.ChallengeHTTP01, s.Type())
	assert.Equal(t, "t2", c.Token)
}

func TestSelectFailsWithNoSupportedChallenge(t *testing.T) {
	challenges := []protocol.Challenge{{Type: "dns-01", URL: "https://a/c1", Token: "t1"}}
	_, _, err := Select(challenges, []Solver{NewHTTPSolver(nil, nil)})
	require.Error(t, err)
	assert.Equal(t, "no supported challenge", err.Error())
}

func TestCleanUpBestEffortSwallowsError(t *testing.T) {
	ext := &Extension{
		ChallengeType: protocol.ChallengeHTTP01,
		ProvisionFunc: func(ctx context.Context, identifier, token, keyAuthorization string) error { return nil },
		CleanUpFunc: func(ctx context.Context, identifier, token, keyAuthorization string) error {
			return assert.AnError
		},
	}
	assert.NotPanics(t, func() {
		CleanUpBestEffort(context.Background(), ext, "example.com", "tok", "keyauth")
	})
}

func TestExtensionDelegatesToClosures(t *testing.T) {
	var provisioned, cleaned bool
	ext := &Extension{
		ChallengeType: protocol.ChallengeDNS01,
		ProvisionFunc: func(ctx context.Context, identifier, token, keyAuthorization string) error {
			provisioned = true
			return nil
		},
		CleanUpFunc: func(ctx context.Context, identifier, token, keyAuthorization string) error {
			cleaned = true
			return nil
		},
	}
	require.NoError(t, ext.Provision(context.Background(), "example.com", "tok", "keyauth"))
	require.NoError(t, ext.CleanUp(context.Background(), "example.com", "tok", "keyauth"))
	assert.True(t, provisioned)
	assert.True(t, cleaned)
}

func TestExtensionCleanUpDefaultsToNoop(t *testing.T) {
	ext := &Extension{
		ChallengeType: protocol.ChallengeDNS01,
		ProvisionFunc: func(ctx context.Context, identifier, token, keyAuthorization string) error { return nil },
	}
	assert.NoError(t, ext.CleanUp(context.Background(), "example.com", "tok", "keyauth"))
}
